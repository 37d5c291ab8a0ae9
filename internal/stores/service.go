package stores

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kivu-erp/kivu-erp/internal/fx"
	"github.com/kivu-erp/kivu-erp/internal/shared"
	"github.com/kivu-erp/kivu-erp/internal/workflow"
)

// RatePort exposes the exchange rate lookup orders need.
type RatePort interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// DirectoryPort exposes the identity collaborator operations stores needs.
type DirectoryPort interface {
	HasPermission(ctx context.Context, userID int64, permission string) (bool, error)
}

// NotifierPort delivers threshold alerts. Failures are logged, never fatal.
type NotifierPort interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ThresholdBreach pairs a threshold with the current total stock and the
// warehouse manager addresses to alert.
type ThresholdBreach struct {
	Threshold     StockThreshold
	ItemCode      string
	ItemName      string
	TotalQuantity decimal.Decimal
	ManagerEmails []string
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTransfer(ctx context.Context, id uuid.UUID) (StockTransfer, error)
	GetStock(ctx context.Context, warehouseID, itemID int64) (Stock, error)
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	GetBOM(ctx context.Context, id int64) (BillOfMaterials, error)
	ListBreaches(ctx context.Context) ([]ThresholdBreach, error)
	ListRecovered(ctx context.Context) ([]StockThreshold, error)
}

// TxRepository exposes transactional operations for stock mutation.
type TxRepository interface {
	GetTransferForUpdate(ctx context.Context, id uuid.UUID) (StockTransfer, error)
	InsertTransfer(ctx context.Context, transfer StockTransfer) error
	SetTransferStatus(ctx context.Context, id uuid.UUID, status workflow.State, approvedBy *int64, at *time.Time) error
	GetStockForUpdate(ctx context.Context, warehouseID, itemID int64) (Stock, error)
	UpsertStock(ctx context.Context, warehouseID, itemID int64, quantity decimal.Decimal) error
	InsertOrder(ctx context.Context, order Order) error
	InsertSupplier(ctx context.Context, supplier Supplier) (int64, error)
	InsertWarehouse(ctx context.Context, warehouse Warehouse) (int64, error)
	InsertUnit(ctx context.Context, unit UnitOfMeasure) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	InsertBOM(ctx context.Context, bom BillOfMaterials) (int64, error)
	InsertProduction(ctx context.Context, order ProductionOrder) error
	GetProductionForUpdate(ctx context.Context, id uuid.UUID) (ProductionOrder, error)
	SetProductionStatus(ctx context.Context, id uuid.UUID, status workflow.State, startedAt, completedAt *time.Time) error
	UpsertThreshold(ctx context.Context, threshold StockThreshold) (StockThreshold, error)
	SetAlertSent(ctx context.Context, thresholdID int64, sent bool) error
}

// AuditPort records stores events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts workflow transitions.
type MetricsPort interface {
	ObserveTransition(subject, state string)
}

// Service manages stock and its movements.
type Service struct {
	repo       RepositoryPort
	rates      RatePort
	dir        DirectoryPort
	notifier   NotifierPort
	audit      AuditPort
	metrics    MetricsPort
	logger     *slog.Logger
	transfers  *workflow.Machine
	production *workflow.Machine
	now        func() time.Time

	allowNegativeStock bool
}

// NewService constructs the stores service.
func NewService(repo RepositoryPort, rates RatePort, dir DirectoryPort, notifier NotifierPort, audit AuditPort, metrics MetricsPort, logger *slog.Logger) *Service {
	s := &Service{
		repo:     repo,
		rates:    rates,
		dir:      dir,
		notifier: notifier,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
	s.transfers = workflow.New(TransferPending, []workflow.Transition{
		{From: TransferPending, To: TransferApproved, Guard: s.transferApproverGuard},
		{From: TransferPending, To: TransferRejected, Guard: s.transferApproverGuard},
	})
	s.production = workflow.New(ProductionPending, []workflow.Transition{
		{From: ProductionPending, To: ProductionInProgress},
		{From: ProductionInProgress, To: ProductionCompleted},
		{From: ProductionPending, To: ProductionCancelled},
	})
	return s
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// AllowNegativeStock disables the sufficiency checks on transfers. Some
// deployments backfill historic movements before stock counts exist.
func (s *Service) AllowNegativeStock(allow bool) {
	s.allowNegativeStock = allow
}

// CreateSupplier persists a supplier.
func (s *Service) CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error) {
	if strings.TrimSpace(supplier.Name) == "" {
		return Supplier{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	supplier.CreatedAt = s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertSupplier(ctx, supplier)
		supplier.ID = id
		return err
	})
	return supplier, err
}

// CreateWarehouse persists a warehouse.
func (s *Service) CreateWarehouse(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	if strings.TrimSpace(warehouse.Name) == "" {
		return Warehouse{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	warehouse.CreatedAt = s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertWarehouse(ctx, warehouse)
		warehouse.ID = id
		return err
	})
	return warehouse, err
}

// CreateUnit persists a unit of measure.
func (s *Service) CreateUnit(ctx context.Context, unit UnitOfMeasure) (UnitOfMeasure, error) {
	if unit.Name == "" || unit.Code == "" {
		return UnitOfMeasure{}, fmt.Errorf("%w: name and code required", ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertUnit(ctx, unit)
		unit.ID = id
		return err
	})
	return unit, err
}

// CreateItem persists an item.
func (s *Service) CreateItem(ctx context.Context, item Item) (Item, error) {
	if strings.TrimSpace(item.Code) == "" || item.Name == "" || item.UnitID == 0 {
		return Item{}, fmt.Errorf("%w: code, name, and unit required", ErrValidation)
	}
	item.CreatedAt = s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertItem(ctx, item)
		item.ID = id
		return err
	})
	return item, err
}

// ReceiveStock credits quantity into a warehouse, creating the stock row when
// absent.
func (s *Service) ReceiveStock(ctx context.Context, warehouseID, itemID int64, quantity decimal.Decimal) error {
	if quantity.Sign() <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current := decimal.Zero
		stock, err := tx.GetStockForUpdate(ctx, warehouseID, itemID)
		if err == nil {
			current = stock.Quantity
		} else if !errors.Is(err, ErrStockNotFound) {
			return err
		}
		return tx.UpsertStock(ctx, warehouseID, itemID, current.Add(quantity))
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "stock.receive", fmt.Sprintf("%d/%d", warehouseID, itemID), map[string]any{"quantity": quantity.String()})
	return nil
}

// RequestTransfer validates and records a pending stock transfer. All
// validation runs before any state exists: quantity positive, distinct
// warehouses, a stock row present, and enough quantity available.
func (s *Service) RequestTransfer(ctx context.Context, input TransferInput) (StockTransfer, error) {
	if err := input.Validate(); err != nil {
		return StockTransfer{}, err
	}
	transfer := StockTransfer{
		ID:              uuid.New(),
		FromWarehouseID: input.FromWarehouseID,
		ToWarehouseID:   input.ToWarehouseID,
		ItemID:          input.ItemID,
		Quantity:        input.Quantity,
		Status:          s.transfers.Initial(),
		RequestedBy:     input.RequestedBy,
		Comments:        input.Comments,
		CreatedAt:       s.now(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, input.FromWarehouseID, input.ItemID)
		if err != nil {
			return err
		}
		if !s.allowNegativeStock && stock.Quantity.LessThan(input.Quantity) {
			return fmt.Errorf("%w: requested %s, available %s", ErrInsufficientStock, input.Quantity, stock.Quantity)
		}
		return tx.InsertTransfer(ctx, transfer)
	})
	if err != nil {
		return StockTransfer{}, err
	}
	s.observeTransition(string(TransferPending))
	s.recordAudit(ctx, "transfer.request", transfer.ID.String(), map[string]any{
		"item_id":  input.ItemID,
		"quantity": input.Quantity.String(),
	})
	return transfer, nil
}

// ApproveTransfer applies the stock movement exactly once. Approving an
// already approved transfer is a no-op returning the stored record — the
// mutation never re-applies. Source debit and destination credit happen in
// one transaction with both stock rows locked in warehouse-id order, so two
// opposing approvals of the same item cannot deadlock each other.
func (s *Service) ApproveTransfer(ctx context.Context, id uuid.UUID, actorID int64) (StockTransfer, error) {
	var transfer StockTransfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		transfer, err = tx.GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if transfer.Status == TransferApproved {
			return nil
		}
		if err := s.transfers.Fire(ctx, &transfer, TransferApproved, actorID); err != nil {
			return err
		}
		first, second := transfer.FromWarehouseID, transfer.ToWarehouseID
		if second < first {
			first, second = second, first
		}
		locked := map[int64]decimal.Decimal{}
		for _, warehouseID := range []int64{first, second} {
			stock, err := tx.GetStockForUpdate(ctx, warehouseID, transfer.ItemID)
			if err != nil {
				if errors.Is(err, ErrStockNotFound) && warehouseID == transfer.ToWarehouseID {
					locked[warehouseID] = decimal.Zero
					continue
				}
				return err
			}
			locked[warehouseID] = stock.Quantity
		}
		source := locked[transfer.FromWarehouseID]
		if !s.allowNegativeStock && source.LessThan(transfer.Quantity) {
			return fmt.Errorf("%w: requested %s, available %s", ErrInsufficientStock, transfer.Quantity, source)
		}
		if err := tx.UpsertStock(ctx, transfer.FromWarehouseID, transfer.ItemID, source.Sub(transfer.Quantity)); err != nil {
			return err
		}
		if err := tx.UpsertStock(ctx, transfer.ToWarehouseID, transfer.ItemID, locked[transfer.ToWarehouseID].Add(transfer.Quantity)); err != nil {
			return err
		}
		now := s.now()
		transfer.Status = TransferApproved
		transfer.ApprovedBy = &actorID
		transfer.ApprovedAt = &now
		return tx.SetTransferStatus(ctx, id, TransferApproved, &actorID, &now)
	})
	if err != nil {
		return StockTransfer{}, err
	}
	s.observeTransition(string(TransferApproved))
	s.recordAudit(ctx, "transfer.approve", id.String(), map[string]any{"actor_id": actorID})
	return transfer, nil
}

// RejectTransfer marks a pending transfer rejected without touching stock.
func (s *Service) RejectTransfer(ctx context.Context, id uuid.UUID, actorID int64) (StockTransfer, error) {
	var transfer StockTransfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		transfer, err = tx.GetTransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.transfers.Fire(ctx, &transfer, TransferRejected, actorID); err != nil {
			return err
		}
		now := s.now()
		transfer.Status = TransferRejected
		transfer.ApprovedBy = &actorID
		transfer.ApprovedAt = &now
		return tx.SetTransferStatus(ctx, id, TransferRejected, &actorID, &now)
	})
	if err != nil {
		return StockTransfer{}, err
	}
	s.observeTransition(string(TransferRejected))
	s.recordAudit(ctx, "transfer.reject", id.String(), map[string]any{"actor_id": actorID})
	return transfer, nil
}

// CreateOrder records a purchase order, converting the amount into the saved
// currency through a fresh rate lookup when the currencies differ. A missing
// rate fails the order.
func (s *Service) CreateOrder(ctx context.Context, input OrderInput) (Order, error) {
	if strings.TrimSpace(input.Number) == "" || input.SupplierID == 0 {
		return Order{}, fmt.Errorf("%w: number and supplier required", ErrValidation)
	}
	if input.Amount.Sign() <= 0 {
		return Order{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if err := fx.ValidateCurrency(input.Currency); err != nil {
		return Order{}, fmt.Errorf("%w: %s", ErrValidation, input.Currency)
	}
	if input.SavedCurrency == "" {
		input.SavedCurrency = input.Currency
	}
	if err := fx.ValidateCurrency(input.SavedCurrency); err != nil {
		return Order{}, fmt.Errorf("%w: %s", ErrValidation, input.SavedCurrency)
	}
	converted := input.Amount
	if input.Currency != input.SavedCurrency {
		rate, err := s.rates.Rate(ctx, input.Currency, input.SavedCurrency)
		if err != nil {
			return Order{}, err
		}
		converted = input.Amount.Mul(rate)
	}
	order := Order{
		ID:              uuid.New(),
		Number:          input.Number,
		InvoiceNumber:   input.InvoiceNumber,
		SupplierID:      input.SupplierID,
		Amount:          input.Amount,
		Currency:        input.Currency,
		SavedCurrency:   input.SavedCurrency,
		AmountConverted: converted,
		ShippingCost:    input.ShippingCost,
		Taxes:           input.Taxes,
		CreatedAt:       s.now(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, "order.create", order.ID.String(), map[string]any{
		"number": order.Number,
		"amount": order.Amount.String(),
	})
	return order, nil
}

// CreateBOM persists a bill of materials with its component lines.
func (s *Service) CreateBOM(ctx context.Context, bom BillOfMaterials) (BillOfMaterials, error) {
	if bom.FinishedID == 0 || len(bom.Lines) == 0 {
		return BillOfMaterials{}, fmt.Errorf("%w: finished item and at least one line required", ErrValidation)
	}
	for idx, line := range bom.Lines {
		if line.ComponentID == 0 || line.QtyPerUnit.Sign() <= 0 {
			return BillOfMaterials{}, fmt.Errorf("%w: line %d needs component and positive quantity", ErrValidation, idx)
		}
	}
	bom.CreatedAt = s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertBOM(ctx, bom)
		bom.ID = id
		return err
	})
	return bom, err
}

// CreateProductionOrder opens a pending production order.
func (s *Service) CreateProductionOrder(ctx context.Context, bomID, warehouseID int64, quantity decimal.Decimal) (ProductionOrder, error) {
	if quantity.Sign() <= 0 {
		return ProductionOrder{}, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if _, err := s.repo.GetBOM(ctx, bomID); err != nil {
		return ProductionOrder{}, err
	}
	order := ProductionOrder{
		ID:          uuid.New(),
		BOMID:       bomID,
		WarehouseID: warehouseID,
		Quantity:    quantity,
		Status:      s.production.Initial(),
		CreatedAt:   s.now(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertProduction(ctx, order)
	})
	if err != nil {
		return ProductionOrder{}, err
	}
	return order, nil
}

// StartProduction moves the order to in_progress and consumes the required
// components. Every component must have sufficient stock in the order's
// warehouse before anything is decremented.
func (s *Service) StartProduction(ctx context.Context, id uuid.UUID, actorID int64) (ProductionOrder, error) {
	var order ProductionOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetProductionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.production.Fire(ctx, &order, ProductionInProgress, actorID); err != nil {
			return err
		}
		bom, err := s.repo.GetBOM(ctx, order.BOMID)
		if err != nil {
			return err
		}
		type draw struct {
			itemID    int64
			remaining decimal.Decimal
		}
		var draws []draw
		for _, line := range bom.Lines {
			required := line.QtyPerUnit.Mul(order.Quantity)
			stock, err := tx.GetStockForUpdate(ctx, order.WarehouseID, line.ComponentID)
			if err != nil {
				return err
			}
			if stock.Quantity.LessThan(required) {
				return fmt.Errorf("%w: component %d requires %s, available %s", ErrInsufficientStock, line.ComponentID, required, stock.Quantity)
			}
			draws = append(draws, draw{itemID: line.ComponentID, remaining: stock.Quantity.Sub(required)})
		}
		for _, d := range draws {
			if err := tx.UpsertStock(ctx, order.WarehouseID, d.itemID, d.remaining); err != nil {
				return err
			}
		}
		now := s.now()
		order.Status = ProductionInProgress
		order.StartedAt = &now
		return tx.SetProductionStatus(ctx, id, ProductionInProgress, &now, nil)
	})
	if err != nil {
		return ProductionOrder{}, err
	}
	s.recordAudit(ctx, "production.start", id.String(), map[string]any{"actor_id": actorID})
	return order, nil
}

// CompleteProduction credits the finished item into the warehouse.
func (s *Service) CompleteProduction(ctx context.Context, id uuid.UUID, actorID int64) (ProductionOrder, error) {
	var order ProductionOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetProductionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.production.Fire(ctx, &order, ProductionCompleted, actorID); err != nil {
			return err
		}
		bom, err := s.repo.GetBOM(ctx, order.BOMID)
		if err != nil {
			return err
		}
		current := decimal.Zero
		if stock, err := tx.GetStockForUpdate(ctx, order.WarehouseID, bom.FinishedID); err == nil {
			current = stock.Quantity
		} else if !errors.Is(err, ErrStockNotFound) {
			return err
		}
		if err := tx.UpsertStock(ctx, order.WarehouseID, bom.FinishedID, current.Add(order.Quantity)); err != nil {
			return err
		}
		now := s.now()
		order.Status = ProductionCompleted
		order.CompletedAt = &now
		return tx.SetProductionStatus(ctx, id, ProductionCompleted, order.StartedAt, &now)
	})
	if err != nil {
		return ProductionOrder{}, err
	}
	s.recordAudit(ctx, "production.complete", id.String(), map[string]any{"actor_id": actorID})
	return order, nil
}

// CancelProduction cancels a still pending order.
func (s *Service) CancelProduction(ctx context.Context, id uuid.UUID, actorID int64) (ProductionOrder, error) {
	var order ProductionOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetProductionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.production.Fire(ctx, &order, ProductionCancelled, actorID); err != nil {
			return err
		}
		order.Status = ProductionCancelled
		return tx.SetProductionStatus(ctx, id, ProductionCancelled, order.StartedAt, nil)
	})
	if err != nil {
		return ProductionOrder{}, err
	}
	return order, nil
}

// SetThreshold upserts a minimum stock level for an item.
func (s *Service) SetThreshold(ctx context.Context, threshold StockThreshold) (StockThreshold, error) {
	if threshold.ItemID == 0 || threshold.MinQuantity.Sign() <= 0 {
		return StockThreshold{}, fmt.Errorf("%w: item and positive minimum required", ErrValidation)
	}
	var stored StockThreshold
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		stored, err = tx.UpsertThreshold(ctx, threshold)
		return err
	})
	return stored, err
}

// ScanThresholds alerts warehouse managers for every item whose total stock
// fell below its minimum, once per breach. Recovered thresholds re-arm.
// Invoked periodically by the job scheduler.
func (s *Service) ScanThresholds(ctx context.Context) (int, error) {
	breaches, err := s.repo.ListBreaches(ctx)
	if err != nil {
		return 0, err
	}
	alerted := 0
	for _, breach := range breaches {
		if breach.Threshold.AlertSent {
			continue
		}
		for _, email := range breach.ManagerEmails {
			s.notify(ctx, email,
				fmt.Sprintf("Low stock: %s", breach.ItemName),
				fmt.Sprintf("Item %s (%s) holds %s in total, below the minimum of %s.",
					breach.ItemName, breach.ItemCode, breach.TotalQuantity, breach.Threshold.MinQuantity))
		}
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.SetAlertSent(ctx, breach.Threshold.ID, true)
		})
		if err != nil {
			return alerted, err
		}
		alerted++
	}
	recovered, err := s.repo.ListRecovered(ctx)
	if err != nil {
		return alerted, err
	}
	for _, threshold := range recovered {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.SetAlertSent(ctx, threshold.ID, false)
		})
		if err != nil {
			return alerted, err
		}
	}
	return alerted, nil
}

// GetTransfer returns one stock transfer.
func (s *Service) GetTransfer(ctx context.Context, id uuid.UUID) (StockTransfer, error) {
	return s.repo.GetTransfer(ctx, id)
}

// GetStock returns the stock row for a warehouse/item pair.
func (s *Service) GetStock(ctx context.Context, warehouseID, itemID int64) (Stock, error) {
	return s.repo.GetStock(ctx, warehouseID, itemID)
}

// GetOrder returns one purchase order.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *Service) transferApproverGuard(ctx context.Context, _ workflow.Subject, actorID int64) error {
	ok, err := s.dir.HasPermission(ctx, actorID, shared.PermStockTransferApprove)
	if err != nil {
		return err
	}
	if !ok {
		return workflow.ErrTransitionUnavailable
	}
	return nil
}

func (s *Service) notify(ctx context.Context, to, subject, body string) {
	if s.notifier == nil || to == "" {
		return
	}
	if err := s.notifier.Send(ctx, to, subject, body); err != nil {
		s.logger.Warn("notification failed", slog.String("to", to), slog.Any("error", err))
	}
}

func (s *Service) observeTransition(state string) {
	if s.metrics != nil {
		s.metrics.ObserveTransition("stock_transfer", state)
	}
}

func (s *Service) recordAudit(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "stores",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
}
