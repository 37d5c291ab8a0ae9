package stores

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kivu-erp/kivu-erp/internal/fx"
	"github.com/kivu-erp/kivu-erp/internal/shared"
	"github.com/kivu-erp/kivu-erp/internal/workflow"
)

type fakeRepo struct {
	stock       map[string]decimal.Decimal
	transfers   map[uuid.UUID]StockTransfer
	orders      map[uuid.UUID]Order
	boms        map[int64]BillOfMaterials
	productions map[uuid.UUID]ProductionOrder
	thresholds  map[int64]StockThreshold
	breaches    []ThresholdBreach
	recovered   []StockThreshold

	upserts []string
	locks   []string
	nextID  int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		stock:       map[string]decimal.Decimal{},
		transfers:   map[uuid.UUID]StockTransfer{},
		orders:      map[uuid.UUID]Order{},
		boms:        map[int64]BillOfMaterials{},
		productions: map[uuid.UUID]ProductionOrder{},
		thresholds:  map[int64]StockThreshold{},
	}
}

func stockKey(warehouseID, itemID int64) string {
	return fmt.Sprintf("%d/%d", warehouseID, itemID)
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *fakeRepo) GetTransfer(_ context.Context, id uuid.UUID) (StockTransfer, error) {
	transfer, ok := r.transfers[id]
	if !ok {
		return StockTransfer{}, ErrNotFound
	}
	return transfer, nil
}

func (r *fakeRepo) GetTransferForUpdate(ctx context.Context, id uuid.UUID) (StockTransfer, error) {
	return r.GetTransfer(ctx, id)
}

func (r *fakeRepo) InsertTransfer(_ context.Context, transfer StockTransfer) error {
	r.transfers[transfer.ID] = transfer
	return nil
}

func (r *fakeRepo) SetTransferStatus(_ context.Context, id uuid.UUID, status workflow.State, approvedBy *int64, at *time.Time) error {
	transfer := r.transfers[id]
	transfer.Status = status
	transfer.ApprovedBy = approvedBy
	transfer.ApprovedAt = at
	r.transfers[id] = transfer
	return nil
}

func (r *fakeRepo) GetStock(_ context.Context, warehouseID, itemID int64) (Stock, error) {
	qty, ok := r.stock[stockKey(warehouseID, itemID)]
	if !ok {
		return Stock{}, ErrStockNotFound
	}
	return Stock{WarehouseID: warehouseID, ItemID: itemID, Quantity: qty}, nil
}

func (r *fakeRepo) GetStockForUpdate(ctx context.Context, warehouseID, itemID int64) (Stock, error) {
	r.locks = append(r.locks, stockKey(warehouseID, itemID))
	return r.GetStock(ctx, warehouseID, itemID)
}

func (r *fakeRepo) UpsertStock(_ context.Context, warehouseID, itemID int64, quantity decimal.Decimal) error {
	key := stockKey(warehouseID, itemID)
	r.stock[key] = quantity
	r.upserts = append(r.upserts, key)
	return nil
}

func (r *fakeRepo) GetOrder(_ context.Context, id uuid.UUID) (Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return order, nil
}

func (r *fakeRepo) InsertOrder(_ context.Context, order Order) error {
	for _, existing := range r.orders {
		if existing.Number == order.Number {
			return ErrDuplicate
		}
	}
	r.orders[order.ID] = order
	return nil
}

func (r *fakeRepo) InsertSupplier(_ context.Context, _ Supplier) (int64, error) {
	r.nextID++
	return r.nextID, nil
}

func (r *fakeRepo) InsertWarehouse(_ context.Context, _ Warehouse) (int64, error) {
	r.nextID++
	return r.nextID, nil
}

func (r *fakeRepo) InsertUnit(_ context.Context, _ UnitOfMeasure) (int64, error) {
	r.nextID++
	return r.nextID, nil
}

func (r *fakeRepo) InsertItem(_ context.Context, _ Item) (int64, error) {
	r.nextID++
	return r.nextID, nil
}

func (r *fakeRepo) GetBOM(_ context.Context, id int64) (BillOfMaterials, error) {
	bom, ok := r.boms[id]
	if !ok {
		return BillOfMaterials{}, ErrNotFound
	}
	return bom, nil
}

func (r *fakeRepo) InsertBOM(_ context.Context, bom BillOfMaterials) (int64, error) {
	r.nextID++
	bom.ID = r.nextID
	r.boms[bom.ID] = bom
	return bom.ID, nil
}

func (r *fakeRepo) InsertProduction(_ context.Context, order ProductionOrder) error {
	r.productions[order.ID] = order
	return nil
}

func (r *fakeRepo) GetProductionForUpdate(_ context.Context, id uuid.UUID) (ProductionOrder, error) {
	order, ok := r.productions[id]
	if !ok {
		return ProductionOrder{}, ErrNotFound
	}
	return order, nil
}

func (r *fakeRepo) SetProductionStatus(_ context.Context, id uuid.UUID, status workflow.State, startedAt, completedAt *time.Time) error {
	order := r.productions[id]
	order.Status = status
	order.StartedAt = startedAt
	order.CompletedAt = completedAt
	r.productions[id] = order
	return nil
}

func (r *fakeRepo) UpsertThreshold(_ context.Context, threshold StockThreshold) (StockThreshold, error) {
	for _, existing := range r.thresholds {
		if existing.ItemID == threshold.ItemID {
			threshold.ID = existing.ID
			threshold.AlertSent = false
			r.thresholds[threshold.ID] = threshold
			return threshold, nil
		}
	}
	r.nextID++
	threshold.ID = r.nextID
	r.thresholds[threshold.ID] = threshold
	return threshold, nil
}

func (r *fakeRepo) SetAlertSent(_ context.Context, thresholdID int64, sent bool) error {
	threshold := r.thresholds[thresholdID]
	threshold.AlertSent = sent
	r.thresholds[thresholdID] = threshold
	for idx := range r.breaches {
		if r.breaches[idx].Threshold.ID == thresholdID {
			r.breaches[idx].Threshold.AlertSent = sent
		}
	}
	return nil
}

func (r *fakeRepo) ListBreaches(_ context.Context) ([]ThresholdBreach, error) {
	return r.breaches, nil
}

func (r *fakeRepo) ListRecovered(_ context.Context) ([]StockThreshold, error) {
	return r.recovered, nil
}

type fakeRates struct {
	rates map[string]decimal.Decimal
}

func (f *fakeRates) Rate(_ context.Context, from, to string) (decimal.Decimal, error) {
	rate, ok := f.rates[from+"->"+to]
	if !ok {
		return decimal.Decimal{}, fx.ErrRateNotFound
	}
	return rate, nil
}

type fakeDirectory struct {
	approvers map[int64]bool
}

func (f *fakeDirectory) HasPermission(_ context.Context, userID int64, permission string) (bool, error) {
	if permission != shared.PermStockTransferApprove {
		return false, nil
	}
	return f.approvers[userID], nil
}

type fakeNotifier struct {
	sent []string
}

func (f *fakeNotifier) Send(_ context.Context, to, subject, _ string) error {
	f.sent = append(f.sent, to+": "+subject)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakeNotifier) {
	t.Helper()
	repo := newFakeRepo()
	notifier := &fakeNotifier{}
	svc := NewService(repo,
		&fakeRates{rates: map[string]decimal.Decimal{"USD->CDF": decimal.NewFromInt(2500)}},
		&fakeDirectory{approvers: map[int64]bool{7: true}},
		notifier, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) })
	return svc, repo, notifier
}

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

func transferInput(qty string) TransferInput {
	return TransferInput{
		FromWarehouseID: 1,
		ToWarehouseID:   2,
		ItemID:          10,
		Quantity:        dec(qty),
		RequestedBy:     3,
	}
}

func TestRequestTransferInsufficientStock(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.stock[stockKey(1, 10)] = dec("10")

	_, err := svc.RequestTransfer(context.Background(), transferInput("15"))
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Empty(t, repo.transfers)
	require.Empty(t, repo.upserts)
}

func TestRequestTransferMissingStockRow(t *testing.T) {
	svc, repo, _ := newTestService(t)

	_, err := svc.RequestTransfer(context.Background(), transferInput("1"))
	require.ErrorIs(t, err, ErrStockNotFound)
	require.Empty(t, repo.transfers)
}

func TestRequestTransferSameWarehouse(t *testing.T) {
	svc, _, _ := newTestService(t)

	input := transferInput("5")
	input.ToWarehouseID = input.FromWarehouseID
	_, err := svc.RequestTransfer(context.Background(), input)
	require.ErrorIs(t, err, ErrSameWarehouse)
}

func TestRequestTransferNegativeQuantity(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.RequestTransfer(context.Background(), transferInput("-3"))
	require.ErrorIs(t, err, ErrValidation)
}

func TestApproveTransferMovesStock(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.stock[stockKey(1, 10)] = dec("10")

	transfer, err := svc.RequestTransfer(context.Background(), transferInput("4"))
	require.NoError(t, err)

	approved, err := svc.ApproveTransfer(context.Background(), transfer.ID, 7)
	require.NoError(t, err)
	require.Equal(t, TransferApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	require.Equal(t, int64(7), *approved.ApprovedBy)
	require.True(t, repo.stock[stockKey(1, 10)].Equal(dec("6")))
	require.True(t, repo.stock[stockKey(2, 10)].Equal(dec("4")))
}

func TestApproveTransferTwiceDoesNotDoubleMutate(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.stock[stockKey(1, 10)] = dec("10")

	transfer, err := svc.RequestTransfer(context.Background(), transferInput("4"))
	require.NoError(t, err)

	first, err := svc.ApproveTransfer(context.Background(), transfer.ID, 7)
	require.NoError(t, err)
	mutations := len(repo.upserts)

	second, err := svc.ApproveTransfer(context.Background(), transfer.ID, 7)
	require.NoError(t, err)
	require.Equal(t, first.Status, second.Status)
	require.Len(t, repo.upserts, mutations)
	require.True(t, repo.stock[stockKey(1, 10)].Equal(dec("6")))
	require.True(t, repo.stock[stockKey(2, 10)].Equal(dec("4")))
}

func TestApproveTransferLocksWarehousesInOrder(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.stock[stockKey(1, 10)] = dec("3")
	repo.stock[stockKey(2, 10)] = dec("10")

	// Moving 2->1 must still lock warehouse 1 first, matching the order an
	// opposing 1->2 approval would take.
	input := transferInput("4")
	input.FromWarehouseID, input.ToWarehouseID = 2, 1
	transfer, err := svc.RequestTransfer(context.Background(), input)
	require.NoError(t, err)

	repo.locks = nil
	_, err = svc.ApproveTransfer(context.Background(), transfer.ID, 7)
	require.NoError(t, err)
	require.Equal(t, []string{stockKey(1, 10), stockKey(2, 10)}, repo.locks)
	require.True(t, repo.stock[stockKey(2, 10)].Equal(dec("6")))
	require.True(t, repo.stock[stockKey(1, 10)].Equal(dec("7")))
}

func TestApproveTransferWithoutPermission(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.stock[stockKey(1, 10)] = dec("10")

	transfer, err := svc.RequestTransfer(context.Background(), transferInput("4"))
	require.NoError(t, err)

	_, err = svc.ApproveTransfer(context.Background(), transfer.ID, 99)
	require.ErrorIs(t, err, workflow.ErrTransitionUnavailable)
	require.True(t, repo.stock[stockKey(1, 10)].Equal(dec("10")))
	_, ok := repo.stock[stockKey(2, 10)]
	require.False(t, ok)
}

func TestApproveTransferDrainedSinceRequest(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.stock[stockKey(1, 10)] = dec("10")

	transfer, err := svc.RequestTransfer(context.Background(), transferInput("8"))
	require.NoError(t, err)

	// Another movement emptied the source before approval.
	repo.stock[stockKey(1, 10)] = dec("5")
	repo.upserts = nil

	_, err = svc.ApproveTransfer(context.Background(), transfer.ID, 7)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Empty(t, repo.upserts)
}

func TestRejectTransferLeavesStockAlone(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.stock[stockKey(1, 10)] = dec("10")

	transfer, err := svc.RequestTransfer(context.Background(), transferInput("4"))
	require.NoError(t, err)
	repo.upserts = nil

	rejected, err := svc.RejectTransfer(context.Background(), transfer.ID, 7)
	require.NoError(t, err)
	require.Equal(t, TransferRejected, rejected.Status)
	require.Empty(t, repo.upserts)

	_, err = svc.ApproveTransfer(context.Background(), transfer.ID, 7)
	require.ErrorIs(t, err, workflow.ErrTerminalState)
}

func TestAllowNegativeStockSkipsSufficiency(t *testing.T) {
	svc, repo, _ := newTestService(t)
	svc.AllowNegativeStock(true)
	repo.stock[stockKey(1, 10)] = dec("10")

	transfer, err := svc.RequestTransfer(context.Background(), transferInput("15"))
	require.NoError(t, err)

	_, err = svc.ApproveTransfer(context.Background(), transfer.ID, 7)
	require.NoError(t, err)
	require.True(t, repo.stock[stockKey(1, 10)].Equal(dec("-5")))
	require.True(t, repo.stock[stockKey(2, 10)].Equal(dec("15")))
}

func TestCreateOrderConvertsAmount(t *testing.T) {
	svc, _, _ := newTestService(t)

	order, err := svc.CreateOrder(context.Background(), OrderInput{
		Number:        "PO-1",
		SupplierID:    1,
		Amount:        dec("100"),
		Currency:      "USD",
		SavedCurrency: "CDF",
		ShippingCost:  dec("1000"),
		Taxes:         dec("500"),
	})
	require.NoError(t, err)
	require.True(t, order.AmountConverted.Equal(dec("250000")))
	require.True(t, order.TotalCost().Equal(dec("251500")))
}

func TestCreateOrderSameCurrency(t *testing.T) {
	svc, _, _ := newTestService(t)

	order, err := svc.CreateOrder(context.Background(), OrderInput{
		Number:     "PO-2",
		SupplierID: 1,
		Amount:     dec("100"),
		Currency:   "USD",
	})
	require.NoError(t, err)
	require.Equal(t, "USD", order.SavedCurrency)
	require.True(t, order.AmountConverted.Equal(dec("100")))
}

func TestCreateOrderMissingRate(t *testing.T) {
	svc, repo, _ := newTestService(t)

	_, err := svc.CreateOrder(context.Background(), OrderInput{
		Number:        "PO-3",
		SupplierID:    1,
		Amount:        dec("100"),
		Currency:      "EUR",
		SavedCurrency: "CDF",
	})
	require.ErrorIs(t, err, fx.ErrRateNotFound)
	require.Empty(t, repo.orders)
}

func seedProduction(t *testing.T, svc *Service, qty string) ProductionOrder {
	t.Helper()
	bom := BillOfMaterials{
		FinishedID: 100,
		Name:       "chair",
		Lines: []BOMLine{
			{ComponentID: 11, QtyPerUnit: dec("4")},
			{ComponentID: 12, QtyPerUnit: dec("1")},
		},
	}
	created, err := svc.CreateBOM(context.Background(), bom)
	require.NoError(t, err)

	order, err := svc.CreateProductionOrder(context.Background(), created.ID, 1, dec(qty))
	require.NoError(t, err)
	return order
}

func TestStartProductionConsumesComponents(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.stock[stockKey(1, 11)] = dec("20")
	repo.stock[stockKey(1, 12)] = dec("5")

	order := seedProduction(t, svc, "5")

	started, err := svc.StartProduction(context.Background(), order.ID, 7)
	require.NoError(t, err)
	require.Equal(t, ProductionInProgress, started.Status)
	require.True(t, repo.stock[stockKey(1, 11)].Equal(dec("0")))
	require.True(t, repo.stock[stockKey(1, 12)].Equal(dec("0")))
}

func TestStartProductionShortComponentAborts(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.stock[stockKey(1, 11)] = dec("20")
	repo.stock[stockKey(1, 12)] = dec("3")

	order := seedProduction(t, svc, "5")
	repo.upserts = nil

	_, err := svc.StartProduction(context.Background(), order.ID, 7)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Empty(t, repo.upserts)
	require.True(t, repo.stock[stockKey(1, 11)].Equal(dec("20")))
}

func TestCompleteProductionCreditsFinishedItem(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.stock[stockKey(1, 11)] = dec("20")
	repo.stock[stockKey(1, 12)] = dec("5")

	order := seedProduction(t, svc, "5")
	_, err := svc.StartProduction(context.Background(), order.ID, 7)
	require.NoError(t, err)

	completed, err := svc.CompleteProduction(context.Background(), order.ID, 7)
	require.NoError(t, err)
	require.Equal(t, ProductionCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	require.True(t, repo.stock[stockKey(1, 100)].Equal(dec("5")))
}

func TestCancelProductionOnlyWhilePending(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.stock[stockKey(1, 11)] = dec("20")
	repo.stock[stockKey(1, 12)] = dec("5")

	order := seedProduction(t, svc, "5")
	_, err := svc.StartProduction(context.Background(), order.ID, 7)
	require.NoError(t, err)

	_, err = svc.CancelProduction(context.Background(), order.ID, 7)
	require.ErrorIs(t, err, workflow.ErrTransitionUnavailable)

	second := seedProduction(t, svc, "1")
	cancelled, err := svc.CancelProduction(context.Background(), second.ID, 7)
	require.NoError(t, err)
	require.Equal(t, ProductionCancelled, cancelled.Status)
}

func TestScanThresholdsAlertsOncePerBreach(t *testing.T) {
	svc, repo, notifier := newTestService(t)

	threshold, err := svc.SetThreshold(context.Background(), StockThreshold{ItemID: 10, MinQuantity: dec("50")})
	require.NoError(t, err)
	repo.breaches = []ThresholdBreach{{
		Threshold:     threshold,
		ItemCode:      "CEM-01",
		ItemName:      "Cement",
		TotalQuantity: dec("20"),
		ManagerEmails: []string{"a@kivu.example", "b@kivu.example"},
	}}

	alerted, err := svc.ScanThresholds(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, alerted)
	require.Len(t, notifier.sent, 2)

	// Same breach on the next sweep stays silent.
	alerted, err = svc.ScanThresholds(context.Background())
	require.NoError(t, err)
	require.Zero(t, alerted)
	require.Len(t, notifier.sent, 2)
}

func TestScanThresholdsRearmsAfterRecovery(t *testing.T) {
	svc, repo, notifier := newTestService(t)

	threshold, err := svc.SetThreshold(context.Background(), StockThreshold{ItemID: 10, MinQuantity: dec("50")})
	require.NoError(t, err)
	repo.breaches = []ThresholdBreach{{
		Threshold:     threshold,
		ItemCode:      "CEM-01",
		ItemName:      "Cement",
		TotalQuantity: dec("20"),
		ManagerEmails: []string{"a@kivu.example"},
	}}

	_, err = svc.ScanThresholds(context.Background())
	require.NoError(t, err)

	// Stock recovered: scanner clears the flag so the next breach alerts again.
	armed := repo.thresholds[threshold.ID]
	repo.breaches = nil
	repo.recovered = []StockThreshold{armed}
	_, err = svc.ScanThresholds(context.Background())
	require.NoError(t, err)
	require.False(t, repo.thresholds[threshold.ID].AlertSent)

	repo.recovered = nil
	repo.breaches = []ThresholdBreach{{
		Threshold:     repo.thresholds[threshold.ID],
		ItemCode:      "CEM-01",
		ItemName:      "Cement",
		TotalQuantity: dec("10"),
		ManagerEmails: []string{"a@kivu.example"},
	}}
	alerted, err := svc.ScanThresholds(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, alerted)
	require.Len(t, notifier.sent, 2)
}

func TestReceiveStockAccumulates(t *testing.T) {
	svc, repo, _ := newTestService(t)

	require.NoError(t, svc.ReceiveStock(context.Background(), 1, 10, dec("5")))
	require.NoError(t, svc.ReceiveStock(context.Background(), 1, 10, dec("7")))
	require.True(t, repo.stock[stockKey(1, 10)].Equal(dec("12")))
}
