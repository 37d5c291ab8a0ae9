// Package stores implements warehouses, stock, transfers, procurement orders,
// and production.
package stores

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kivu-erp/kivu-erp/internal/workflow"
)

// Stock transfer states. Pending is initial; Approved and Rejected terminal.
const (
	TransferPending  workflow.State = "pending"
	TransferApproved workflow.State = "approved"
	TransferRejected workflow.State = "rejected"
)

// Production order states.
const (
	ProductionPending    workflow.State = "pending"
	ProductionInProgress workflow.State = "in_progress"
	ProductionCompleted  workflow.State = "completed"
	ProductionCancelled  workflow.State = "cancelled"
)

// Supplier is a procurement counterparty.
type Supplier struct {
	ID        int64
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

// Warehouse holds stock and has a manager who receives threshold alerts.
type Warehouse struct {
	ID        int64
	Name      string
	Location  string
	ManagerID *int64
	CreatedAt time.Time
}

// UnitOfMeasure names how an item is counted.
type UnitOfMeasure struct {
	ID   int64
	Name string
	Code string
}

// Item is a stockable good.
type Item struct {
	ID         int64
	Code       string
	Name       string
	CategoryID *int64
	UnitID     int64
	CreatedAt  time.Time
}

// Stock is the quantity of one item in one warehouse. One row per pair.
type Stock struct {
	ID          int64
	WarehouseID int64
	ItemID      int64
	Quantity    decimal.Decimal
	UpdatedAt   time.Time
}

// StockTransfer moves quantity between warehouses once approved.
type StockTransfer struct {
	ID              uuid.UUID
	FromWarehouseID int64
	ToWarehouseID   int64
	ItemID          int64
	Quantity        decimal.Decimal
	Status          workflow.State
	RequestedBy     int64
	ApprovedBy      *int64
	ApprovedAt      *time.Time
	Comments        string
	CreatedAt       time.Time
}

// CurrentState satisfies workflow.Subject.
func (t *StockTransfer) CurrentState() workflow.State {
	return t.Status
}

// Order is a purchase order. Amount is denominated in Currency;
// AmountConverted re-expresses it in SavedCurrency via a rate lookup.
type Order struct {
	ID              uuid.UUID
	Number          string
	InvoiceNumber   string
	SupplierID      int64
	Amount          decimal.Decimal
	Currency        string
	SavedCurrency   string
	AmountConverted decimal.Decimal
	ShippingCost    decimal.Decimal
	Taxes           decimal.Decimal
	CreatedAt       time.Time
}

// TotalCost is the converted amount plus shipping and taxes.
func (o Order) TotalCost() decimal.Decimal {
	return o.AmountConverted.Add(o.ShippingCost).Add(o.Taxes)
}

// BillOfMaterials lists the components needed to produce one unit of an item.
type BillOfMaterials struct {
	ID         int64
	FinishedID int64
	Name       string
	Lines      []BOMLine
	CreatedAt  time.Time
}

// BOMLine is one component requirement per finished unit.
type BOMLine struct {
	ID          int64
	BOMID       int64
	ComponentID int64
	QtyPerUnit  decimal.Decimal
}

// ProductionOrder produces Quantity units of a BOM's finished item in one
// warehouse. Starting consumes components; completing credits finished goods.
type ProductionOrder struct {
	ID          uuid.UUID
	BOMID       int64
	WarehouseID int64
	Quantity    decimal.Decimal
	Status      workflow.State
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// CurrentState satisfies workflow.Subject.
func (p *ProductionOrder) CurrentState() workflow.State {
	return p.Status
}

// StockThreshold triggers an alert when an item's total stock falls below the
// minimum. AlertSent debounces repeat alerts until stock recovers.
type StockThreshold struct {
	ID          int64
	ItemID      int64
	MinQuantity decimal.Decimal
	AlertSent   bool
}

var (
	// ErrNotFound indicates a missing stores entity.
	ErrNotFound = errors.New("stores: not found")
	// ErrStockNotFound indicates no stock row exists for the warehouse/item pair.
	ErrStockNotFound = errors.New("stores: no stock record for item in warehouse")
	// ErrInsufficientStock indicates the requested quantity exceeds availability.
	ErrInsufficientStock = errors.New("stores: insufficient stock")
	// ErrSameWarehouse indicates a transfer onto itself.
	ErrSameWarehouse = errors.New("stores: source and destination warehouses must differ")
	// ErrDuplicate indicates a unique constraint collision.
	ErrDuplicate = errors.New("stores: duplicate entry")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("stores: invalid input")
)

// TransferInput groups fields required to request a stock transfer.
type TransferInput struct {
	FromWarehouseID int64
	ToWarehouseID   int64
	ItemID          int64
	Quantity        decimal.Decimal
	RequestedBy     int64
	Comments        string
}

// Validate checks the structural rules that hold before any state change.
func (in TransferInput) Validate() error {
	if in.Quantity.Sign() <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if in.FromWarehouseID == in.ToWarehouseID {
		return ErrSameWarehouse
	}
	if in.FromWarehouseID == 0 || in.ToWarehouseID == 0 || in.ItemID == 0 {
		return fmt.Errorf("%w: warehouses and item required", ErrValidation)
	}
	return nil
}

// OrderInput groups fields required to record a purchase order.
type OrderInput struct {
	Number        string
	InvoiceNumber string
	SupplierID    int64
	Amount        decimal.Decimal
	Currency      string
	SavedCurrency string
	ShippingCost  decimal.Decimal
	Taxes         decimal.Decimal
}
