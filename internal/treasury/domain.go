// Package treasury manages cash accounts, inter-account transfers, payments,
// and cash flow forecasts.
package treasury

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CashAccount is a physical or bank cash position in one currency.
type CashAccount struct {
	ID         uuid.UUID
	Number     string
	Name       string
	GroupID    *int64
	Currency   string
	Balance    decimal.Decimal
	AssignedTo *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AssignmentHistory records who held a cash account and when.
type AssignmentHistory struct {
	ID            int64
	CashAccountID uuid.UUID
	AssignedTo    int64
	AssignedAt    time.Time
}

// AccountTransfer moves funds between two cash accounts. When the currencies
// match the rate is forced to 1 and AmountConverted equals Amount.
type AccountTransfer struct {
	ID              int64
	FromAccountID   uuid.UUID
	ToAccountID     uuid.UUID
	Amount          decimal.Decimal
	ExchangeRate    decimal.Decimal
	AmountConverted decimal.Decimal
	Date            time.Time
	Reference       string
	CreatedAt       time.Time
}

// Payment settles a requisition from a cash account. RequisitionAmount is the
// amount expressed in the requisition currency.
type Payment struct {
	ID                uuid.UUID
	RequisitionID     *uuid.UUID
	CashAccountID     uuid.UUID
	Amount            decimal.Decimal
	RequisitionAmount decimal.Decimal
	ExchangeRate      decimal.Decimal
	Date              time.Time
	Reference         string
	CreatedAt         time.Time
}

// CashFlowForecast projects inflow/outflow for an account over a fiscal
// period. One forecast per (account, period) pair.
type CashFlowForecast struct {
	ID            int64
	CashAccountID uuid.UUID
	PeriodID      int64
	Inflow        decimal.Decimal
	Outflow       decimal.Decimal
	UpdatedAt     time.Time
}

// Net returns inflow minus outflow.
func (f CashFlowForecast) Net() decimal.Decimal {
	return f.Inflow.Sub(f.Outflow)
}

var (
	// ErrAccountNotFound indicates a missing cash account.
	ErrAccountNotFound = errors.New("treasury: cash account not found")
	// ErrSameAccount indicates a transfer onto itself.
	ErrSameAccount = errors.New("treasury: source and destination accounts must differ")
	// ErrInsufficientFunds indicates the source balance cannot cover the amount.
	ErrInsufficientFunds = errors.New("treasury: insufficient funds")
	// ErrRateRequired indicates a cross-currency movement without a rate.
	ErrRateRequired = errors.New("treasury: exchange rate required for cross-currency movement")
	// ErrDuplicateNumber indicates an account number collision.
	ErrDuplicateNumber = errors.New("treasury: account number already in use")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("treasury: invalid input")
)

// TransferInput groups fields required to execute a transfer.
type TransferInput struct {
	FromAccountID uuid.UUID
	ToAccountID   uuid.UUID
	Amount        decimal.Decimal
	ExchangeRate  *decimal.Decimal
	Date          time.Time
	Reference     string
}

// PaymentInput groups fields required to record a payment. Currency names the
// requisition-side currency the payment settles.
type PaymentInput struct {
	CashAccountID uuid.UUID
	RequisitionID *uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	ExchangeRate  *decimal.Decimal
	Date          time.Time
	Reference     string
}
