package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates chart-of-accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Standard selects the accounting classification used by reports.
type Standard string

const (
	// StandardOHADA classifies income as class 7 and expenses as class 6 in
	// addition to the account type.
	StandardOHADA Standard = "OHADA"
	// StandardUSGAAP classifies strictly by account type.
	StandardUSGAAP Standard = "US_GAAP"
)

// Account models a chart-of-accounts node. Accounts order by class then code.
type Account struct {
	ID          int64
	Code        string
	Name        string
	ClassNumber int
	Type        AccountType
	Currency    string
	ParentID    *int64
	CreatedAt   time.Time
}

// Period represents a fiscal window. A closed period rejects new postings.
type Period struct {
	ID        int64
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Closed    bool
	ClosedAt  *time.Time
}

// Contains reports whether the date falls inside the period window.
func (p Period) Contains(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// Journal groups transactions by business source and carries the currency
// postings balance in.
type Journal struct {
	ID       int64
	Code     string
	Name     string
	Currency string
}

// Transaction captures posting metadata. PaymentID and TransferID link the
// entry back to the treasury document that produced it.
type Transaction struct {
	ID           int64
	Date         time.Time
	JournalID    int64
	Reference    string
	Description  string
	PaymentID    *uuid.UUID
	TransferID   *int64
	ExchangeRate *decimal.Decimal
	CreatedAt    time.Time
	Items        []TransactionItem
}

// TransactionItem stores one debit or credit leg, denominated in the owning
// account's currency after conversion.
type TransactionItem struct {
	ID            int64
	TransactionID int64
	AccountID     int64
	Amount        decimal.Decimal
	Currency      string
	IsDebit       bool
}

var (
	// ErrUnbalanced indicates debit and credit totals differ.
	ErrUnbalanced = errors.New("ledger: debit and credit totals must match")
	// ErrTooFewItems indicates fewer than two items.
	ErrTooFewItems = errors.New("ledger: transaction requires at least two items")
	// ErrPeriodClosed indicates the covering period no longer accepts postings.
	ErrPeriodClosed = errors.New("ledger: period is closed")
	// ErrNoPeriod indicates no period covers the posting date.
	ErrNoPeriod = errors.New("ledger: no period covers the date")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrJournalNotFound indicates a missing journal.
	ErrJournalNotFound = errors.New("ledger: journal not found")
	// ErrPeriodNotFound indicates a missing period.
	ErrPeriodNotFound = errors.New("ledger: period not found")
	// ErrDuplicateCode indicates a unique code collision.
	ErrDuplicateCode = errors.New("ledger: code already in use")
	// ErrUnknownStandard indicates an unsupported accounting standard.
	ErrUnknownStandard = errors.New("ledger: unknown accounting standard")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("ledger: invalid input")
)

// ItemInput describes one leg of a posting, in the journal currency.
type ItemInput struct {
	AccountID int64
	Amount    decimal.Decimal
	IsDebit   bool
}

// PostingInput groups fields required to post a transaction.
type PostingInput struct {
	JournalID    int64
	Date         time.Time
	Reference    string
	Description  string
	PaymentID    *uuid.UUID
	TransferID   *int64
	ExchangeRate *decimal.Decimal
	Items        []ItemInput
}

// Validate ensures the posting is structurally sound and balanced. Amount
// comparison happens in the journal currency before any conversion.
func (in PostingInput) Validate() error {
	if in.JournalID == 0 {
		return fmt.Errorf("%w: journal required", ErrValidation)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date required", ErrValidation)
	}
	if len(in.Items) < 2 {
		return ErrTooFewItems
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, item := range in.Items {
		if item.AccountID == 0 {
			return fmt.Errorf("%w: item %d missing account", ErrValidation, idx)
		}
		if item.Amount.Sign() <= 0 {
			return fmt.Errorf("%w: item %d amount must be positive", ErrValidation, idx)
		}
		if item.IsDebit {
			debit = debit.Add(item.Amount)
		} else {
			credit = credit.Add(item.Amount)
		}
	}
	if !debit.Equal(credit) {
		return ErrUnbalanced
	}
	if in.ExchangeRate != nil && in.ExchangeRate.Sign() <= 0 {
		return fmt.Errorf("%w: exchange rate must be positive", ErrValidation)
	}
	return nil
}
