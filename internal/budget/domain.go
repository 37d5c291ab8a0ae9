// Package budget implements weekly departmental budgets with currency
// conversion, plus the department and category grouping entities.
package budget

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Weeks are labelled S1 through S5, covering months that span five
// calendar weeks.
var validWeeks = map[string]struct{}{
	"S1": {}, "S2": {}, "S3": {}, "S4": {}, "S5": {},
}

// Department groups budgets and requisition cost centers.
type Department struct {
	ID           int64
	Name         string
	SupervisorID *int64
	CreatedAt    time.Time
}

// Category classifies spending.
type Category struct {
	ID   int64
	Name string
}

// Budget allocates an amount to one category and department for one week of
// one month. Amount is denominated in USD; AmountConverted carries the local
// currency value at Rate.
type Budget struct {
	ID              int64
	CategoryID      int64
	DepartmentID    int64
	Week            string
	Month           int
	Year            int
	Amount          decimal.Decimal
	Rate            decimal.Decimal
	AmountConverted decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

var (
	// ErrNotFound indicates a missing budget entity.
	ErrNotFound = errors.New("budget: not found")
	// ErrDuplicate indicates a second budget for the same
	// category/department/week/month/year.
	ErrDuplicate = errors.New("budget: allocation already exists for this slot")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("budget: invalid input")
)

// BudgetInput groups fields required to create or update a budget.
type BudgetInput struct {
	CategoryID   int64
	DepartmentID int64
	Week         string
	Month        int
	Year         int
	Amount       decimal.Decimal
	Rate         decimal.Decimal
}

// Validate checks the slot coordinates and amounts.
func (in BudgetInput) Validate() error {
	if in.CategoryID == 0 || in.DepartmentID == 0 {
		return fmt.Errorf("%w: category and department required", ErrValidation)
	}
	if _, ok := validWeeks[in.Week]; !ok {
		return fmt.Errorf("%w: week must be S1 through S5", ErrValidation)
	}
	if in.Month < 1 || in.Month > 12 {
		return fmt.Errorf("%w: month must be 1 through 12", ErrValidation)
	}
	if in.Year < 2000 {
		return fmt.Errorf("%w: year out of range", ErrValidation)
	}
	if in.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if in.Rate.Sign() <= 0 {
		return fmt.Errorf("%w: rate must be positive", ErrValidation)
	}
	return nil
}
