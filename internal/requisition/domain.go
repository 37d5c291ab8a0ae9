// Package requisition implements fund requests and their approval workflow.
package requisition

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kivu-erp/kivu-erp/internal/workflow"
)

// Workflow states. Draft is initial; Approved and Rejected are terminal.
const (
	StateDraft     workflow.State = "draft"
	StateShared    workflow.State = "shared"
	StateSubmitted workflow.State = "submitted"
	StateApproved  workflow.State = "approved"
	StateRejected  workflow.State = "rejected"
)

// Requisition is a fund request. Amount is denominated in USD;
// AmountConverted holds the CDF equivalent, computed once at submission and
// never recomputed afterwards.
type Requisition struct {
	ID              uuid.UUID
	RequesterID     int64
	Narration       string
	Amount          decimal.Decimal
	ExchangeRate    decimal.Decimal
	AmountConverted *decimal.Decimal
	CostCenterID    *int64
	CategoryID      *int64
	State           workflow.State
	Lines           []Line
	CreatedAt       time.Time
	ModifiedAt      time.Time
}

// CurrentState satisfies workflow.Subject.
func (r *Requisition) CurrentState() workflow.State {
	return r.State
}

// Line itemises a requisition.
type Line struct {
	ID            int64
	RequisitionID uuid.UUID
	Description   string
	Quantity      decimal.Decimal
	UnitPrice     decimal.Decimal
	TotalPrice    decimal.Decimal
}

// Share grants another user visibility and optionally approval capability on
// one requisition, independent of the reporting hierarchy.
type Share struct {
	ID            int64
	RequisitionID uuid.UUID
	SharedWithID  int64
	CanApprove    bool
	CreatedAt     time.Time
}

// Attachment references a blob stored by the file collaborator.
type Attachment struct {
	ID            int64
	RequisitionID uuid.UUID
	FileKey       string
	UploadedBy    int64
	UploadedAt    time.Time
}

var (
	// ErrNotFound indicates a missing requisition.
	ErrNotFound = errors.New("requisition: not found")
	// ErrDuplicateNarration indicates the requester already filed this narration.
	ErrDuplicateNarration = errors.New("requisition: narration already used by requester")
	// ErrDuplicateShare indicates the requisition is already shared with the user.
	ErrDuplicateShare = errors.New("requisition: already shared with user")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("requisition: invalid input")
)

// CreateInput groups the fields needed to open a draft requisition.
type CreateInput struct {
	RequesterID  int64
	Narration    string
	Amount       decimal.Decimal
	ExchangeRate decimal.Decimal
	CostCenterID *int64
	CategoryID   *int64
	Lines        []LineInput
}

// LineInput describes one requisition line.
type LineInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// Validate checks structural correctness of the draft.
func (in CreateInput) Validate() error {
	if in.RequesterID == 0 {
		return fmt.Errorf("%w: requester required", ErrValidation)
	}
	if in.Narration == "" {
		return fmt.Errorf("%w: narration required", ErrValidation)
	}
	if in.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if in.ExchangeRate.Sign() <= 0 {
		return fmt.Errorf("%w: exchange rate must be positive", ErrValidation)
	}
	for idx, line := range in.Lines {
		if line.Description == "" {
			return fmt.Errorf("%w: line %d missing description", ErrValidation, idx)
		}
		if line.Quantity.Sign() <= 0 {
			return fmt.Errorf("%w: line %d quantity must be positive", ErrValidation, idx)
		}
		if line.UnitPrice.Sign() < 0 {
			return fmt.Errorf("%w: line %d unit price must not be negative", ErrValidation, idx)
		}
	}
	return nil
}
