package budget

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kivu-erp/kivu-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBudget(ctx context.Context, id int64) (Budget, error)
	ListBudgets(ctx context.Context, departmentID int64, month, year int) ([]Budget, error)
	ListDepartments(ctx context.Context) ([]Department, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

// TxRepository exposes transactional budget operations.
type TxRepository interface {
	InsertBudget(ctx context.Context, budget Budget) (int64, error)
	GetBudgetForUpdate(ctx context.Context, id int64) (Budget, error)
	UpdateBudget(ctx context.Context, budget Budget) error
	InsertDepartment(ctx context.Context, department Department) (int64, error)
	InsertCategory(ctx context.Context, category Category) (int64, error)
}

// AuditPort records budget events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages budget allocations.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the budget service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	s.now = now
}

// CreateDepartment registers a department. Names are unique.
func (s *Service) CreateDepartment(ctx context.Context, department Department) (Department, error) {
	if strings.TrimSpace(department.Name) == "" {
		return Department{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	department.CreatedAt = s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertDepartment(ctx, department)
		department.ID = id
		return err
	})
	return department, err
}

// CreateCategory registers a spending category.
func (s *Service) CreateCategory(ctx context.Context, category Category) (Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return Category{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertCategory(ctx, category)
		category.ID = id
		return err
	})
	return category, err
}

// CreateBudget allocates an amount to one slot. The converted amount is
// computed at creation from amount and rate.
func (s *Service) CreateBudget(ctx context.Context, input BudgetInput) (Budget, error) {
	if err := input.Validate(); err != nil {
		return Budget{}, err
	}
	now := s.now()
	budget := Budget{
		CategoryID:      input.CategoryID,
		DepartmentID:    input.DepartmentID,
		Week:            input.Week,
		Month:           input.Month,
		Year:            input.Year,
		Amount:          input.Amount,
		Rate:            input.Rate,
		AmountConverted: input.Amount.Mul(input.Rate),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertBudget(ctx, budget)
		budget.ID = id
		return err
	})
	if err != nil {
		return Budget{}, err
	}
	s.recordAudit(ctx, "budget.create", budget)
	return budget, nil
}

// UpdateBudget rewrites a budget's slot and amounts. The converted amount is
// recomputed only when the amount or the rate actually changed; an update that
// merely moves the slot keeps the stored conversion.
func (s *Service) UpdateBudget(ctx context.Context, id int64, input BudgetInput) (Budget, error) {
	if err := input.Validate(); err != nil {
		return Budget{}, err
	}
	var budget Budget
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		budget, err = tx.GetBudgetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !budget.Amount.Equal(input.Amount) || !budget.Rate.Equal(input.Rate) {
			budget.AmountConverted = input.Amount.Mul(input.Rate)
		}
		budget.CategoryID = input.CategoryID
		budget.DepartmentID = input.DepartmentID
		budget.Week = input.Week
		budget.Month = input.Month
		budget.Year = input.Year
		budget.Amount = input.Amount
		budget.Rate = input.Rate
		budget.UpdatedAt = s.now()
		return tx.UpdateBudget(ctx, budget)
	})
	if err != nil {
		return Budget{}, err
	}
	s.recordAudit(ctx, "budget.update", budget)
	return budget, nil
}

// GetBudget returns one budget.
func (s *Service) GetBudget(ctx context.Context, id int64) (Budget, error) {
	return s.repo.GetBudget(ctx, id)
}

// ListBudgets returns the budgets of a department for one month.
func (s *Service) ListBudgets(ctx context.Context, departmentID int64, month, year int) ([]Budget, error) {
	return s.repo.ListBudgets(ctx, departmentID, month, year)
}

// ListDepartments returns all departments.
func (s *Service) ListDepartments(ctx context.Context) ([]Department, error) {
	return s.repo.ListDepartments(ctx)
}

// ListCategories returns all categories.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) recordAudit(ctx context.Context, action string, budget Budget) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "budget",
		EntityID: fmt.Sprintf("%d", budget.ID),
		Meta: map[string]any{
			"department_id": budget.DepartmentID,
			"amount":        budget.Amount.String(),
		},
		At: s.now(),
	})
}
