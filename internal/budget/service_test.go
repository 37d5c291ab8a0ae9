package budget

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	budgets     map[int64]Budget
	departments map[int64]Department
	categories  map[int64]Category
	nextID      int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		budgets:     map[int64]Budget{},
		departments: map[int64]Department{},
		categories:  map[int64]Category{},
	}
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *fakeRepo) slotTaken(budget Budget) bool {
	for _, existing := range r.budgets {
		if existing.ID != budget.ID &&
			existing.CategoryID == budget.CategoryID &&
			existing.DepartmentID == budget.DepartmentID &&
			existing.Week == budget.Week &&
			existing.Month == budget.Month &&
			existing.Year == budget.Year {
			return true
		}
	}
	return false
}

func (r *fakeRepo) InsertBudget(_ context.Context, budget Budget) (int64, error) {
	if r.slotTaken(budget) {
		return 0, ErrDuplicate
	}
	r.nextID++
	budget.ID = r.nextID
	r.budgets[budget.ID] = budget
	return budget.ID, nil
}

func (r *fakeRepo) GetBudget(_ context.Context, id int64) (Budget, error) {
	budget, ok := r.budgets[id]
	if !ok {
		return Budget{}, ErrNotFound
	}
	return budget, nil
}

func (r *fakeRepo) GetBudgetForUpdate(ctx context.Context, id int64) (Budget, error) {
	return r.GetBudget(ctx, id)
}

func (r *fakeRepo) UpdateBudget(_ context.Context, budget Budget) error {
	if _, ok := r.budgets[budget.ID]; !ok {
		return ErrNotFound
	}
	if r.slotTaken(budget) {
		return ErrDuplicate
	}
	r.budgets[budget.ID] = budget
	return nil
}

func (r *fakeRepo) ListBudgets(_ context.Context, departmentID int64, month, year int) ([]Budget, error) {
	var budgets []Budget
	for _, budget := range r.budgets {
		if budget.DepartmentID == departmentID && budget.Month == month && budget.Year == year {
			budgets = append(budgets, budget)
		}
	}
	return budgets, nil
}

func (r *fakeRepo) ListDepartments(_ context.Context) ([]Department, error) {
	var departments []Department
	for _, department := range r.departments {
		departments = append(departments, department)
	}
	return departments, nil
}

func (r *fakeRepo) ListCategories(_ context.Context) ([]Category, error) {
	var categories []Category
	for _, category := range r.categories {
		categories = append(categories, category)
	}
	return categories, nil
}

func (r *fakeRepo) InsertDepartment(_ context.Context, department Department) (int64, error) {
	for _, existing := range r.departments {
		if existing.Name == department.Name {
			return 0, ErrDuplicate
		}
	}
	r.nextID++
	department.ID = r.nextID
	r.departments[department.ID] = department
	return department.ID, nil
}

func (r *fakeRepo) InsertCategory(_ context.Context, category Category) (int64, error) {
	r.nextID++
	category.ID = r.nextID
	r.categories[category.ID] = category
	return category.ID, nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	svc := NewService(repo, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) })
	return svc, repo
}

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

func slot() BudgetInput {
	return BudgetInput{
		CategoryID:   1,
		DepartmentID: 2,
		Week:         "S1",
		Month:        3,
		Year:         2026,
		Amount:       dec("100"),
		Rate:         dec("2500"),
	}
}

func TestCreateBudgetComputesConversion(t *testing.T) {
	svc, _ := newTestService(t)

	budget, err := svc.CreateBudget(context.Background(), slot())
	require.NoError(t, err)
	require.True(t, budget.AmountConverted.Equal(dec("250000")))
}

func TestCreateBudgetDuplicateSlot(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateBudget(context.Background(), slot())
	require.NoError(t, err)

	_, err = svc.CreateBudget(context.Background(), slot())
	require.ErrorIs(t, err, ErrDuplicate)

	// A different week in the same month is a distinct slot.
	other := slot()
	other.Week = "S2"
	_, err = svc.CreateBudget(context.Background(), other)
	require.NoError(t, err)
}

func TestCreateBudgetValidation(t *testing.T) {
	svc, _ := newTestService(t)

	for name, mutate := range map[string]func(*BudgetInput){
		"bad week":      func(in *BudgetInput) { in.Week = "S6" },
		"bad month":     func(in *BudgetInput) { in.Month = 13 },
		"zero amount":   func(in *BudgetInput) { in.Amount = decimal.Zero },
		"negative rate": func(in *BudgetInput) { in.Rate = dec("-1") },
		"missing dept":  func(in *BudgetInput) { in.DepartmentID = 0 },
		"ancient year":  func(in *BudgetInput) { in.Year = 1900 },
	} {
		t.Run(name, func(t *testing.T) {
			input := slot()
			mutate(&input)
			_, err := svc.CreateBudget(context.Background(), input)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestUpdateBudgetRecomputesOnAmountChange(t *testing.T) {
	svc, _ := newTestService(t)

	budget, err := svc.CreateBudget(context.Background(), slot())
	require.NoError(t, err)

	input := slot()
	input.Amount = dec("200")
	updated, err := svc.UpdateBudget(context.Background(), budget.ID, input)
	require.NoError(t, err)
	require.True(t, updated.AmountConverted.Equal(dec("500000")))
}

func TestUpdateBudgetKeepsConversionWhenSlotMoves(t *testing.T) {
	svc, repo := newTestService(t)

	budget, err := svc.CreateBudget(context.Background(), slot())
	require.NoError(t, err)

	// Simulate a stale stored conversion that a slot-only update must not touch.
	stored := repo.budgets[budget.ID]
	stored.AmountConverted = dec("999")
	repo.budgets[budget.ID] = stored

	input := slot()
	input.Week = "S3"
	updated, err := svc.UpdateBudget(context.Background(), budget.ID, input)
	require.NoError(t, err)
	require.Equal(t, "S3", updated.Week)
	require.True(t, updated.AmountConverted.Equal(dec("999")))
}

func TestUpdateBudgetRecomputesOnRateChange(t *testing.T) {
	svc, _ := newTestService(t)

	budget, err := svc.CreateBudget(context.Background(), slot())
	require.NoError(t, err)

	input := slot()
	input.Rate = dec("2800")
	updated, err := svc.UpdateBudget(context.Background(), budget.ID, input)
	require.NoError(t, err)
	require.True(t, updated.AmountConverted.Equal(dec("280000")))
}

func TestUpdateBudgetIntoTakenSlot(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateBudget(context.Background(), slot())
	require.NoError(t, err)

	other := slot()
	other.Week = "S2"
	second, err := svc.CreateBudget(context.Background(), other)
	require.NoError(t, err)

	_, err = svc.UpdateBudget(context.Background(), second.ID, slot())
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestCreateDepartmentUniqueName(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateDepartment(context.Background(), Department{Name: "Logistics"})
	require.NoError(t, err)

	_, err = svc.CreateDepartment(context.Background(), Department{Name: "Logistics"})
	require.ErrorIs(t, err, ErrDuplicate)

	_, err = svc.CreateDepartment(context.Background(), Department{Name: "  "})
	require.ErrorIs(t, err, ErrValidation)
}
