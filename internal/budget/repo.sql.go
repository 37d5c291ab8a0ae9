package budget

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	platformdb "github.com/kivu-erp/kivu-erp/internal/platform/db"
)

// Repository persists budgets, departments, and categories in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return platformdb.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
}

const budgetColumns = `id, category_id, department_id, week, month, year,
amount::text, rate::text, amount_converted::text, created_at, updated_at`

func (r *Repository) GetBudget(ctx context.Context, id int64) (Budget, error) {
	return scanBudget(r.pool.QueryRow(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id=$1`, id))
}

func (r *Repository) ListBudgets(ctx context.Context, departmentID int64, month, year int) ([]Budget, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+budgetColumns+` FROM budgets
WHERE department_id=$1 AND month=$2 AND year=$3 ORDER BY week, category_id`, departmentID, month, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var budgets []Budget
	for rows.Next() {
		budget, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, budget)
	}
	return budgets, rows.Err()
}

func (r *Repository) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, supervisor_id, created_at FROM departments ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var departments []Department
	for rows.Next() {
		var department Department
		if err := rows.Scan(&department.ID, &department.Name, &department.SupervisorID, &department.CreatedAt); err != nil {
			return nil, err
		}
		departments = append(departments, department)
	}
	return departments, rows.Err()
}

func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM budget_categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var categories []Category
	for rows.Next() {
		var category Category
		if err := rows.Scan(&category.ID, &category.Name); err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

type txRepository struct {
	q querier
}

func (t *txRepository) InsertBudget(ctx context.Context, budget Budget) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO budgets
(category_id, department_id, week, month, year, amount, rate, amount_converted, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		budget.CategoryID, budget.DepartmentID, budget.Week, budget.Month, budget.Year,
		budget.Amount, budget.Rate, budget.AmountConverted, budget.CreatedAt, budget.UpdatedAt).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	return id, err
}

func (t *txRepository) GetBudgetForUpdate(ctx context.Context, id int64) (Budget, error) {
	return scanBudget(t.q.QueryRow(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepository) UpdateBudget(ctx context.Context, budget Budget) error {
	_, err := t.q.Exec(ctx, `UPDATE budgets SET category_id=$2, department_id=$3, week=$4, month=$5, year=$6,
amount=$7, rate=$8, amount_converted=$9, updated_at=$10 WHERE id=$1`,
		budget.ID, budget.CategoryID, budget.DepartmentID, budget.Week, budget.Month, budget.Year,
		budget.Amount, budget.Rate, budget.AmountConverted, budget.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (t *txRepository) InsertDepartment(ctx context.Context, department Department) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO departments (name, supervisor_id, created_at) VALUES ($1,$2,$3) RETURNING id`,
		department.Name, department.SupervisorID, department.CreatedAt).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	return id, err
}

func (t *txRepository) InsertCategory(ctx context.Context, category Category) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO budget_categories (name) VALUES ($1) RETURNING id`, category.Name).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	return id, err
}

func scanBudget(row pgx.Row) (Budget, error) {
	var budget Budget
	var amountRaw, rateRaw, convertedRaw string
	err := row.Scan(&budget.ID, &budget.CategoryID, &budget.DepartmentID, &budget.Week, &budget.Month, &budget.Year,
		&amountRaw, &rateRaw, &convertedRaw, &budget.CreatedAt, &budget.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Budget{}, ErrNotFound
	}
	if err != nil {
		return Budget{}, err
	}
	if budget.Amount, err = decimal.NewFromString(amountRaw); err != nil {
		return Budget{}, err
	}
	if budget.Rate, err = decimal.NewFromString(rateRaw); err != nil {
		return Budget{}, err
	}
	if budget.AmountConverted, err = decimal.NewFromString(convertedRaw); err != nil {
		return Budget{}, err
	}
	return budget, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
