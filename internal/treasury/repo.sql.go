package treasury

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	platformdb "github.com/kivu-erp/kivu-erp/internal/platform/db"
)

// Repository persists cash accounts, transfers, payments, and forecasts in
// PostgreSQL.
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

func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (CashAccount, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT id, number, name, group_id, currency, balance::text, assigned_to, created_at, updated_at
FROM cash_accounts WHERE id=$1`, id))
}

func (r *Repository) ListAccounts(ctx context.Context) ([]CashAccount, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, number, name, group_id, currency, balance::text, assigned_to, created_at, updated_at
FROM cash_accounts ORDER BY number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []CashAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *Repository) ListForecasts(ctx context.Context, periodID int64) ([]CashFlowForecast, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, cash_account_id, period_id, inflow::text, outflow::text, updated_at
FROM cash_flow_forecasts WHERE period_id=$1 ORDER BY cash_account_id`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var forecasts []CashFlowForecast
	for rows.Next() {
		var forecast CashFlowForecast
		var inflowRaw, outflowRaw string
		if err := rows.Scan(&forecast.ID, &forecast.CashAccountID, &forecast.PeriodID, &inflowRaw, &outflowRaw, &forecast.UpdatedAt); err != nil {
			return nil, err
		}
		if forecast.Inflow, err = decimal.NewFromString(inflowRaw); err != nil {
			return nil, err
		}
		if forecast.Outflow, err = decimal.NewFromString(outflowRaw); err != nil {
			return nil, err
		}
		forecasts = append(forecasts, forecast)
	}
	return forecasts, rows.Err()
}

type txRepository struct {
	q querier
}

func (t *txRepository) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (CashAccount, error) {
	return scanAccount(t.q.QueryRow(ctx, `SELECT id, number, name, group_id, currency, balance::text, assigned_to, created_at, updated_at
FROM cash_accounts WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepository) SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	tag, err := t.q.Exec(ctx, `UPDATE cash_accounts SET balance=$2, updated_at=NOW() WHERE id=$1`, id, balance.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (t *txRepository) InsertTransfer(ctx context.Context, transfer AccountTransfer) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO account_transfers (from_account_id, to_account_id, amount, exchange_rate, amount_converted, transfer_date, reference, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW()) RETURNING id`,
		transfer.FromAccountID, transfer.ToAccountID, transfer.Amount.String(), transfer.ExchangeRate.String(),
		transfer.AmountConverted.String(), transfer.Date, transfer.Reference).Scan(&id)
	return id, err
}

func (t *txRepository) InsertPayment(ctx context.Context, payment Payment) error {
	_, err := t.q.Exec(ctx, `INSERT INTO payments (id, requisition_id, cash_account_id, amount, requisition_amount, exchange_rate, payment_date, reference, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		payment.ID, payment.RequisitionID, payment.CashAccountID, payment.Amount.String(),
		payment.RequisitionAmount.String(), payment.ExchangeRate.String(), payment.Date, payment.Reference)
	return err
}

func (t *txRepository) InsertAccount(ctx context.Context, account CashAccount) error {
	_, err := t.q.Exec(ctx, `INSERT INTO cash_accounts (id, number, name, group_id, currency, balance, assigned_to, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		account.ID, account.Number, account.Name, account.GroupID, account.Currency,
		account.Balance.String(), account.AssignedTo, account.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateNumber
	}
	return err
}

func (t *txRepository) SetAssignee(ctx context.Context, id uuid.UUID, userID int64, at time.Time) error {
	tag, err := t.q.Exec(ctx, `UPDATE cash_accounts SET assigned_to=$2, updated_at=$3 WHERE id=$1`, id, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	_, err = t.q.Exec(ctx, `INSERT INTO cash_account_assignments (cash_account_id, assigned_to, assigned_at)
VALUES ($1, $2, $3)`, id, userID, at)
	return err
}

func (t *txRepository) UpsertForecast(ctx context.Context, forecast CashFlowForecast) (CashFlowForecast, error) {
	var inflowRaw, outflowRaw string
	err := t.q.QueryRow(ctx, `INSERT INTO cash_flow_forecasts (cash_account_id, period_id, inflow, outflow, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (cash_account_id, period_id)
DO UPDATE SET inflow = EXCLUDED.inflow, outflow = EXCLUDED.outflow, updated_at = NOW()
RETURNING id, cash_account_id, period_id, inflow::text, outflow::text, updated_at`,
		forecast.CashAccountID, forecast.PeriodID, forecast.Inflow.String(), forecast.Outflow.String()).
		Scan(&forecast.ID, &forecast.CashAccountID, &forecast.PeriodID, &inflowRaw, &outflowRaw, &forecast.UpdatedAt)
	if err != nil {
		return CashFlowForecast{}, err
	}
	if forecast.Inflow, err = decimal.NewFromString(inflowRaw); err != nil {
		return CashFlowForecast{}, err
	}
	if forecast.Outflow, err = decimal.NewFromString(outflowRaw); err != nil {
		return CashFlowForecast{}, err
	}
	return forecast, nil
}

func scanAccount(row pgx.Row) (CashAccount, error) {
	var account CashAccount
	var raw string
	err := row.Scan(&account.ID, &account.Number, &account.Name, &account.GroupID, &account.Currency,
		&raw, &account.AssignedTo, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CashAccount{}, ErrAccountNotFound
	}
	if err != nil {
		return CashAccount{}, err
	}
	account.Balance, err = decimal.NewFromString(raw)
	return account, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
