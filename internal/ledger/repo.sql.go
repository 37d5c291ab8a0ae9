package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	platformdb "github.com/kivu-erp/kivu-erp/internal/platform/db"
	"github.com/kivu-erp/kivu-erp/internal/shared"
)

// Repository persists the chart of accounts, journals, periods, and
// transactions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// querier abstracts pool vs transaction so reads share one implementation.
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

func (r *Repository) GetJournal(ctx context.Context, id int64) (Journal, error) {
	return scanJournal(r.pool.QueryRow(ctx, `SELECT id, code, name, currency FROM journals WHERE id=$1`, id))
}

func (r *Repository) GetPeriod(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(r.pool.QueryRow(ctx, `SELECT id, name, start_date, end_date, closed, closed_at
FROM fiscal_periods WHERE id=$1`, id))
}

func (r *Repository) ListAccounts(ctx context.Context, page shared.Pagination) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, class_number, account_type, currency, parent_id, created_at
FROM accounts ORDER BY class_number, code LIMIT $1 OFFSET $2`, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// AggregateItems sums debit and credit per account over transactions dated in
// [from, to]. A zero from bound means no lower cutoff.
func (r *Repository) AggregateItems(ctx context.Context, from, to time.Time) ([]AccountAggregate, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.code, a.name, a.class_number, a.account_type, a.currency, a.parent_id, a.created_at,
COALESCE(SUM(i.amount) FILTER (WHERE i.is_debit), 0)::text,
COALESCE(SUM(i.amount) FILTER (WHERE NOT i.is_debit), 0)::text
FROM accounts a
JOIN transaction_items i ON i.account_id = a.id
JOIN transactions t ON t.id = i.transaction_id
WHERE ($1::date IS NULL OR t.entry_date >= $1) AND t.entry_date <= $2
GROUP BY a.id
ORDER BY a.class_number, a.code`, nullableDate(from), to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var aggregates []AccountAggregate
	for rows.Next() {
		var agg AccountAggregate
		var debitRaw, creditRaw string
		if err := rows.Scan(&agg.Account.ID, &agg.Account.Code, &agg.Account.Name, &agg.Account.ClassNumber,
			&agg.Account.Type, &agg.Account.Currency, &agg.Account.ParentID, &agg.Account.CreatedAt,
			&debitRaw, &creditRaw); err != nil {
			return nil, err
		}
		if agg.Debit, err = decimal.NewFromString(debitRaw); err != nil {
			return nil, err
		}
		if agg.Credit, err = decimal.NewFromString(creditRaw); err != nil {
			return nil, err
		}
		aggregates = append(aggregates, agg)
	}
	return aggregates, rows.Err()
}

type txRepository struct {
	q querier
}

func (t *txRepository) FindPeriodByDateForUpdate(ctx context.Context, date time.Time) (Period, error) {
	period, err := scanPeriod(t.q.QueryRow(ctx, `SELECT id, name, start_date, end_date, closed, closed_at
FROM fiscal_periods WHERE start_date <= $1 AND end_date >= $1 FOR UPDATE`, date))
	if errors.Is(err, ErrPeriodNotFound) {
		return Period{}, ErrNoPeriod
	}
	return period, err
}

func (t *txRepository) GetAccountsByIDs(ctx context.Context, ids []int64) (map[int64]Account, error) {
	rows, err := t.q.Query(ctx, `SELECT id, code, name, class_number, account_type, currency, parent_id, created_at
FROM accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := make(map[int64]Account, len(ids))
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts[account.ID] = account
	}
	return accounts, rows.Err()
}

func (t *txRepository) InsertTransaction(ctx context.Context, tx Transaction) (int64, error) {
	var rate *string
	if tx.ExchangeRate != nil {
		raw := tx.ExchangeRate.String()
		rate = &raw
	}
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO transactions (entry_date, journal_id, reference, description, payment_id, transfer_id, exchange_rate, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW()) RETURNING id`,
		tx.Date, tx.JournalID, tx.Reference, tx.Description, tx.PaymentID, tx.TransferID, rate).Scan(&id)
	return id, err
}

func (t *txRepository) InsertItems(ctx context.Context, txID int64, items []TransactionItem) error {
	for _, item := range items {
		_, err := t.q.Exec(ctx, `INSERT INTO transaction_items (transaction_id, account_id, amount, currency, is_debit)
VALUES ($1, $2, $3, $4, $5)`, txID, item.AccountID, item.Amount.String(), item.Currency, item.IsDebit)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) CreateAccount(ctx context.Context, account Account) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO accounts (code, name, class_number, account_type, currency, parent_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING id`,
		account.Code, account.Name, account.ClassNumber, account.Type, account.Currency, account.ParentID).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicateCode
	}
	return id, err
}

func (t *txRepository) CreateJournal(ctx context.Context, journal Journal) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO journals (code, name, currency) VALUES ($1, $2, $3) RETURNING id`,
		journal.Code, journal.Name, journal.Currency).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicateCode
	}
	return id, err
}

func (t *txRepository) CreatePeriod(ctx context.Context, period Period) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO fiscal_periods (name, start_date, end_date, closed)
VALUES ($1, $2, $3, FALSE) RETURNING id`,
		period.Name, period.StartDate, period.EndDate).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicateCode
	}
	return id, err
}

func (t *txRepository) ClosePeriod(ctx context.Context, periodID int64, at time.Time) error {
	tag, err := t.q.Exec(ctx, `UPDATE fiscal_periods SET closed = TRUE, closed_at = $2 WHERE id = $1 AND NOT closed`, periodID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodClosed
	}
	return nil
}

func scanJournal(row pgx.Row) (Journal, error) {
	var journal Journal
	err := row.Scan(&journal.ID, &journal.Code, &journal.Name, &journal.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return Journal{}, ErrJournalNotFound
	}
	return journal, err
}

func scanPeriod(row pgx.Row) (Period, error) {
	var period Period
	err := row.Scan(&period.ID, &period.Name, &period.StartDate, &period.EndDate, &period.Closed, &period.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrPeriodNotFound
	}
	return period, err
}

func scanAccount(rows pgx.Rows) (Account, error) {
	var account Account
	err := rows.Scan(&account.ID, &account.Code, &account.Name, &account.ClassNumber,
		&account.Type, &account.Currency, &account.ParentID, &account.CreatedAt)
	return account, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
