package requisition

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
	"github.com/kivu-erp/kivu-erp/internal/workflow"
)

// Repository persists requisitions in PostgreSQL. The requisitions table
// carries a unique (requester_id, narration) index and shares a unique
// (requisition_id, shared_with_id) index.
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

const requisitionColumns = `id, requester_id, narration, amount::text, exchange_rate::text, amount_converted::text,
cost_center_id, category_id, state, created_at, modified_at`

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Requisition, error) {
	req, err := scanRequisition(r.pool.QueryRow(ctx, `SELECT `+requisitionColumns+` FROM requisitions WHERE id=$1`, id))
	if err != nil {
		return Requisition{}, err
	}
	req.Lines, err = r.listLines(ctx, r.pool, id)
	return req, err
}

func (r *Repository) ListByRequester(ctx context.Context, requesterID int64) ([]Requisition, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requisitionColumns+` FROM requisitions
WHERE requester_id=$1 ORDER BY created_at DESC`, requesterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reqs []Requisition
	for rows.Next() {
		req, err := scanRequisition(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (r *Repository) ListShares(ctx context.Context, id uuid.UUID) ([]Share, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, requisition_id, shared_with_id, can_approve, created_at
FROM requisition_shares WHERE requisition_id=$1 ORDER BY created_at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var shares []Share
	for rows.Next() {
		var share Share
		if err := rows.Scan(&share.ID, &share.RequisitionID, &share.SharedWithID, &share.CanApprove, &share.CreatedAt); err != nil {
			return nil, err
		}
		shares = append(shares, share)
	}
	return shares, rows.Err()
}

func (r *Repository) listLines(ctx context.Context, q querier, id uuid.UUID) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, requisition_id, description, quantity::text, unit_price::text, total_price::text
FROM requisition_lines WHERE requisition_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		var qtyRaw, priceRaw, totalRaw string
		if err := rows.Scan(&line.ID, &line.RequisitionID, &line.Description, &qtyRaw, &priceRaw, &totalRaw); err != nil {
			return nil, err
		}
		if line.Quantity, err = decimal.NewFromString(qtyRaw); err != nil {
			return nil, err
		}
		if line.UnitPrice, err = decimal.NewFromString(priceRaw); err != nil {
			return nil, err
		}
		if line.TotalPrice, err = decimal.NewFromString(totalRaw); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type txRepository struct {
	q querier
}

func (t *txRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (Requisition, error) {
	return scanRequisition(t.q.QueryRow(ctx, `SELECT `+requisitionColumns+` FROM requisitions WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepository) Insert(ctx context.Context, req Requisition) error {
	_, err := t.q.Exec(ctx, `INSERT INTO requisitions (id, requester_id, narration, amount, exchange_rate, cost_center_id, category_id, state, created_at, modified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		req.ID, req.RequesterID, req.Narration, req.Amount.String(), req.ExchangeRate.String(),
		req.CostCenterID, req.CategoryID, string(req.State), req.CreatedAt, req.ModifiedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateNarration
	}
	return err
}

func (t *txRepository) InsertLines(ctx context.Context, id uuid.UUID, lines []Line) error {
	for _, line := range lines {
		_, err := t.q.Exec(ctx, `INSERT INTO requisition_lines (requisition_id, description, quantity, unit_price, total_price)
VALUES ($1, $2, $3, $4, $5)`,
			id, line.Description, line.Quantity.String(), line.UnitPrice.String(), line.TotalPrice.String())
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) SetState(ctx context.Context, id uuid.UUID, state workflow.State, at time.Time) error {
	tag, err := t.q.Exec(ctx, `UPDATE requisitions SET state=$2, modified_at=$3 WHERE id=$1`, id, string(state), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetConverted writes amount_converted only when it is still unset; the
// returned bool reports whether this call performed the write.
func (t *txRepository) SetConverted(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	tag, err := t.q.Exec(ctx, `UPDATE requisitions SET amount_converted=$2 WHERE id=$1 AND amount_converted IS NULL`,
		id, amount.String())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepository) InsertShare(ctx context.Context, share Share) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO requisition_shares (requisition_id, shared_with_id, can_approve, created_at)
VALUES ($1, $2, $3, $4) RETURNING id`,
		share.RequisitionID, share.SharedWithID, share.CanApprove, share.CreatedAt).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicateShare
	}
	return id, err
}

func (t *txRepository) InsertAttachment(ctx context.Context, attachment Attachment) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO requisition_attachments (requisition_id, file_key, uploaded_by, uploaded_at)
VALUES ($1, $2, $3, $4) RETURNING id`,
		attachment.RequisitionID, attachment.FileKey, attachment.UploadedBy, attachment.UploadedAt).Scan(&id)
	return id, err
}

func scanRequisition(row pgx.Row) (Requisition, error) {
	var req Requisition
	var amountRaw, rateRaw string
	var convertedRaw *string
	var state string
	err := row.Scan(&req.ID, &req.RequesterID, &req.Narration, &amountRaw, &rateRaw, &convertedRaw,
		&req.CostCenterID, &req.CategoryID, &state, &req.CreatedAt, &req.ModifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Requisition{}, ErrNotFound
	}
	if err != nil {
		return Requisition{}, err
	}
	req.State = workflow.State(state)
	if req.Amount, err = decimal.NewFromString(amountRaw); err != nil {
		return Requisition{}, err
	}
	if req.ExchangeRate, err = decimal.NewFromString(rateRaw); err != nil {
		return Requisition{}, err
	}
	if convertedRaw != nil {
		converted, err := decimal.NewFromString(*convertedRaw)
		if err != nil {
			return Requisition{}, err
		}
		req.AmountConverted = &converted
	}
	return req, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
