package stores

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

// Repository persists stores entities in PostgreSQL. The stock table carries
// a unique (warehouse_id, item_id) index; orders carry unique number and
// invoice_number indexes.
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

const transferColumns = `id, from_warehouse_id, to_warehouse_id, item_id, quantity::text, status,
requested_by, approved_by, approved_at, comments, created_at`

func (r *Repository) GetTransfer(ctx context.Context, id uuid.UUID) (StockTransfer, error) {
	return scanTransfer(r.pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM stock_transfers WHERE id=$1`, id))
}

func (r *Repository) GetStock(ctx context.Context, warehouseID, itemID int64) (Stock, error) {
	return scanStock(r.pool.QueryRow(ctx, `SELECT id, warehouse_id, item_id, quantity::text, updated_at
FROM stock WHERE warehouse_id=$1 AND item_id=$2`, warehouseID, itemID))
}

func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	var order Order
	var amountRaw, convertedRaw, shippingRaw, taxesRaw string
	err := r.pool.QueryRow(ctx, `SELECT id, number, invoice_number, supplier_id, amount::text, currency, saved_currency,
amount_converted::text, shipping_cost::text, taxes::text, created_at FROM orders WHERE id=$1`, id).
		Scan(&order.ID, &order.Number, &order.InvoiceNumber, &order.SupplierID, &amountRaw, &order.Currency,
			&order.SavedCurrency, &convertedRaw, &shippingRaw, &taxesRaw, &order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if order.Amount, err = decimal.NewFromString(amountRaw); err != nil {
		return Order{}, err
	}
	if order.AmountConverted, err = decimal.NewFromString(convertedRaw); err != nil {
		return Order{}, err
	}
	if order.ShippingCost, err = decimal.NewFromString(shippingRaw); err != nil {
		return Order{}, err
	}
	if order.Taxes, err = decimal.NewFromString(taxesRaw); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (r *Repository) GetBOM(ctx context.Context, id int64) (BillOfMaterials, error) {
	var bom BillOfMaterials
	err := r.pool.QueryRow(ctx, `SELECT id, finished_item_id, name, created_at FROM bills_of_materials WHERE id=$1`, id).
		Scan(&bom.ID, &bom.FinishedID, &bom.Name, &bom.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BillOfMaterials{}, ErrNotFound
	}
	if err != nil {
		return BillOfMaterials{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, bom_id, component_item_id, qty_per_unit::text
FROM bom_lines WHERE bom_id=$1 ORDER BY id`, id)
	if err != nil {
		return BillOfMaterials{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line BOMLine
		var qtyRaw string
		if err := rows.Scan(&line.ID, &line.BOMID, &line.ComponentID, &qtyRaw); err != nil {
			return BillOfMaterials{}, err
		}
		if line.QtyPerUnit, err = decimal.NewFromString(qtyRaw); err != nil {
			return BillOfMaterials{}, err
		}
		bom.Lines = append(bom.Lines, line)
	}
	return bom, rows.Err()
}

// ListBreaches returns thresholds whose item's total stock sits below the
// minimum, with the managers of the warehouses holding that item.
func (r *Repository) ListBreaches(ctx context.Context) ([]ThresholdBreach, error) {
	rows, err := r.pool.Query(ctx, `SELECT t.id, t.item_id, t.min_quantity::text, t.alert_sent,
i.code, i.name,
COALESCE(SUM(s.quantity), 0)::text,
COALESCE(ARRAY_AGG(DISTINCT u.email) FILTER (WHERE u.email IS NOT NULL), '{}')
FROM stock_thresholds t
JOIN items i ON i.id = t.item_id
LEFT JOIN stock s ON s.item_id = t.item_id
LEFT JOIN warehouses w ON w.id = s.warehouse_id
LEFT JOIN users u ON u.id = w.manager_id
GROUP BY t.id, i.id
HAVING COALESCE(SUM(s.quantity), 0) < t.min_quantity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var breaches []ThresholdBreach
	for rows.Next() {
		var breach ThresholdBreach
		var minRaw, totalRaw string
		if err := rows.Scan(&breach.Threshold.ID, &breach.Threshold.ItemID, &minRaw, &breach.Threshold.AlertSent,
			&breach.ItemCode, &breach.ItemName, &totalRaw, &breach.ManagerEmails); err != nil {
			return nil, err
		}
		if breach.Threshold.MinQuantity, err = decimal.NewFromString(minRaw); err != nil {
			return nil, err
		}
		if breach.TotalQuantity, err = decimal.NewFromString(totalRaw); err != nil {
			return nil, err
		}
		breaches = append(breaches, breach)
	}
	return breaches, rows.Err()
}

// ListRecovered returns alerted thresholds whose stock climbed back to the
// minimum, so the alert can re-arm.
func (r *Repository) ListRecovered(ctx context.Context) ([]StockThreshold, error) {
	rows, err := r.pool.Query(ctx, `SELECT t.id, t.item_id, t.min_quantity::text, t.alert_sent
FROM stock_thresholds t
LEFT JOIN stock s ON s.item_id = t.item_id
WHERE t.alert_sent
GROUP BY t.id
HAVING COALESCE(SUM(s.quantity), 0) >= t.min_quantity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var thresholds []StockThreshold
	for rows.Next() {
		var threshold StockThreshold
		var minRaw string
		if err := rows.Scan(&threshold.ID, &threshold.ItemID, &minRaw, &threshold.AlertSent); err != nil {
			return nil, err
		}
		if threshold.MinQuantity, err = decimal.NewFromString(minRaw); err != nil {
			return nil, err
		}
		thresholds = append(thresholds, threshold)
	}
	return thresholds, rows.Err()
}

type txRepository struct {
	q querier
}

func (t *txRepository) GetTransferForUpdate(ctx context.Context, id uuid.UUID) (StockTransfer, error) {
	return scanTransfer(t.q.QueryRow(ctx, `SELECT `+transferColumns+` FROM stock_transfers WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepository) InsertTransfer(ctx context.Context, transfer StockTransfer) error {
	_, err := t.q.Exec(ctx, `INSERT INTO stock_transfers (id, from_warehouse_id, to_warehouse_id, item_id, quantity, status, requested_by, comments, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		transfer.ID, transfer.FromWarehouseID, transfer.ToWarehouseID, transfer.ItemID,
		transfer.Quantity.String(), string(transfer.Status), transfer.RequestedBy, transfer.Comments, transfer.CreatedAt)
	return err
}

func (t *txRepository) SetTransferStatus(ctx context.Context, id uuid.UUID, status workflow.State, approvedBy *int64, at *time.Time) error {
	tag, err := t.q.Exec(ctx, `UPDATE stock_transfers SET status=$2, approved_by=$3, approved_at=$4 WHERE id=$1`,
		id, string(status), approvedBy, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) GetStockForUpdate(ctx context.Context, warehouseID, itemID int64) (Stock, error) {
	return scanStock(t.q.QueryRow(ctx, `SELECT id, warehouse_id, item_id, quantity::text, updated_at
FROM stock WHERE warehouse_id=$1 AND item_id=$2 FOR UPDATE`, warehouseID, itemID))
}

func (t *txRepository) UpsertStock(ctx context.Context, warehouseID, itemID int64, quantity decimal.Decimal) error {
	_, err := t.q.Exec(ctx, `INSERT INTO stock (warehouse_id, item_id, quantity, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (warehouse_id, item_id)
DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()`,
		warehouseID, itemID, quantity.String())
	return err
}

func (t *txRepository) InsertOrder(ctx context.Context, order Order) error {
	_, err := t.q.Exec(ctx, `INSERT INTO orders (id, number, invoice_number, supplier_id, amount, currency, saved_currency, amount_converted, shipping_cost, taxes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		order.ID, order.Number, order.InvoiceNumber, order.SupplierID, order.Amount.String(),
		order.Currency, order.SavedCurrency, order.AmountConverted.String(),
		order.ShippingCost.String(), order.Taxes.String(), order.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (t *txRepository) InsertSupplier(ctx context.Context, supplier Supplier) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO suppliers (name, email, phone, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		supplier.Name, supplier.Email, supplier.Phone, supplier.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepository) InsertWarehouse(ctx context.Context, warehouse Warehouse) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO warehouses (name, location, manager_id, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		warehouse.Name, warehouse.Location, warehouse.ManagerID, warehouse.CreatedAt).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	return id, err
}

func (t *txRepository) InsertUnit(ctx context.Context, unit UnitOfMeasure) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO units_of_measure (name, code) VALUES ($1, $2) RETURNING id`,
		unit.Name, unit.Code).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	return id, err
}

func (t *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO items (code, name, category_id, unit_id, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		item.Code, item.Name, item.CategoryID, item.UnitID, item.CreatedAt).Scan(&id)
	if isUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	return id, err
}

func (t *txRepository) InsertBOM(ctx context.Context, bom BillOfMaterials) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `INSERT INTO bills_of_materials (finished_item_id, name, created_at) VALUES ($1, $2, $3) RETURNING id`,
		bom.FinishedID, bom.Name, bom.CreatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, line := range bom.Lines {
		_, err := t.q.Exec(ctx, `INSERT INTO bom_lines (bom_id, component_item_id, qty_per_unit) VALUES ($1, $2, $3)`,
			id, line.ComponentID, line.QtyPerUnit.String())
		if err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (t *txRepository) InsertProduction(ctx context.Context, order ProductionOrder) error {
	_, err := t.q.Exec(ctx, `INSERT INTO production_orders (id, bom_id, warehouse_id, quantity, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		order.ID, order.BOMID, order.WarehouseID, order.Quantity.String(), string(order.Status), order.CreatedAt)
	return err
}

func (t *txRepository) GetProductionForUpdate(ctx context.Context, id uuid.UUID) (ProductionOrder, error) {
	var order ProductionOrder
	var qtyRaw, status string
	err := t.q.QueryRow(ctx, `SELECT id, bom_id, warehouse_id, quantity::text, status, started_at, completed_at, created_at
FROM production_orders WHERE id=$1 FOR UPDATE`, id).
		Scan(&order.ID, &order.BOMID, &order.WarehouseID, &qtyRaw, &status, &order.StartedAt, &order.CompletedAt, &order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductionOrder{}, ErrNotFound
	}
	if err != nil {
		return ProductionOrder{}, err
	}
	order.Status = workflow.State(status)
	order.Quantity, err = decimal.NewFromString(qtyRaw)
	return order, err
}

func (t *txRepository) SetProductionStatus(ctx context.Context, id uuid.UUID, status workflow.State, startedAt, completedAt *time.Time) error {
	tag, err := t.q.Exec(ctx, `UPDATE production_orders SET status=$2, started_at=$3, completed_at=$4 WHERE id=$1`,
		id, string(status), startedAt, completedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) UpsertThreshold(ctx context.Context, threshold StockThreshold) (StockThreshold, error) {
	var minRaw string
	err := t.q.QueryRow(ctx, `INSERT INTO stock_thresholds (item_id, min_quantity, alert_sent)
VALUES ($1, $2, FALSE)
ON CONFLICT (item_id)
DO UPDATE SET min_quantity = EXCLUDED.min_quantity, alert_sent = FALSE
RETURNING id, item_id, min_quantity::text, alert_sent`,
		threshold.ItemID, threshold.MinQuantity.String()).
		Scan(&threshold.ID, &threshold.ItemID, &minRaw, &threshold.AlertSent)
	if err != nil {
		return StockThreshold{}, err
	}
	threshold.MinQuantity, err = decimal.NewFromString(minRaw)
	return threshold, err
}

func (t *txRepository) SetAlertSent(ctx context.Context, thresholdID int64, sent bool) error {
	_, err := t.q.Exec(ctx, `UPDATE stock_thresholds SET alert_sent=$2 WHERE id=$1`, thresholdID, sent)
	return err
}

func scanTransfer(row pgx.Row) (StockTransfer, error) {
	var transfer StockTransfer
	var qtyRaw, status string
	err := row.Scan(&transfer.ID, &transfer.FromWarehouseID, &transfer.ToWarehouseID, &transfer.ItemID,
		&qtyRaw, &status, &transfer.RequestedBy, &transfer.ApprovedBy, &transfer.ApprovedAt,
		&transfer.Comments, &transfer.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockTransfer{}, ErrNotFound
	}
	if err != nil {
		return StockTransfer{}, err
	}
	transfer.Status = workflow.State(status)
	transfer.Quantity, err = decimal.NewFromString(qtyRaw)
	return transfer, err
}

func scanStock(row pgx.Row) (Stock, error) {
	var stock Stock
	var raw string
	err := row.Scan(&stock.ID, &stock.WarehouseID, &stock.ItemID, &raw, &stock.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stock{}, ErrStockNotFound
	}
	if err != nil {
		return Stock{}, err
	}
	stock.Quantity, err = decimal.NewFromString(raw)
	return stock, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
