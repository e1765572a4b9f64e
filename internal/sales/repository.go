package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/niaga-erp/niaga-erp/internal/platform/db"
	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// Repository persists sales documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// NextNumber allocates the next document number for a kind within the
// current month.
func (r *Repository) NextNumber(ctx context.Context, scope shared.Scope, kind string) (string, error) {
	period := time.Now().Format("200601")
	var seq int64
	err := r.pool.QueryRow(ctx, `INSERT INTO doc_sequences (tenant_id, company_id, kind, period, last_seq)
VALUES ($1,$2,$3,$4,1)
ON CONFLICT (tenant_id, company_id, kind, period)
DO UPDATE SET last_seq = doc_sequences.last_seq + 1
RETURNING last_seq`,
		scope.TenantID, scope.CompanyID, kind, period).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%04d", kind, period, seq), nil
}

const orderColumns = `id, tenant_id, company_id, number, customer_id, warehouse_id, status, invoice_status, notes, created_by, created_at`

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var so SalesOrder
	err := row.Scan(&so.ID, &so.TenantID, &so.CompanyID, &so.Number, &so.CustomerID, &so.WarehouseID,
		&so.Status, &so.InvoiceStatus, &so.Notes, &so.CreatedBy, &so.CreatedAt)
	return so, err
}

const lineQuery = `SELECT id, so_id, product_id, qty, unit_price, delivered_qty, invoiced_qty
FROM sales_order_lines WHERE so_id=$1 ORDER BY id`

func scanLines(rows pgx.Rows) ([]SOLine, error) {
	defer rows.Close()
	lines := []SOLine{}
	for rows.Next() {
		var line SOLine
		if err := rows.Scan(&line.ID, &line.SOID, &line.ProductID, &line.Qty, &line.UnitPrice,
			&line.DeliveredQty, &line.InvoicedQty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// GetOrder loads one order with its lines.
func (r *Repository) GetOrder(ctx context.Context, scope shared.Scope, soID int64) (SalesOrder, error) {
	so, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, soID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SalesOrder{}, ErrOrderNotFound
		}
		return SalesOrder{}, err
	}
	rows, err := r.pool.Query(ctx, lineQuery, so.ID)
	if err != nil {
		return SalesOrder{}, err
	}
	so.Lines, err = scanLines(rows)
	if err != nil {
		return SalesOrder{}, err
	}
	return so, nil
}

// ListOrders lists orders, newest first.
func (r *Repository) ListOrders(ctx context.Context, scope shared.Scope, status OrderStatus) ([]SalesOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM sales_orders
WHERE tenant_id=$1 AND company_id=$2 AND ($3::text IS NULL OR status=$3)
ORDER BY created_at DESC, id DESC LIMIT 200`,
		scope.TenantID, scope.CompanyID, nullStatus(string(status)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []SalesOrder{}
	for rows.Next() {
		so, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, so)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetDelivery loads one delivery with its lines.
func (r *Repository) GetDelivery(ctx context.Context, scope shared.Scope, deliveryID int64) (DeliveryOrder, error) {
	var do DeliveryOrder
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, company_id, so_id, number, delivered_at, delivered_by, notes, created_at
FROM delivery_orders WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, deliveryID).Scan(
		&do.ID, &do.TenantID, &do.CompanyID, &do.SOID, &do.Number,
		&do.DeliveredAt, &do.DeliveredBy, &do.Notes, &do.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DeliveryOrder{}, ErrOrderNotFound
		}
		return DeliveryOrder{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, delivery_id, so_line_id, product_id, batch_id, qty
FROM delivery_order_lines WHERE delivery_id=$1 ORDER BY id`, do.ID)
	if err != nil {
		return DeliveryOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line DeliveryLine
		if err := rows.Scan(&line.ID, &line.DeliveryID, &line.SOLineID, &line.ProductID, &line.BatchID, &line.Qty); err != nil {
			return DeliveryOrder{}, err
		}
		do.Lines = append(do.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return DeliveryOrder{}, err
	}
	return do, nil
}

// ListDeliveries lists deliveries for one order.
func (r *Repository) ListDeliveries(ctx context.Context, scope shared.Scope, soID int64) ([]DeliveryOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, company_id, so_id, number, delivered_at, delivered_by, notes, created_at
FROM delivery_orders WHERE tenant_id=$1 AND company_id=$2 AND so_id=$3 ORDER BY delivered_at, id`,
		scope.TenantID, scope.CompanyID, soID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	deliveries := []DeliveryOrder{}
	for rows.Next() {
		var do DeliveryOrder
		if err := rows.Scan(&do.ID, &do.TenantID, &do.CompanyID, &do.SOID, &do.Number,
			&do.DeliveredAt, &do.DeliveredBy, &do.Notes, &do.CreatedAt); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, do)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deliveries, nil
}

// GetInvoice loads one invoice with its lines.
func (r *Repository) GetInvoice(ctx context.Context, scope shared.Scope, invoiceID int64) (ARInvoice, error) {
	var inv ARInvoice
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, company_id, so_id, number, due_date, total, created_by, created_at
FROM ar_invoices WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, invoiceID).Scan(
		&inv.ID, &inv.TenantID, &inv.CompanyID, &inv.SOID, &inv.Number,
		&inv.DueDate, &inv.Total, &inv.CreatedBy, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ARInvoice{}, ErrOrderNotFound
		}
		return ARInvoice{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, so_line_id, qty, unit_price
FROM ar_invoice_lines WHERE invoice_id=$1 ORDER BY id`, inv.ID)
	if err != nil {
		return ARInvoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.SOLineID, &line.Qty, &line.UnitPrice); err != nil {
			return ARInvoice{}, err
		}
		inv.Lines = append(inv.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return ARInvoice{}, err
	}
	return inv, nil
}

// ListInvoices lists invoices for one order.
func (r *Repository) ListInvoices(ctx context.Context, scope shared.Scope, soID int64) ([]ARInvoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, company_id, so_id, number, due_date, total, created_by, created_at
FROM ar_invoices WHERE tenant_id=$1 AND company_id=$2 AND so_id=$3 ORDER BY created_at, id`,
		scope.TenantID, scope.CompanyID, soID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	invoices := []ARInvoice{}
	for rows.Next() {
		var inv ARInvoice
		if err := rows.Scan(&inv.ID, &inv.TenantID, &inv.CompanyID, &inv.SOID, &inv.Number,
			&inv.DueDate, &inv.Total, &inv.CreatedBy, &inv.CreatedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *txRepository) InsertOrder(ctx context.Context, so SalesOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_orders (tenant_id, company_id, number, customer_id, warehouse_id, status, invoice_status, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		so.TenantID, so.CompanyID, so.Number, so.CustomerID, so.WarehouseID,
		string(so.Status), string(so.InvoiceStatus), so.Notes, so.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertOrderLine(ctx context.Context, line SOLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_order_lines (so_id, product_id, qty, unit_price, delivered_qty, invoiced_qty)
VALUES ($1,$2,$3,$4,0,0) RETURNING id`,
		line.SOID, line.ProductID, line.Qty, line.UnitPrice).Scan(&id)
	return id, err
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, scope shared.Scope, soID int64) (SalesOrder, error) {
	so, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders
WHERE tenant_id=$1 AND company_id=$2 AND id=$3 FOR UPDATE`,
		scope.TenantID, scope.CompanyID, soID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SalesOrder{}, ErrOrderNotFound
		}
		return SalesOrder{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, so_id, product_id, qty, unit_price, delivered_qty, invoiced_qty
FROM sales_order_lines WHERE so_id=$1 ORDER BY id FOR UPDATE`, so.ID)
	if err != nil {
		return SalesOrder{}, err
	}
	so.Lines, err = scanLines(rows)
	if err != nil {
		return SalesOrder{}, err
	}
	return so, nil
}

func (r *txRepository) UpdateOrderStatus(ctx context.Context, scope shared.Scope, soID int64, from, to OrderStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE sales_orders SET status=$5
WHERE tenant_id=$1 AND company_id=$2 AND id=$3 AND status=$4`,
		scope.TenantID, scope.CompanyID, soID, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *txRepository) SetInvoiceStatus(ctx context.Context, scope shared.Scope, soID int64, status InvoiceStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_orders SET invoice_status=$4
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, soID, string(status))
	return err
}

func (r *txRepository) AdvanceLineDelivered(ctx context.Context, lineID int64, delta float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_order_lines SET delivered_qty = delivered_qty + $2 WHERE id=$1`, lineID, delta)
	return err
}

func (r *txRepository) AdvanceLineInvoiced(ctx context.Context, lineID int64, delta float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE sales_order_lines SET invoiced_qty = invoiced_qty + $2 WHERE id=$1`, lineID, delta)
	return err
}

func (r *txRepository) InsertDelivery(ctx context.Context, do DeliveryOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO delivery_orders (tenant_id, company_id, so_id, number, delivered_at, delivered_by, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		do.TenantID, do.CompanyID, do.SOID, do.Number, do.DeliveredAt, do.DeliveredBy, do.Notes).Scan(&id)
	return id, err
}

func (r *txRepository) InsertDeliveryLine(ctx context.Context, line DeliveryLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO delivery_order_lines (delivery_id, so_line_id, product_id, batch_id, qty)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		line.DeliveryID, line.SOLineID, line.ProductID, line.BatchID, line.Qty).Scan(&id)
	return id, err
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv ARInvoice) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO ar_invoices (tenant_id, company_id, so_id, number, due_date, total, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,0,$6,NOW()) RETURNING id`,
		inv.TenantID, inv.CompanyID, inv.SOID, inv.Number, inv.DueDate, inv.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertInvoiceLine(ctx context.Context, line InvoiceLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO ar_invoice_lines (invoice_id, so_line_id, qty, unit_price)
VALUES ($1,$2,$3,$4) RETURNING id`,
		line.InvoiceID, line.SOLineID, line.Qty, line.UnitPrice).Scan(&id)
	if err != nil {
		return 0, err
	}
	_, err = r.tx.Exec(ctx, `UPDATE ar_invoices SET total = total + $2 WHERE id=$1`,
		line.InvoiceID, line.Qty*line.UnitPrice)
	return id, err
}

func nullStatus(value string) any {
	if value == "" {
		return nil
	}
	return value
}
