package procurement

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

// Repository persists procurement documents in PostgreSQL.
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
		return errors.New("procurement repository not initialised")
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

const orderColumns = `id, tenant_id, company_id, number, supplier_id, warehouse_id, status, invoice_status, short_closed, expected_date, notes, created_by, created_at`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.TenantID, &po.CompanyID, &po.Number, &po.SupplierID, &po.WarehouseID,
		&po.Status, &po.InvoiceStatus, &po.ShortClosed, &po.ExpectedDate, &po.Notes, &po.CreatedBy, &po.CreatedAt)
	return po, err
}

func (r *Repository) loadLines(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, poID int64) ([]POLine, error) {
	rows, err := q.Query(ctx, `SELECT id, po_id, product_id, qty, unit_price, received_qty, invoiced_qty
FROM purchase_order_lines WHERE po_id=$1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []POLine{}
	for rows.Next() {
		var line POLine
		if err := rows.Scan(&line.ID, &line.POID, &line.ProductID, &line.Qty, &line.UnitPrice,
			&line.ReceivedQty, &line.InvoicedQty); err != nil {
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
func (r *Repository) GetOrder(ctx context.Context, scope shared.Scope, poID int64) (PurchaseOrder, error) {
	po, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, poID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrOrderNotFound
		}
		return PurchaseOrder{}, err
	}
	po.Lines, err = r.loadLines(ctx, r.pool, po.ID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// ListOrders lists orders, newest first.
func (r *Repository) ListOrders(ctx context.Context, scope shared.Scope, status OrderStatus) ([]PurchaseOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM purchase_orders
WHERE tenant_id=$1 AND company_id=$2 AND ($3::text IS NULL OR status=$3)
ORDER BY created_at DESC, id DESC LIMIT 200`,
		scope.TenantID, scope.CompanyID, nullStatus(string(status)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []PurchaseOrder{}
	for rows.Next() {
		po, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, po)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetReceipt loads one goods receipt with its lines.
func (r *Repository) GetReceipt(ctx context.Context, scope shared.Scope, grnID int64) (GoodsReceipt, error) {
	var grn GoodsReceipt
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, company_id, po_id, number, received_at, received_by, notes, created_at
FROM goods_receipts WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, grnID).Scan(
		&grn.ID, &grn.TenantID, &grn.CompanyID, &grn.POID, &grn.Number,
		&grn.ReceivedAt, &grn.ReceivedBy, &grn.Notes, &grn.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceipt{}, ErrOrderNotFound
		}
		return GoodsReceipt{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, grn_id, po_line_id, product_id, COALESCE(batch_number, ''), ordered_qty, received_qty, accepted_qty, rejected_qty, COALESCE(reject_reason, ''), unit_cost
FROM goods_receipt_lines WHERE grn_id=$1 ORDER BY id`, grn.ID)
	if err != nil {
		return GoodsReceipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line GRNLine
		if err := rows.Scan(&line.ID, &line.GRNID, &line.POLineID, &line.ProductID, &line.BatchNumber,
			&line.OrderedQty, &line.ReceivedQty, &line.AcceptedQty, &line.RejectedQty, &line.RejectReason, &line.UnitCost); err != nil {
			return GoodsReceipt{}, err
		}
		grn.Lines = append(grn.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return GoodsReceipt{}, err
	}
	return grn, nil
}

// ListReceipts lists receipts for one order.
func (r *Repository) ListReceipts(ctx context.Context, scope shared.Scope, poID int64) ([]GoodsReceipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, company_id, po_id, number, received_at, received_by, notes, created_at
FROM goods_receipts WHERE tenant_id=$1 AND company_id=$2 AND po_id=$3 ORDER BY received_at, id`,
		scope.TenantID, scope.CompanyID, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	receipts := []GoodsReceipt{}
	for rows.Next() {
		var grn GoodsReceipt
		if err := rows.Scan(&grn.ID, &grn.TenantID, &grn.CompanyID, &grn.POID, &grn.Number,
			&grn.ReceivedAt, &grn.ReceivedBy, &grn.Notes, &grn.CreatedAt); err != nil {
			return nil, err
		}
		receipts = append(receipts, grn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return receipts, nil
}

// GetInvoice loads one invoice with its lines.
func (r *Repository) GetInvoice(ctx context.Context, scope shared.Scope, invoiceID int64) (APInvoice, error) {
	var inv APInvoice
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, company_id, po_id, number, due_date, total, created_by, created_at
FROM ap_invoices WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, invoiceID).Scan(
		&inv.ID, &inv.TenantID, &inv.CompanyID, &inv.POID, &inv.Number,
		&inv.DueDate, &inv.Total, &inv.CreatedBy, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return APInvoice{}, ErrOrderNotFound
		}
		return APInvoice{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, po_line_id, qty, unit_price
FROM ap_invoice_lines WHERE invoice_id=$1 ORDER BY id`, inv.ID)
	if err != nil {
		return APInvoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.POLineID, &line.Qty, &line.UnitPrice); err != nil {
			return APInvoice{}, err
		}
		inv.Lines = append(inv.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return APInvoice{}, err
	}
	return inv, nil
}

// ListInvoices lists invoices for one order.
func (r *Repository) ListInvoices(ctx context.Context, scope shared.Scope, poID int64) ([]APInvoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, company_id, po_id, number, due_date, total, created_by, created_at
FROM ap_invoices WHERE tenant_id=$1 AND company_id=$2 AND po_id=$3 ORDER BY created_at, id`,
		scope.TenantID, scope.CompanyID, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	invoices := []APInvoice{}
	for rows.Next() {
		var inv APInvoice
		if err := rows.Scan(&inv.ID, &inv.TenantID, &inv.CompanyID, &inv.POID, &inv.Number,
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

func (r *txRepository) InsertOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (tenant_id, company_id, number, supplier_id, warehouse_id, status, invoice_status, expected_date, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW()) RETURNING id`,
		po.TenantID, po.CompanyID, po.Number, po.SupplierID, po.WarehouseID,
		string(po.Status), string(po.InvoiceStatus), po.ExpectedDate, po.Notes, po.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertOrderLine(ctx context.Context, line POLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_order_lines (po_id, product_id, qty, unit_price, received_qty, invoiced_qty)
VALUES ($1,$2,$3,$4,0,0) RETURNING id`,
		line.POID, line.ProductID, line.Qty, line.UnitPrice).Scan(&id)
	return id, err
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, scope shared.Scope, poID int64) (PurchaseOrder, error) {
	po, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders
WHERE tenant_id=$1 AND company_id=$2 AND id=$3 FOR UPDATE`,
		scope.TenantID, scope.CompanyID, poID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrOrderNotFound
		}
		return PurchaseOrder{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, po_id, product_id, qty, unit_price, received_qty, invoiced_qty
FROM purchase_order_lines WHERE po_id=$1 ORDER BY id FOR UPDATE`, po.ID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line POLine
		if err := rows.Scan(&line.ID, &line.POID, &line.ProductID, &line.Qty, &line.UnitPrice,
			&line.ReceivedQty, &line.InvoicedQty); err != nil {
			return PurchaseOrder{}, err
		}
		po.Lines = append(po.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

func (r *txRepository) UpdateOrderStatus(ctx context.Context, scope shared.Scope, poID int64, from, to OrderStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status=$5
WHERE tenant_id=$1 AND company_id=$2 AND id=$3 AND status=$4`,
		scope.TenantID, scope.CompanyID, poID, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *txRepository) MarkShortClosed(ctx context.Context, scope shared.Scope, poID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET short_closed=TRUE
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, poID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *txRepository) SetInvoiceStatus(ctx context.Context, scope shared.Scope, poID int64, status InvoiceStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET invoice_status=$4
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, poID, string(status))
	return err
}

func (r *txRepository) AdvanceLineReceived(ctx context.Context, lineID int64, delta float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_order_lines SET received_qty = received_qty + $2 WHERE id=$1`, lineID, delta)
	return err
}

func (r *txRepository) AdvanceLineInvoiced(ctx context.Context, lineID int64, delta float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_order_lines SET invoiced_qty = invoiced_qty + $2 WHERE id=$1`, lineID, delta)
	return err
}

func (r *txRepository) InsertReceipt(ctx context.Context, grn GoodsReceipt) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO goods_receipts (tenant_id, company_id, po_id, number, received_at, received_by, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		grn.TenantID, grn.CompanyID, grn.POID, grn.Number, grn.ReceivedAt, grn.ReceivedBy, grn.Notes).Scan(&id)
	return id, err
}

func (r *txRepository) InsertReceiptLine(ctx context.Context, line GRNLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO goods_receipt_lines (grn_id, po_line_id, product_id, batch_number, ordered_qty, received_qty, accepted_qty, rejected_qty, reject_reason, unit_cost)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		line.GRNID, line.POLineID, line.ProductID, nullString(line.BatchNumber), line.OrderedQty,
		line.ReceivedQty, line.AcceptedQty, line.RejectedQty, nullString(line.RejectReason), line.UnitCost).Scan(&id)
	return id, err
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv APInvoice) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO ap_invoices (tenant_id, company_id, po_id, number, due_date, total, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,0,$6,NOW()) RETURNING id`,
		inv.TenantID, inv.CompanyID, inv.POID, inv.Number, inv.DueDate, inv.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertInvoiceLine(ctx context.Context, line InvoiceLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO ap_invoice_lines (invoice_id, po_line_id, qty, unit_price)
VALUES ($1,$2,$3,$4) RETURNING id`,
		line.InvoiceID, line.POLineID, line.Qty, line.UnitPrice).Scan(&id)
	if err != nil {
		return 0, err
	}
	_, err = r.tx.Exec(ctx, `UPDATE ap_invoices SET total = total + $2 WHERE id=$1`,
		line.InvoiceID, line.Qty*line.UnitPrice)
	return id, err
}

func nullStatus(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
