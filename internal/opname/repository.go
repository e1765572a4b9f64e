package opname

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/niaga-erp/niaga-erp/internal/platform/db"
	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// Repository persists opnames and adjustments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// queryer is satisfied by both the pool and a transaction.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx runs fn inside one transaction so an approval claim and the
// adjustment movements it causes commit or roll back together.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.pool == nil {
		return errors.New("opname repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// NextNumber allocates the next document number for a kind within the
// current month, e.g. OPN/202608/0007.
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
	prefix := "OPN"
	if kind == "ADJUSTMENT" {
		prefix = "ADJ"
	}
	return fmt.Sprintf("%s/%s/%04d", prefix, period, seq), nil
}

// InsertOpname stores a new count session.
func (r *Repository) InsertOpname(ctx context.Context, o Opname) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO stock_opnames (tenant_id, company_id, warehouse_id, number, status, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		o.TenantID, o.CompanyID, o.WarehouseID, o.Number, string(o.Status), o.Notes, o.CreatedBy).Scan(&id)
	return id, err
}

func getOpname(ctx context.Context, q queryer, scope shared.Scope, opnameID int64) (Opname, error) {
	var o Opname
	err := q.QueryRow(ctx, `SELECT id, tenant_id, company_id, warehouse_id, number, status, notes, created_by, COALESCE(approved_by, 0), started_at, completed_at, approved_at, created_at
FROM stock_opnames WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, opnameID).Scan(
		&o.ID, &o.TenantID, &o.CompanyID, &o.WarehouseID, &o.Number, &o.Status, &o.Notes,
		&o.CreatedBy, &o.ApprovedBy, &o.StartedAt, &o.CompletedAt, &o.ApprovedAt, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Opname{}, ErrOpnameNotFound
		}
		return Opname{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, opname_id, product_id, batch_id, system_qty, physical_qty, difference_qty, note
FROM stock_opname_lines WHERE opname_id=$1 ORDER BY id`, o.ID)
	if err != nil {
		return Opname{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.OpnameID, &line.ProductID, &line.BatchID,
			&line.SystemQty, &line.PhysicalQty, &line.DifferenceQty, &line.Note); err != nil {
			return Opname{}, err
		}
		o.Lines = append(o.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return Opname{}, err
	}
	return o, nil
}

// GetOpname loads one opname with its lines.
func (r *Repository) GetOpname(ctx context.Context, scope shared.Scope, opnameID int64) (Opname, error) {
	return getOpname(ctx, r.pool, scope, opnameID)
}

// ListOpnames lists count sessions, newest first.
func (r *Repository) ListOpnames(ctx context.Context, scope shared.Scope, status Status) ([]Opname, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, company_id, warehouse_id, number, status, notes, created_by, COALESCE(approved_by, 0), started_at, completed_at, approved_at, created_at
FROM stock_opnames
WHERE tenant_id=$1 AND company_id=$2 AND ($3::text IS NULL OR status=$3)
ORDER BY created_at DESC, id DESC LIMIT 200`,
		scope.TenantID, scope.CompanyID, nullStatus(string(status)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	opnames := []Opname{}
	for rows.Next() {
		var o Opname
		if err := rows.Scan(&o.ID, &o.TenantID, &o.CompanyID, &o.WarehouseID, &o.Number, &o.Status, &o.Notes,
			&o.CreatedBy, &o.ApprovedBy, &o.StartedAt, &o.CompletedAt, &o.ApprovedAt, &o.CreatedAt); err != nil {
			return nil, err
		}
		opnames = append(opnames, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return opnames, nil
}

func updateStatus(ctx context.Context, q queryer, scope shared.Scope, opnameID int64, from, to Status, actorID int64) error {
	query := `UPDATE stock_opnames SET status=$5`
	args := []any{scope.TenantID, scope.CompanyID, opnameID, string(from), string(to)}
	switch to {
	case StatusInProgress:
		query += `, started_at=NOW()`
	case StatusCompleted:
		query += `, completed_at=NOW()`
	case StatusApproved:
		query += `, approved_at=NOW(), approved_by=$6`
		args = append(args, actorID)
	}
	query += `
WHERE tenant_id=$1 AND company_id=$2 AND id=$3 AND status=$4`
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// UpdateStatus performs a conditional transition. Zero rows affected means
// the opname was missing or not in the expected state.
func (r *Repository) UpdateStatus(ctx context.Context, scope shared.Scope, opnameID int64, from, to Status, actorID int64) error {
	return updateStatus(ctx, r.pool, scope, opnameID, from, to, actorID)
}

// UpsertLine stores a count, replacing any earlier count of the same
// product and batch on the same opname.
func (r *Repository) UpsertLine(ctx context.Context, scope shared.Scope, line Line) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO stock_opname_lines (opname_id, product_id, batch_id, system_qty, physical_qty, difference_qty, note)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (opname_id, product_id, COALESCE(batch_id, 0))
DO UPDATE SET system_qty=EXCLUDED.system_qty, physical_qty=EXCLUDED.physical_qty, difference_qty=EXCLUDED.difference_qty, note=EXCLUDED.note`,
		line.OpnameID, line.ProductID, line.BatchID, line.SystemQty, line.PhysicalQty, line.DifferenceQty, line.Note)
	return err
}

// InsertAdjustment stores a proposed correction.
func (r *Repository) InsertAdjustment(ctx context.Context, a Adjustment) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO stock_adjustments (tenant_id, company_id, warehouse_id, product_id, batch_id, number, adj_type, reason, qty, status, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW()) RETURNING id`,
		a.TenantID, a.CompanyID, a.WarehouseID, a.ProductID, a.BatchID, a.Number,
		string(a.Type), string(a.Reason), a.Qty, string(a.Status), a.Notes, a.CreatedBy).Scan(&id)
	return id, err
}

func getAdjustment(ctx context.Context, q queryer, scope shared.Scope, adjustmentID int64) (Adjustment, error) {
	var a Adjustment
	err := q.QueryRow(ctx, `SELECT id, tenant_id, company_id, warehouse_id, product_id, batch_id, number, adj_type, reason, qty, status, notes, created_by, COALESCE(approved_by, 0), approved_at, created_at
FROM stock_adjustments WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, adjustmentID).Scan(
		&a.ID, &a.TenantID, &a.CompanyID, &a.WarehouseID, &a.ProductID, &a.BatchID, &a.Number,
		&a.Type, &a.Reason, &a.Qty, &a.Status, &a.Notes, &a.CreatedBy, &a.ApprovedBy, &a.ApprovedAt, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustment{}, ErrAdjustmentNotFound
		}
		return Adjustment{}, err
	}
	return a, nil
}

// GetAdjustment loads one adjustment.
func (r *Repository) GetAdjustment(ctx context.Context, scope shared.Scope, adjustmentID int64) (Adjustment, error) {
	return getAdjustment(ctx, r.pool, scope, adjustmentID)
}

// ListAdjustments lists corrections, newest first.
func (r *Repository) ListAdjustments(ctx context.Context, scope shared.Scope, status AdjustmentStatus) ([]Adjustment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, company_id, warehouse_id, product_id, batch_id, number, adj_type, reason, qty, status, notes, created_by, COALESCE(approved_by, 0), approved_at, created_at
FROM stock_adjustments
WHERE tenant_id=$1 AND company_id=$2 AND ($3::text IS NULL OR status=$3)
ORDER BY created_at DESC, id DESC LIMIT 200`,
		scope.TenantID, scope.CompanyID, nullStatus(string(status)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	adjustments := []Adjustment{}
	for rows.Next() {
		var a Adjustment
		if err := rows.Scan(&a.ID, &a.TenantID, &a.CompanyID, &a.WarehouseID, &a.ProductID, &a.BatchID, &a.Number,
			&a.Type, &a.Reason, &a.Qty, &a.Status, &a.Notes, &a.CreatedBy, &a.ApprovedBy, &a.ApprovedAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return adjustments, nil
}

func updateAdjustmentStatus(ctx context.Context, q queryer, scope shared.Scope, adjustmentID int64, from, to AdjustmentStatus, actorID int64) error {
	query := `UPDATE stock_adjustments SET status=$5`
	args := []any{scope.TenantID, scope.CompanyID, adjustmentID, string(from), string(to)}
	if to == AdjustmentApproved {
		query += `, approved_at=NOW(), approved_by=$6`
		args = append(args, actorID)
	}
	query += `
WHERE tenant_id=$1 AND company_id=$2 AND id=$3 AND status=$4`
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// UpdateAdjustmentStatus performs a conditional transition.
func (r *Repository) UpdateAdjustmentStatus(ctx context.Context, scope shared.Scope, adjustmentID int64, from, to AdjustmentStatus, actorID int64) error {
	return updateAdjustmentStatus(ctx, r.pool, scope, adjustmentID, from, to, actorID)
}

func (r *txRepository) GetOpname(ctx context.Context, scope shared.Scope, opnameID int64) (Opname, error) {
	return getOpname(ctx, r.tx, scope, opnameID)
}

func (r *txRepository) UpdateStatus(ctx context.Context, scope shared.Scope, opnameID int64, from, to Status, actorID int64) error {
	return updateStatus(ctx, r.tx, scope, opnameID, from, to, actorID)
}

func (r *txRepository) GetAdjustment(ctx context.Context, scope shared.Scope, adjustmentID int64) (Adjustment, error) {
	return getAdjustment(ctx, r.tx, scope, adjustmentID)
}

func (r *txRepository) UpdateAdjustmentStatus(ctx context.Context, scope shared.Scope, adjustmentID int64, from, to AdjustmentStatus, actorID int64) error {
	return updateAdjustmentStatus(ctx, r.tx, scope, adjustmentID, from, to, actorID)
}

func nullStatus(value string) any {
	if value == "" {
		return nil
	}
	return value
}
