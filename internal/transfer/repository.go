package transfer

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

// Repository persists transfers in PostgreSQL.
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

// WithTx runs fn inside one transaction so a status claim and the
// movements it causes commit or roll back together.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.pool == nil {
		return errors.New("transfer repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// NextNumber allocates the next transfer number within the current month.
func (r *Repository) NextNumber(ctx context.Context, scope shared.Scope) (string, error) {
	period := time.Now().Format("200601")
	var seq int64
	err := r.pool.QueryRow(ctx, `INSERT INTO doc_sequences (tenant_id, company_id, kind, period, last_seq)
VALUES ($1,$2,'TRANSFER',$3,1)
ON CONFLICT (tenant_id, company_id, kind, period)
DO UPDATE SET last_seq = doc_sequences.last_seq + 1
RETURNING last_seq`,
		scope.TenantID, scope.CompanyID, period).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TRF/%s/%04d", period, seq), nil
}

// Insert stores a transfer and its items in one transaction.
func (r *Repository) Insert(ctx context.Context, t Transfer) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx, `INSERT INTO stock_transfers (tenant_id, company_id, number, from_warehouse_id, to_warehouse_id, status, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		t.TenantID, t.CompanyID, t.Number, t.FromWarehouse, t.ToWarehouse,
		string(t.Status), t.Notes, t.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	if err := insertItems(ctx, tx, id, t.Items); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

func insertItems(ctx context.Context, tx pgx.Tx, transferID int64, items []Item) error {
	for _, item := range items {
		if _, err := tx.Exec(ctx, `INSERT INTO stock_transfer_items (transfer_id, product_id, batch_id, qty)
VALUES ($1,$2,$3,$4)`, transferID, item.ProductID, item.BatchID, item.Qty); err != nil {
			return err
		}
	}
	return nil
}

func getTransfer(ctx context.Context, q queryer, scope shared.Scope, transferID int64) (Transfer, error) {
	var t Transfer
	err := q.QueryRow(ctx, `SELECT id, tenant_id, company_id, number, from_warehouse_id, to_warehouse_id, status, notes, created_by, COALESCE(shipped_by, 0), COALESCE(received_by, 0), shipped_at, received_at, created_at
FROM stock_transfers WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, transferID).Scan(
		&t.ID, &t.TenantID, &t.CompanyID, &t.Number, &t.FromWarehouse, &t.ToWarehouse, &t.Status, &t.Notes,
		&t.CreatedBy, &t.ShippedBy, &t.ReceivedBy, &t.ShippedAt, &t.ReceivedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrTransferNotFound
		}
		return Transfer{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, transfer_id, product_id, batch_id, qty
FROM stock_transfer_items WHERE transfer_id=$1 ORDER BY id`, t.ID)
	if err != nil {
		return Transfer{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.TransferID, &item.ProductID, &item.BatchID, &item.Qty); err != nil {
			return Transfer{}, err
		}
		t.Items = append(t.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Transfer{}, err
	}
	return t, nil
}

// Get loads one transfer with its items.
func (r *Repository) Get(ctx context.Context, scope shared.Scope, transferID int64) (Transfer, error) {
	return getTransfer(ctx, r.pool, scope, transferID)
}

// List lists transfers, newest first.
func (r *Repository) List(ctx context.Context, scope shared.Scope, status Status) ([]Transfer, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, company_id, number, from_warehouse_id, to_warehouse_id, status, notes, created_by, COALESCE(shipped_by, 0), COALESCE(received_by, 0), shipped_at, received_at, created_at
FROM stock_transfers
WHERE tenant_id=$1 AND company_id=$2 AND ($3::text IS NULL OR status=$3)
ORDER BY created_at DESC, id DESC LIMIT 200`,
		scope.TenantID, scope.CompanyID, nullStatus(string(status)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	transfers := []Transfer{}
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.ID, &t.TenantID, &t.CompanyID, &t.Number, &t.FromWarehouse, &t.ToWarehouse,
			&t.Status, &t.Notes, &t.CreatedBy, &t.ShippedBy, &t.ReceivedBy, &t.ShippedAt, &t.ReceivedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transfers, nil
}

// ReplaceDraft swaps a draft's notes and items. The status guard in the
// UPDATE keeps a concurrent ship from racing the edit.
func (r *Repository) ReplaceDraft(ctx context.Context, scope shared.Scope, t Transfer) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE stock_transfers SET notes=$4
WHERE tenant_id=$1 AND company_id=$2 AND id=$3 AND status='DRAFT'`,
		scope.TenantID, scope.CompanyID, t.ID, t.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	if _, err := tx.Exec(ctx, `DELETE FROM stock_transfer_items WHERE transfer_id=$1`, t.ID); err != nil {
		return err
	}
	if err := insertItems(ctx, tx, t.ID, t.Items); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteDraft removes a draft and its items.
func (r *Repository) DeleteDraft(ctx context.Context, scope shared.Scope, transferID int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM stock_transfer_items WHERE transfer_id=$1`, transferID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM stock_transfers
WHERE tenant_id=$1 AND company_id=$2 AND id=$3 AND status='DRAFT'`,
		scope.TenantID, scope.CompanyID, transferID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return tx.Commit(ctx)
}

// Get loads one transfer with its items under the claiming transaction.
func (r *txRepository) Get(ctx context.Context, scope shared.Scope, transferID int64) (Transfer, error) {
	return getTransfer(ctx, r.tx, scope, transferID)
}

// UpdateStatus performs a conditional transition stamping actor and time
// for ship and receive.
func (r *txRepository) UpdateStatus(ctx context.Context, scope shared.Scope, transferID int64, from, to Status, actorID int64) error {
	query := `UPDATE stock_transfers SET status=$5`
	args := []any{scope.TenantID, scope.CompanyID, transferID, string(from), string(to)}
	switch to {
	case StatusShipped:
		query += `, shipped_at=NOW(), shipped_by=$6`
		args = append(args, actorID)
	case StatusReceived:
		query += `, received_at=NOW(), received_by=$6`
		args = append(args, actorID)
	}
	query += `
WHERE tenant_id=$1 AND company_id=$2 AND id=$3 AND status=$4`
	tag, err := r.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

func nullStatus(value string) any {
	if value == "" {
		return nil
	}
	return value
}
