package tolerance

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// Repository persists tolerance rules in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ruleColumns = `id, tenant_id, company_id, level, product_id, category_name, over_pct, under_pct, unlimited_over, is_active`

func scanRule(row pgx.Row) (Rule, error) {
	var r Rule
	err := row.Scan(&r.ID, &r.TenantID, &r.CompanyID, &r.Level, &r.ProductID, &r.CategoryName,
		&r.OverPct, &r.UnderPct, &r.UnlimitedOver, &r.IsActive)
	return r, err
}

func (r *Repository) findOne(ctx context.Context, query string, args ...any) (Rule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrRuleNotFound
		}
		return Rule{}, err
	}
	return rule, nil
}

// FindProductRule returns the active PRODUCT rule for one product.
func (r *Repository) FindProductRule(ctx context.Context, scope shared.Scope, productID int64) (Rule, error) {
	return r.findOne(ctx, `SELECT `+ruleColumns+` FROM delivery_tolerances
WHERE tenant_id=$1 AND company_id=$2 AND level='PRODUCT' AND product_id=$3 AND is_active`,
		scope.TenantID, scope.CompanyID, productID)
}

// FindCategoryRule returns the active CATEGORY rule for one category.
func (r *Repository) FindCategoryRule(ctx context.Context, scope shared.Scope, categoryName string) (Rule, error) {
	return r.findOne(ctx, `SELECT `+ruleColumns+` FROM delivery_tolerances
WHERE tenant_id=$1 AND company_id=$2 AND level='CATEGORY' AND category_name=$3 AND is_active`,
		scope.TenantID, scope.CompanyID, categoryName)
}

// FindCompanyRule returns the active COMPANY rule.
func (r *Repository) FindCompanyRule(ctx context.Context, scope shared.Scope) (Rule, error) {
	return r.findOne(ctx, `SELECT `+ruleColumns+` FROM delivery_tolerances
WHERE tenant_id=$1 AND company_id=$2 AND level='COMPANY' AND is_active`,
		scope.TenantID, scope.CompanyID)
}

// Insert stores a new rule. Partial unique indexes per level keep one
// rule per target.
func (r *Repository) Insert(ctx context.Context, rule Rule) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO delivery_tolerances (tenant_id, company_id, level, product_id, category_name, over_pct, under_pct, unlimited_over, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		rule.TenantID, rule.CompanyID, string(rule.Level), rule.ProductID, rule.CategoryName,
		rule.OverPct, rule.UnderPct, rule.UnlimitedOver, rule.IsActive).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateRule
		}
		return 0, err
	}
	return id, nil
}

// Update rewrites a rule in place.
func (r *Repository) Update(ctx context.Context, scope shared.Scope, rule Rule) error {
	tag, err := r.pool.Exec(ctx, `UPDATE delivery_tolerances
SET level=$4, product_id=$5, category_name=$6, over_pct=$7, under_pct=$8, unlimited_over=$9, is_active=$10
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, rule.ID, string(rule.Level), rule.ProductID, rule.CategoryName,
		rule.OverPct, rule.UnderPct, rule.UnlimitedOver, rule.IsActive)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateRule
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Delete removes a rule.
func (r *Repository) Delete(ctx context.Context, scope shared.Scope, ruleID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM delivery_tolerances
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, ruleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Get fetches one rule.
func (r *Repository) Get(ctx context.Context, scope shared.Scope, ruleID int64) (Rule, error) {
	return r.findOne(ctx, `SELECT `+ruleColumns+` FROM delivery_tolerances
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, ruleID)
}

// List lists all rules in scope, most specific level first.
func (r *Repository) List(ctx context.Context, scope shared.Scope) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+` FROM delivery_tolerances
WHERE tenant_id=$1 AND company_id=$2
ORDER BY CASE level WHEN 'PRODUCT' THEN 0 WHEN 'CATEGORY' THEN 1 ELSE 2 END, id`,
		scope.TenantID, scope.CompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rules := []Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}
