package jobs

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// PGScopeSource lists tenant scopes that hold stock.
type PGScopeSource struct {
	pool *pgxpool.Pool
}

// NewPGScopeSource constructs PGScopeSource.
func NewPGScopeSource(pool *pgxpool.Pool) *PGScopeSource {
	return &PGScopeSource{pool: pool}
}

// ListScopes returns every tenant/company pair with cached stock.
func (s *PGScopeSource) ListScopes(ctx context.Context) ([]shared.Scope, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT tenant_id, company_id FROM warehouse_stocks ORDER BY tenant_id, company_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	scopes := []shared.Scope{}
	for rows.Next() {
		var scope shared.Scope
		if err := rows.Scan(&scope.TenantID, &scope.CompanyID); err != nil {
			return nil, err
		}
		scopes = append(scopes, scope)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return scopes, nil
}
