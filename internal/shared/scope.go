package shared

import (
	"context"
	"fmt"
)

// Scope identifies the tenant and company a ledger operation acts for.
// It is passed explicitly into every operation; nothing is inferred from
// session or global state.
type Scope struct {
	TenantID  int64
	CompanyID int64
}

// Validate ensures both identifiers are present.
func (s Scope) Validate() error {
	if s.TenantID == 0 {
		return fmt.Errorf("%w: tenant id required", ErrValidation)
	}
	if s.CompanyID == 0 {
		return fmt.Errorf("%w: company id required", ErrValidation)
	}
	return nil
}

// String renders the scope for log attributes.
func (s Scope) String() string {
	return fmt.Sprintf("tenant=%d company=%d", s.TenantID, s.CompanyID)
}

type scopeContextKey struct{}

// ContextWithScope stores the resolved scope in context. Only the request
// middleware writes it; services receive the scope as a parameter.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the scope resolved by the request middleware.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(Scope)
	return scope, ok
}
