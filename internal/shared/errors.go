package shared

import "errors"

// Error kinds shared across ledger modules. Packages wrap these with
// fmt.Errorf("%w: ...") so callers and the HTTP layer can classify via
// errors.Is.
var (
	// ErrValidation marks local, user-correctable input errors.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks concurrency conflicts: stale workflow status or a
	// losing stock debit. Callers should re-fetch and retry explicitly.
	ErrConflict = errors.New("conflict")
	// ErrBusinessRule marks policy rejections (tolerance band, invoice
	// remainder, same-warehouse transfer, missing batch reference).
	ErrBusinessRule = errors.New("business rule violated")
	// ErrIntegrity marks ledger invariant breaches. Never auto-healed;
	// surfaced as reconciliation alerts.
	ErrIntegrity = errors.New("ledger integrity violation")
	// ErrNotFound indicates a missing record within the caller's scope.
	ErrNotFound = errors.New("not found")
)
