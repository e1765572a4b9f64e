// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// RespondError maps ledger error kinds to HTTP responses using RFC7807.
// Integrity breaches deliberately surface as 500s; they are alerts, not
// user errors.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrBusinessRule):
		Problem(w, http.StatusUnprocessableEntity, "Business Rule Violated", err.Error())
	case errors.Is(err, shared.ErrIntegrity):
		Problem(w, http.StatusInternalServerError, "Ledger Integrity Violation", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
