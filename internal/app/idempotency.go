package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/niaga-erp/niaga-erp/internal/platform/httpx"
)

// IdempotencyKeyHeader carries the client-chosen key for safe retries.
const IdempotencyKeyHeader = "Idempotency-Key"

// KeyStore is the subset of shared.IdempotencyStore the middleware needs.
type KeyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

type idempotencyRecorder struct {
	http.ResponseWriter
	status int
}

func (w *idempotencyRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// IdempotencyMiddleware guards mutating requests carrying an
// Idempotency-Key header. A replayed key answers 409 without reaching
// the handler; keys for requests that fail server-side are released so
// the client can retry.
func IdempotencyMiddleware(store KeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, err := uuid.Parse(key); err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Invalid Idempotency Key", "Idempotency-Key must be a UUID")
				return
			}
			if err := store.CheckAndInsert(r.Context(), key, requestModule(r)); err != nil {
				httpx.RespondError(w, err)
				return
			}
			recorder := &idempotencyRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			if recorder.status >= http.StatusInternalServerError {
				_ = store.Delete(r.Context(), key)
			}
		})
	}
}

func requestModule(r *http.Request) string {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if idx := strings.IndexByte(path, '/'); idx > 0 {
		return path[:idx]
	}
	if path == "" {
		return "root"
	}
	return path
}
