package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

func TestScopeMiddlewareRejectsMissingHeaders(t *testing.T) {
	handler := ScopeMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without scope")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory/stock", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScopeMiddlewareResolvesScope(t *testing.T) {
	var got shared.Scope
	handler := ScopeMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = shared.ScopeFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/inventory/stock", nil)
	req.Header.Set("X-Tenant-ID", "3")
	req.Header.Set("X-Company-ID", "7")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, shared.Scope{TenantID: 3, CompanyID: 7}, got)
}

type memoryKeyStore struct {
	keys map[string]bool
}

func (s *memoryKeyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = true
	return nil
}

func (s *memoryKeyStore) Delete(ctx context.Context, key string) error {
	delete(s.keys, key)
	return nil
}

func TestIdempotencyMiddlewareBlocksReplay(t *testing.T) {
	store := &memoryKeyStore{keys: map[string]bool{}}
	calls := 0
	handler := IdempotencyMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	key := uuid.NewString()
	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sales/orders", nil)
	req.Header.Set(IdempotencyKeyHeader, key)
	handler.ServeHTTP(first, req)
	require.Equal(t, http.StatusCreated, first.Code)

	replay := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/sales/orders", nil)
	req2.Header.Set(IdempotencyKeyHeader, key)
	handler.ServeHTTP(replay, req2)
	require.Equal(t, http.StatusConflict, replay.Code)
	require.Equal(t, 1, calls)
}

func TestIdempotencyMiddlewareReleasesKeyOnServerError(t *testing.T) {
	store := &memoryKeyStore{keys: map[string]bool{}}
	failing := true
	handler := IdempotencyMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	key := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/transfers", nil)
	req.Header.Set(IdempotencyKeyHeader, key)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	failing = false
	retry := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/transfers", nil)
	req2.Header.Set(IdempotencyKeyHeader, key)
	handler.ServeHTTP(retry, req2)
	require.Equal(t, http.StatusCreated, retry.Code)
}

func TestIdempotencyMiddlewareValidatesKeyFormat(t *testing.T) {
	store := &memoryKeyStore{keys: map[string]bool{}}
	handler := IdempotencyMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run for a malformed key")
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sales/orders", nil)
	req.Header.Set(IdempotencyKeyHeader, "not-a-uuid")
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdempotencyMiddlewareIgnoresReads(t *testing.T) {
	store := &memoryKeyStore{keys: map[string]bool{}}
	handler := IdempotencyMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales/orders", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, store.keys)
}
