package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRequests(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/inventory/stock", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTeapot, rec.Code)

	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	require.Contains(t, body, "niaga_http_requests_total")
	require.Contains(t, body, `code="418"`)
}

func TestMovementCounterAndDriftGauge(t *testing.T) {
	metrics := NewMetrics()
	metrics.MovementPosted("IN")
	metrics.MovementPosted("IN")
	metrics.MovementPosted("OUT")
	metrics.SetStockDrift(1, 3)

	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	require.Contains(t, body, `niaga_stock_movements_total{type="IN"} 2`)
	require.Contains(t, body, `niaga_stock_movements_total{type="OUT"} 1`)
	require.Contains(t, body, `niaga_stock_drift_positions{tenant="1"} 3`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.MovementPosted("IN")
	metrics.SetStockDrift(1, 0)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	passthrough := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = strings.NewReader("ok").WriteTo(w)
	}))
	ok := httptest.NewRecorder()
	passthrough.ServeHTTP(ok, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, ok.Code)
}
