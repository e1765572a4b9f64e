package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/niaga-erp/niaga-erp/internal/batch"
	"github.com/niaga-erp/niaga-erp/internal/ledger"
	"github.com/niaga-erp/niaga-erp/internal/masterdata"
	"github.com/niaga-erp/niaga-erp/internal/observability"
	"github.com/niaga-erp/niaga-erp/internal/opname"
	"github.com/niaga-erp/niaga-erp/internal/procurement"
	"github.com/niaga-erp/niaga-erp/internal/sales"
	"github.com/niaga-erp/niaga-erp/internal/tolerance"
	"github.com/niaga-erp/niaga-erp/internal/transfer"
	"github.com/niaga-erp/niaga-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	LedgerHandler      *ledger.Handler
	BatchHandler       *batch.Handler
	OpnameHandler      *opname.Handler
	TransferHandler    *transfer.Handler
	ToleranceHandler   *tolerance.Handler
	ProcurementHandler *procurement.Handler
	SalesHandler       *sales.Handler
	MasterDataHandler  *masterdata.Handler
	JobsHandler        *jobs.Handler

	IdempotencyStore KeyStore
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(ScopeMiddleware)
		if params.IdempotencyStore != nil {
			r.Use(IdempotencyMiddleware(params.IdempotencyStore))
		}
		r.Route("/inventory", params.LedgerHandler.MountRoutes)
		r.Route("/batches", params.BatchHandler.MountRoutes)
		params.OpnameHandler.MountRoutes(r)
		r.Route("/transfers", params.TransferHandler.MountRoutes)
		r.Route("/tolerances", params.ToleranceHandler.MountRoutes)
		r.Route("/procurement", params.ProcurementHandler.MountRoutes)
		r.Route("/sales", params.SalesHandler.MountRoutes)
		r.Route("/masterdata", params.MasterDataHandler.MountRoutes)
	})

	return r
}
