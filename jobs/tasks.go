package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/niaga-erp/niaga-erp/internal/ledger"
	"github.com/niaga-erp/niaga-erp/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockIntegrityScan replays the movement log against the stock
	// cache for every tenant scope.
	TaskStockIntegrityScan = "stock:integrity_scan"
	// TaskBatchExpirySweep marks overdue batches EXPIRED.
	TaskBatchExpirySweep = "batch:expiry_sweep"
)

// ScanPayload optionally narrows a scheduled scan to one scope. An
// empty payload walks every known scope.
type ScanPayload struct {
	TenantID  int64 `json:"tenant_id,omitempty"`
	CompanyID int64 `json:"company_id,omitempty"`
}

// NewStockIntegrityScanTask constructs the integrity scan task.
func NewStockIntegrityScanTask(payload ScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockIntegrityScan, data), nil
}

// NewBatchExpirySweepTask constructs the expiry sweep task.
func NewBatchExpirySweepTask(payload ScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBatchExpirySweep, data), nil
}

// ScopeSource enumerates the tenant scopes the cron jobs iterate.
type ScopeSource interface {
	ListScopes(ctx context.Context) ([]shared.Scope, error)
}

// StockVerifier runs the cache-vs-log comparison for one scope.
type StockVerifier interface {
	VerifyAll(ctx context.Context, scope shared.Scope) ([]ledger.DriftReport, error)
}

// BatchSweeper expires overdue batches for one scope.
type BatchSweeper interface {
	SweepExpired(ctx context.Context, scope shared.Scope, now time.Time) (int, error)
}

// DriftObserver publishes per-tenant drift counts.
type DriftObserver interface {
	SetStockDrift(tenantID int64, positions int)
}

func scanScopes(ctx context.Context, payload []byte, scopes ScopeSource) ([]shared.Scope, error) {
	var p ScanPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, asynq.SkipRetry
		}
	}
	if p.TenantID != 0 && p.CompanyID != 0 {
		return []shared.Scope{{TenantID: p.TenantID, CompanyID: p.CompanyID}}, nil
	}
	return scopes.ListScopes(ctx)
}

// NewStockIntegrityHandler builds the asynq handler for the nightly
// integrity scan. Drift never fails the job; it is reported and left
// for an operator to reconcile.
func NewStockIntegrityHandler(scopes ScopeSource, verifier StockVerifier, drift DriftObserver, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		targets, err := scanScopes(ctx, t.Payload(), scopes)
		if err != nil {
			return err
		}
		for _, scope := range targets {
			reports, err := verifier.VerifyAll(ctx, scope)
			if err != nil {
				logger.Error("integrity scan failed",
					slog.Int64("tenant_id", scope.TenantID),
					slog.Int64("company_id", scope.CompanyID),
					slog.Any("error", err))
				return err
			}
			if drift != nil {
				drift.SetStockDrift(scope.TenantID, len(reports))
			}
			for _, report := range reports {
				logger.Warn("stock cache drift",
					slog.Int64("tenant_id", scope.TenantID),
					slog.Int64("warehouse_id", report.WarehouseID),
					slog.Int64("product_id", report.ProductID),
					slog.Float64("cached_qty", report.CachedQty),
					slog.Float64("movement_sum", report.MovementSum))
			}
			if len(reports) == 0 {
				logger.Info("integrity scan clean",
					slog.Int64("tenant_id", scope.TenantID),
					slog.Int64("company_id", scope.CompanyID))
			}
		}
		return nil
	}
}

// NewBatchExpiryHandler builds the asynq handler for the expiry sweep.
func NewBatchExpiryHandler(scopes ScopeSource, sweeper BatchSweeper, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		targets, err := scanScopes(ctx, t.Payload(), scopes)
		if err != nil {
			return err
		}
		for _, scope := range targets {
			swept, err := sweeper.SweepExpired(ctx, scope, time.Now())
			if err != nil {
				logger.Error("batch expiry sweep failed",
					slog.Int64("tenant_id", scope.TenantID),
					slog.Any("error", err))
				return err
			}
			if swept > 0 {
				logger.Info("batches expired",
					slog.Int64("tenant_id", scope.TenantID),
					slog.Int64("company_id", scope.CompanyID),
					slog.Int("count", swept))
			}
		}
		return nil
	}
}
