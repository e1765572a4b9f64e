package opname

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/niaga-erp/niaga-erp/internal/ledger"
	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	NextNumber(ctx context.Context, scope shared.Scope, kind string) (string, error)
	InsertOpname(ctx context.Context, o Opname) (int64, error)
	GetOpname(ctx context.Context, scope shared.Scope, opnameID int64) (Opname, error)
	ListOpnames(ctx context.Context, scope shared.Scope, status Status) ([]Opname, error)
	UpdateStatus(ctx context.Context, scope shared.Scope, opnameID int64, from, to Status, actorID int64) error
	UpsertLine(ctx context.Context, scope shared.Scope, line Line) error
	InsertAdjustment(ctx context.Context, a Adjustment) (int64, error)
	GetAdjustment(ctx context.Context, scope shared.Scope, adjustmentID int64) (Adjustment, error)
	ListAdjustments(ctx context.Context, scope shared.Scope, status AdjustmentStatus) ([]Adjustment, error)
	UpdateAdjustmentStatus(ctx context.Context, scope shared.Scope, adjustmentID int64, from, to AdjustmentStatus, actorID int64) error
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetOpname(ctx context.Context, scope shared.Scope, opnameID int64) (Opname, error)
	UpdateStatus(ctx context.Context, scope shared.Scope, opnameID int64, from, to Status, actorID int64) error
	GetAdjustment(ctx context.Context, scope shared.Scope, adjustmentID int64) (Adjustment, error)
	UpdateAdjustmentStatus(ctx context.Context, scope shared.Scope, adjustmentID int64, from, to AdjustmentStatus, actorID int64) error
}

// MovementPoster posts stock movements through the ledger.
type MovementPoster interface {
	PostMovement(ctx context.Context, input ledger.MovementInput) (ledger.Movement, error)
}

// StockReader reads the cached stock quantity for count snapshots.
type StockReader interface {
	GetStock(ctx context.Context, scope shared.Scope, warehouseID, productID int64) (ledger.WarehouseStock, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the opname workflow and standalone adjustments. Both only
// touch stock through the ledger, and only on approval.
type Service struct {
	repo   RepositoryPort
	stocks StockReader
	poster MovementPoster
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, stocks StockReader, poster MovementPoster, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stocks: stocks, poster: poster, audit: audit, logger: logger}
}

// Create opens a DRAFT count session.
func (s *Service) Create(ctx context.Context, input CreateInput) (Opname, error) {
	if err := input.Scope.Validate(); err != nil {
		return Opname{}, err
	}
	if input.WarehouseID == 0 {
		return Opname{}, fmt.Errorf("%w: warehouse required", shared.ErrValidation)
	}
	number, err := s.repo.NextNumber(ctx, input.Scope, "OPNAME")
	if err != nil {
		return Opname{}, err
	}
	o := Opname{
		TenantID:    input.Scope.TenantID,
		CompanyID:   input.Scope.CompanyID,
		WarehouseID: input.WarehouseID,
		Number:      number,
		Status:      StatusDraft,
		Notes:       input.Notes,
		CreatedBy:   input.ActorID,
	}
	id, err := s.repo.InsertOpname(ctx, o)
	if err != nil {
		return Opname{}, err
	}
	o.ID = id
	return o, nil
}

// Start moves DRAFT to IN_PROGRESS.
func (s *Service) Start(ctx context.Context, scope shared.Scope, opnameID, actorID int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return s.repo.UpdateStatus(ctx, scope, opnameID, StatusDraft, StatusInProgress, actorID)
}

// RecordCount stores one counted product. The system quantity is
// snapshotted from the stock cache at record time, so re-counting a
// product refreshes both sides.
func (s *Service) RecordCount(ctx context.Context, input CountInput) (Line, error) {
	if err := input.Scope.Validate(); err != nil {
		return Line{}, err
	}
	if input.ProductID == 0 {
		return Line{}, fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	if input.PhysicalQty < 0 {
		return Line{}, ErrNegativePhysical
	}
	o, err := s.repo.GetOpname(ctx, input.Scope, input.OpnameID)
	if err != nil {
		return Line{}, err
	}
	if o.Status != StatusInProgress {
		return Line{}, ErrNotCounting
	}
	systemQty := 0.0
	stock, err := s.stocks.GetStock(ctx, input.Scope, o.WarehouseID, input.ProductID)
	if err != nil && !errors.Is(err, ledger.ErrStockNotFound) {
		return Line{}, err
	}
	if err == nil {
		systemQty = stock.Quantity
	}
	line := Line{
		OpnameID:      o.ID,
		ProductID:     input.ProductID,
		BatchID:       input.BatchID,
		SystemQty:     systemQty,
		PhysicalQty:   input.PhysicalQty,
		DifferenceQty: input.PhysicalQty - systemQty,
		Note:          input.Note,
	}
	if err := s.repo.UpsertLine(ctx, input.Scope, line); err != nil {
		return Line{}, err
	}
	return line, nil
}

// Complete moves IN_PROGRESS to COMPLETED once at least one line exists.
func (s *Service) Complete(ctx context.Context, scope shared.Scope, opnameID, actorID int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	o, err := s.repo.GetOpname(ctx, scope, opnameID)
	if err != nil {
		return err
	}
	if len(o.Lines) == 0 {
		return ErrNoLines
	}
	return s.repo.UpdateStatus(ctx, scope, opnameID, StatusInProgress, StatusCompleted, actorID)
}

// Cancel abandons a count from any pre-approval state.
func (s *Service) Cancel(ctx context.Context, scope shared.Scope, opnameID, actorID int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	for _, from := range []Status{StatusDraft, StatusInProgress, StatusCompleted} {
		err := s.repo.UpdateStatus(ctx, scope, opnameID, from, StatusCancelled, actorID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrStatusConflict) {
			return err
		}
	}
	return ErrStatusConflict
}

// Approve finalises a COMPLETED opname and posts one ADJUSTMENT movement
// per line with a non-zero difference. The conditional status claim and
// every posting share one transaction, so a rejected line rolls the whole
// approval back and a retry after repair posts each line exactly once.
func (s *Service) Approve(ctx context.Context, scope shared.Scope, opnameID, actorID int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	var o Opname
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		o, err = tx.GetOpname(ctx, scope, opnameID)
		if err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, scope, opnameID, StatusCompleted, StatusApproved, actorID); err != nil {
			return err
		}
		for _, line := range o.Lines {
			if math.Abs(line.DifferenceQty) < qtyEpsilon {
				continue
			}
			if _, err := s.poster.PostMovement(ctx, ledger.MovementInput{
				Scope:       scope,
				WarehouseID: o.WarehouseID,
				ProductID:   line.ProductID,
				BatchID:     line.BatchID,
				Type:        ledger.MovementAdjustment,
				Qty:         line.DifferenceQty,
				Ref:         ledger.DocRef{Type: "STOCK_OPNAME", ID: o.ID, Number: o.Number},
				Note:        line.Note,
				ActorID:     actorID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Scope:    scope,
			ActorID:  actorID,
			Action:   "opname:approve",
			Entity:   "stock_opname",
			EntityID: fmt.Sprintf("%d", o.ID),
			Meta:     map[string]any{"number": o.Number, "lines": len(o.Lines)},
		})
	}
	return nil
}

// Get fetches one opname with its lines.
func (s *Service) Get(ctx context.Context, scope shared.Scope, opnameID int64) (Opname, error) {
	if err := scope.Validate(); err != nil {
		return Opname{}, err
	}
	return s.repo.GetOpname(ctx, scope, opnameID)
}

// List lists opnames, optionally filtered by status.
func (s *Service) List(ctx context.Context, scope shared.Scope, status Status) ([]Opname, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListOpnames(ctx, scope, status)
}

// CreateAdjustment proposes a PENDING single-product correction.
func (s *Service) CreateAdjustment(ctx context.Context, input AdjustmentInput) (Adjustment, error) {
	if err := input.Scope.Validate(); err != nil {
		return Adjustment{}, err
	}
	if input.WarehouseID == 0 || input.ProductID == 0 {
		return Adjustment{}, fmt.Errorf("%w: warehouse and product required", shared.ErrValidation)
	}
	if !input.Type.IsValid() {
		return Adjustment{}, fmt.Errorf("%w: unknown adjustment type %q", shared.ErrValidation, input.Type)
	}
	if !input.Reason.IsValid() {
		return Adjustment{}, fmt.Errorf("%w: unknown adjustment reason %q", shared.ErrValidation, input.Reason)
	}
	if input.Qty <= 0 {
		return Adjustment{}, fmt.Errorf("%w: adjustment quantity must be positive", shared.ErrValidation)
	}
	number, err := s.repo.NextNumber(ctx, input.Scope, "ADJUSTMENT")
	if err != nil {
		return Adjustment{}, err
	}
	a := Adjustment{
		TenantID:    input.Scope.TenantID,
		CompanyID:   input.Scope.CompanyID,
		WarehouseID: input.WarehouseID,
		ProductID:   input.ProductID,
		BatchID:     input.BatchID,
		Number:      number,
		Type:        input.Type,
		Reason:      input.Reason,
		Qty:         input.Qty,
		Status:      AdjustmentPending,
		Notes:       input.Notes,
		CreatedBy:   input.ActorID,
	}
	id, err := s.repo.InsertAdjustment(ctx, a)
	if err != nil {
		return Adjustment{}, err
	}
	a.ID = id
	return a, nil
}

// ApproveAdjustment claims a PENDING adjustment and posts its movement in
// the same transaction, so a rejected posting leaves it PENDING.
func (s *Service) ApproveAdjustment(ctx context.Context, scope shared.Scope, adjustmentID, actorID int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.GetAdjustment(ctx, scope, adjustmentID)
		if err != nil {
			return err
		}
		if err := tx.UpdateAdjustmentStatus(ctx, scope, adjustmentID, AdjustmentPending, AdjustmentApproved, actorID); err != nil {
			return err
		}
		qty := a.Qty
		if a.Type == AdjustmentDecrease {
			qty = -qty
		}
		_, err = s.poster.PostMovement(ctx, ledger.MovementInput{
			Scope:       scope,
			WarehouseID: a.WarehouseID,
			ProductID:   a.ProductID,
			BatchID:     a.BatchID,
			Type:        ledger.MovementAdjustment,
			Qty:         qty,
			Ref:         ledger.DocRef{Type: "STOCK_ADJUSTMENT", ID: a.ID, Number: a.Number},
			Note:        string(a.Reason),
			ActorID:     actorID,
		})
		return err
	})
}

// RejectAdjustment declines a PENDING adjustment.
func (s *Service) RejectAdjustment(ctx context.Context, scope shared.Scope, adjustmentID, actorID int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return s.repo.UpdateAdjustmentStatus(ctx, scope, adjustmentID, AdjustmentPending, AdjustmentRejected, actorID)
}

// GetAdjustment fetches one adjustment.
func (s *Service) GetAdjustment(ctx context.Context, scope shared.Scope, adjustmentID int64) (Adjustment, error) {
	if err := scope.Validate(); err != nil {
		return Adjustment{}, err
	}
	return s.repo.GetAdjustment(ctx, scope, adjustmentID)
}

// ListAdjustments lists adjustments, optionally filtered by status.
func (s *Service) ListAdjustments(ctx context.Context, scope shared.Scope, status AdjustmentStatus) ([]Adjustment, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListAdjustments(ctx, scope, status)
}

const qtyEpsilon = 1e-6
