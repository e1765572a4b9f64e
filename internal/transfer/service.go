package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/niaga-erp/niaga-erp/internal/ledger"
	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	NextNumber(ctx context.Context, scope shared.Scope) (string, error)
	Insert(ctx context.Context, t Transfer) (int64, error)
	Get(ctx context.Context, scope shared.Scope, transferID int64) (Transfer, error)
	List(ctx context.Context, scope shared.Scope, status Status) ([]Transfer, error)
	ReplaceDraft(ctx context.Context, scope shared.Scope, t Transfer) error
	DeleteDraft(ctx context.Context, scope shared.Scope, transferID int64) error
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Get(ctx context.Context, scope shared.Scope, transferID int64) (Transfer, error)
	UpdateStatus(ctx context.Context, scope shared.Scope, transferID int64, from, to Status, actorID int64) error
}

// MovementPoster posts stock movements through the ledger.
type MovementPoster interface {
	PostMovement(ctx context.Context, input ledger.MovementInput) (ledger.Movement, error)
}

// CatalogPort reports which products track batches.
type CatalogPort interface {
	BatchRequired(ctx context.Context, scope shared.Scope, productID int64) (bool, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the inter-warehouse transfer state machine. Stock changes
// happen only on ship, receive and cancel-after-ship, always through the
// ledger.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	poster  MovementPoster
	audit   AuditPort
	logger  *slog.Logger
}

// NewService builds Service. A nil catalog skips the batch-reference
// check on items.
func NewService(repo RepositoryPort, catalog CatalogPort, poster MovementPoster, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, poster: poster, audit: audit, logger: logger}
}

func (s *Service) validateItems(ctx context.Context, scope shared.Scope, items []ItemInput) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	for _, item := range items {
		if item.ProductID == 0 {
			return fmt.Errorf("%w: item product required", shared.ErrValidation)
		}
		if item.Qty <= 0 {
			return fmt.Errorf("%w: item quantity must be positive", shared.ErrValidation)
		}
		if item.BatchID == nil && s.catalog != nil {
			required, err := s.catalog.BatchRequired(ctx, scope, item.ProductID)
			if err != nil {
				return err
			}
			if required {
				return fmt.Errorf("%w: product %d", ErrBatchRequired, item.ProductID)
			}
		}
	}
	return nil
}

// Create opens a DRAFT transfer with its items.
func (s *Service) Create(ctx context.Context, input CreateInput) (Transfer, error) {
	if err := input.Scope.Validate(); err != nil {
		return Transfer{}, err
	}
	if input.FromWarehouse == 0 || input.ToWarehouse == 0 {
		return Transfer{}, fmt.Errorf("%w: source and destination warehouse required", shared.ErrValidation)
	}
	if input.FromWarehouse == input.ToWarehouse {
		return Transfer{}, ErrSameWarehouse
	}
	if err := s.validateItems(ctx, input.Scope, input.Items); err != nil {
		return Transfer{}, err
	}
	number, err := s.repo.NextNumber(ctx, input.Scope)
	if err != nil {
		return Transfer{}, err
	}
	t := Transfer{
		TenantID:      input.Scope.TenantID,
		CompanyID:     input.Scope.CompanyID,
		Number:        number,
		FromWarehouse: input.FromWarehouse,
		ToWarehouse:   input.ToWarehouse,
		Status:        StatusDraft,
		Notes:         input.Notes,
		CreatedBy:     input.ActorID,
	}
	for _, item := range input.Items {
		t.Items = append(t.Items, Item{ProductID: item.ProductID, BatchID: item.BatchID, Qty: item.Qty})
	}
	id, err := s.repo.Insert(ctx, t)
	if err != nil {
		return Transfer{}, err
	}
	t.ID = id
	return t, nil
}

// UpdateDraft replaces items and notes on a DRAFT transfer.
func (s *Service) UpdateDraft(ctx context.Context, scope shared.Scope, transferID int64, notes string, items []ItemInput) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if err := s.validateItems(ctx, scope, items); err != nil {
		return err
	}
	t, err := s.repo.Get(ctx, scope, transferID)
	if err != nil {
		return err
	}
	if t.Status != StatusDraft {
		return ErrNotDraft
	}
	t.Notes = notes
	t.Items = nil
	for _, item := range items {
		t.Items = append(t.Items, Item{TransferID: transferID, ProductID: item.ProductID, BatchID: item.BatchID, Qty: item.Qty})
	}
	return s.repo.ReplaceDraft(ctx, scope, t)
}

// Delete removes a DRAFT transfer.
func (s *Service) Delete(ctx context.Context, scope shared.Scope, transferID int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	t, err := s.repo.Get(ctx, scope, transferID)
	if err != nil {
		return err
	}
	if t.Status != StatusDraft {
		return ErrNotDraft
	}
	return s.repo.DeleteDraft(ctx, scope, transferID)
}

// Ship claims DRAFT -> SHIPPED and posts the outbound half of every item
// in the same transaction, so a rejected posting rolls the claim back.
// Items are read after the claim; a concurrent draft edit can never ship
// a stale item set.
func (s *Service) Ship(ctx context.Context, scope shared.Scope, transferID, actorID int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	var t Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateStatus(ctx, scope, transferID, StatusDraft, StatusShipped, actorID); err != nil {
			return err
		}
		var err error
		t, err = tx.Get(ctx, scope, transferID)
		if err != nil {
			return err
		}
		return s.postAll(ctx, scope, t, t.FromWarehouse, -1, actorID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, scope, actorID, "transfer:ship", t)
	return nil
}

// Receive claims SHIPPED -> RECEIVED and posts the inbound half into the
// destination warehouse, again claim and movements in one transaction.
func (s *Service) Receive(ctx context.Context, scope shared.Scope, transferID, actorID int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	var t Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateStatus(ctx, scope, transferID, StatusShipped, StatusReceived, actorID); err != nil {
			return err
		}
		var err error
		t, err = tx.Get(ctx, scope, transferID)
		if err != nil {
			return err
		}
		return s.postAll(ctx, scope, t, t.ToWarehouse, 1, actorID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, scope, actorID, "transfer:receive", t)
	return nil
}

// Cancel abandons a transfer. Cancelling a DRAFT is a pure status change;
// cancelling a SHIPPED transfer posts the goods back into the source
// warehouse atomically with the status change.
func (s *Service) Cancel(ctx context.Context, scope shared.Scope, transferID, actorID int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	var t Transfer
	posted := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		err := tx.UpdateStatus(ctx, scope, transferID, StatusDraft, StatusCancelled, actorID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrStatusConflict) {
			return err
		}
		if err := tx.UpdateStatus(ctx, scope, transferID, StatusShipped, StatusCancelled, actorID); err != nil {
			return err
		}
		t, err = tx.Get(ctx, scope, transferID)
		if err != nil {
			return err
		}
		posted = true
		return s.postAll(ctx, scope, t, t.FromWarehouse, 1, actorID)
	})
	if err != nil {
		return err
	}
	if posted {
		s.record(ctx, scope, actorID, "transfer:cancel", t)
	}
	return nil
}

// Get fetches one transfer with its items.
func (s *Service) Get(ctx context.Context, scope shared.Scope, transferID int64) (Transfer, error) {
	if err := scope.Validate(); err != nil {
		return Transfer{}, err
	}
	return s.repo.Get(ctx, scope, transferID)
}

// List lists transfers, optionally filtered by status.
func (s *Service) List(ctx context.Context, scope shared.Scope, status Status) ([]Transfer, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, scope, status)
}

// postAll posts one TRANSFER movement per item into warehouseID with the
// given sign. It runs inside the claiming transaction, so one rejected
// item rolls the whole transition back.
func (s *Service) postAll(ctx context.Context, scope shared.Scope, t Transfer, warehouseID int64, sign float64, actorID int64) error {
	ref := ledger.DocRef{Type: "STOCK_TRANSFER", ID: t.ID, Number: t.Number}
	for _, item := range t.Items {
		if _, err := s.poster.PostMovement(ctx, ledger.MovementInput{
			Scope:       scope,
			WarehouseID: warehouseID,
			ProductID:   item.ProductID,
			BatchID:     item.BatchID,
			Type:        ledger.MovementTransfer,
			Qty:         sign * item.Qty,
			Ref:         ref,
			ActorID:     actorID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, scope shared.Scope, actorID int64, action string, t Transfer) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Scope:    scope,
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_transfer",
		EntityID: fmt.Sprintf("%d", t.ID),
		Meta: map[string]any{
			"number":            t.Number,
			"from_warehouse_id": t.FromWarehouse,
			"to_warehouse_id":   t.ToWarehouse,
			"items":             len(t.Items),
		},
	})
}
