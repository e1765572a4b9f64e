package transfer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/niaga-erp/niaga-erp/internal/ledger"
	"github.com/niaga-erp/niaga-erp/internal/shared"
)

type memoryRepo struct {
	transfers map[int64]Transfer
	lgr       *fakeLedger
	nextID    int64
	seq       int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{transfers: make(map[int64]Transfer)}
}

func cloneTransfers(src map[int64]Transfer) map[int64]Transfer {
	out := make(map[int64]Transfer, len(src))
	for id, t := range src {
		t.Items = append([]Item(nil), t.Items...)
		out[id] = t
	}
	return out
}

// WithTx mirrors the database: a failed callback rolls back every write
// made inside it, movements and stock changes included.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	transfers := cloneTransfers(r.transfers)
	var posted int
	var stocks map[string]float64
	if r.lgr != nil {
		posted = len(r.lgr.posted)
		stocks = make(map[string]float64, len(r.lgr.stocks))
		for k, v := range r.lgr.stocks {
			stocks[k] = v
		}
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.transfers = transfers
		if r.lgr != nil {
			r.lgr.posted = r.lgr.posted[:posted]
			r.lgr.stocks = stocks
		}
		return err
	}
	return nil
}

func (r *memoryRepo) NextNumber(ctx context.Context, scope shared.Scope) (string, error) {
	r.seq++
	return fmt.Sprintf("TRF/202608/%04d", r.seq), nil
}

func (r *memoryRepo) Insert(ctx context.Context, t Transfer) (int64, error) {
	r.nextID++
	t.ID = r.nextID
	t.CreatedAt = time.Now()
	for i := range t.Items {
		t.Items[i].TransferID = t.ID
	}
	r.transfers[t.ID] = t
	return t.ID, nil
}

func (r *memoryRepo) Get(ctx context.Context, scope shared.Scope, transferID int64) (Transfer, error) {
	if t, ok := r.transfers[transferID]; ok {
		return t, nil
	}
	return Transfer{}, ErrTransferNotFound
}

func (r *memoryRepo) List(ctx context.Context, scope shared.Scope, status Status) ([]Transfer, error) {
	var out []Transfer
	for _, t := range r.transfers {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (tx *memoryTx) Get(ctx context.Context, scope shared.Scope, transferID int64) (Transfer, error) {
	return tx.repo.Get(ctx, scope, transferID)
}

func (tx *memoryTx) UpdateStatus(ctx context.Context, scope shared.Scope, transferID int64, from, to Status, actorID int64) error {
	t, ok := tx.repo.transfers[transferID]
	if !ok || t.Status != from {
		return ErrStatusConflict
	}
	t.Status = to
	switch to {
	case StatusShipped:
		t.ShippedBy = actorID
	case StatusReceived:
		t.ReceivedBy = actorID
	}
	tx.repo.transfers[transferID] = t
	return nil
}

func (r *memoryRepo) ReplaceDraft(ctx context.Context, scope shared.Scope, t Transfer) error {
	existing, ok := r.transfers[t.ID]
	if !ok || existing.Status != StatusDraft {
		return ErrStatusConflict
	}
	existing.Notes = t.Notes
	existing.Items = t.Items
	r.transfers[t.ID] = existing
	return nil
}

func (r *memoryRepo) DeleteDraft(ctx context.Context, scope shared.Scope, transferID int64) error {
	t, ok := r.transfers[transferID]
	if !ok || t.Status != StatusDraft {
		return ErrStatusConflict
	}
	delete(r.transfers, transferID)
	return nil
}

// fakeLedger tracks stock per warehouse and rejects negative results.
type fakeLedger struct {
	stocks map[string]float64
	posted []ledger.MovementInput
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{stocks: make(map[string]float64)}
}

func stockKey(warehouseID, productID int64) string {
	return fmt.Sprintf("%d:%d", warehouseID, productID)
}

func (f *fakeLedger) PostMovement(ctx context.Context, input ledger.MovementInput) (ledger.Movement, error) {
	key := stockKey(input.WarehouseID, input.ProductID)
	if f.stocks[key]+input.Qty < 0 {
		return ledger.Movement{}, ledger.ErrNegativeStock
	}
	f.stocks[key] += input.Qty
	f.posted = append(f.posted, input)
	return ledger.Movement{Qty: input.Qty}, nil
}

var testScope = shared.Scope{TenantID: 1, CompanyID: 1}

func draftTransfer(t *testing.T, svc *Service, items ...ItemInput) Transfer {
	t.Helper()
	tr, err := svc.Create(context.Background(), CreateInput{
		Scope: testScope, FromWarehouse: 1, ToWarehouse: 2, ActorID: 10, Items: items,
	})
	require.NoError(t, err)
	return tr
}

func TestTransferShipReceiveMovesStock(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	repo.lgr = lgr
	lgr.stocks[stockKey(1, 7)] = 100
	svc := NewService(repo, nil, lgr, nil, nil)
	ctx := context.Background()

	tr := draftTransfer(t, svc, ItemInput{ProductID: 7, Qty: 30})

	require.NoError(t, svc.Ship(ctx, testScope, tr.ID, 10))
	require.InDelta(t, 70, lgr.stocks[stockKey(1, 7)], 1e-9)
	require.InDelta(t, 0, lgr.stocks[stockKey(2, 7)], 1e-9)

	require.NoError(t, svc.Receive(ctx, testScope, tr.ID, 11))
	require.InDelta(t, 70, lgr.stocks[stockKey(1, 7)], 1e-9)
	require.InDelta(t, 30, lgr.stocks[stockKey(2, 7)], 1e-9)

	refreshed, err := svc.Get(ctx, testScope, tr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, refreshed.Status)
	require.Equal(t, int64(10), refreshed.ShippedBy)
	require.Equal(t, int64(11), refreshed.ReceivedBy)
	for _, m := range lgr.posted {
		require.Equal(t, ledger.MovementTransfer, m.Type)
		require.Equal(t, "STOCK_TRANSFER", m.Ref.Type)
	}
}

func TestTransferRejectsSameWarehouse(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, newFakeLedger(), nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		Scope: testScope, FromWarehouse: 1, ToWarehouse: 1,
		Items: []ItemInput{{ProductID: 7, Qty: 5}},
	})
	require.ErrorIs(t, err, ErrSameWarehouse)
}

func TestTransferShipInsufficientStockReverts(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	repo.lgr = lgr
	lgr.stocks[stockKey(1, 7)] = 100
	// Product 8 has nothing in the source warehouse.
	svc := NewService(repo, nil, lgr, nil, nil)
	ctx := context.Background()

	tr := draftTransfer(t, svc,
		ItemInput{ProductID: 7, Qty: 30},
		ItemInput{ProductID: 8, Qty: 5},
	)

	err := svc.Ship(ctx, testScope, tr.ID, 10)
	require.ErrorIs(t, err, ledger.ErrNegativeStock)

	// The whole claim rolled back: first item's stock is restored and the
	// transfer is still a DRAFT.
	require.InDelta(t, 100, lgr.stocks[stockKey(1, 7)], 1e-9)
	require.Empty(t, lgr.posted)
	refreshed, getErr := svc.Get(ctx, testScope, tr.ID)
	require.NoError(t, getErr)
	require.Equal(t, StatusDraft, refreshed.Status)
}

func TestTransferShipPostsItemsAsStoredAtClaim(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	repo.lgr = lgr
	lgr.stocks[stockKey(1, 7)] = 100
	svc := NewService(repo, nil, lgr, nil, nil)
	ctx := context.Background()

	tr := draftTransfer(t, svc, ItemInput{ProductID: 7, Qty: 30})

	// An edit landing before the ship claim is what ships; the stale
	// 30-unit draft never reaches the ledger.
	require.NoError(t, svc.UpdateDraft(ctx, testScope, tr.ID, "", []ItemInput{{ProductID: 7, Qty: 12}}))
	require.NoError(t, svc.Ship(ctx, testScope, tr.ID, 10))

	require.Len(t, lgr.posted, 1)
	require.InDelta(t, -12, lgr.posted[0].Qty, 1e-9)
	require.InDelta(t, 88, lgr.stocks[stockKey(1, 7)], 1e-9)
}

func TestTransferCancelAfterShipCompensates(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	repo.lgr = lgr
	lgr.stocks[stockKey(1, 7)] = 100
	svc := NewService(repo, nil, lgr, nil, nil)
	ctx := context.Background()

	tr := draftTransfer(t, svc, ItemInput{ProductID: 7, Qty: 30})
	require.NoError(t, svc.Ship(ctx, testScope, tr.ID, 10))
	require.NoError(t, svc.Cancel(ctx, testScope, tr.ID, 10))

	require.InDelta(t, 100, lgr.stocks[stockKey(1, 7)], 1e-9)
	require.InDelta(t, 0, lgr.stocks[stockKey(2, 7)], 1e-9)

	refreshed, err := svc.Get(ctx, testScope, tr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, refreshed.Status)

	// A cancelled transfer can no longer be received.
	err = svc.Receive(ctx, testScope, tr.ID, 11)
	require.ErrorIs(t, err, ErrStatusConflict)
}

func TestTransferCancelDraftPostsNothing(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	repo.lgr = lgr
	svc := NewService(repo, nil, lgr, nil, nil)
	ctx := context.Background()

	tr := draftTransfer(t, svc, ItemInput{ProductID: 7, Qty: 30})
	require.NoError(t, svc.Cancel(ctx, testScope, tr.ID, 10))
	require.Empty(t, lgr.posted)
}

// fakeCatalog marks a fixed set of products as batch tracked.
type fakeCatalog struct {
	tracked map[int64]bool
}

func (f fakeCatalog) BatchRequired(ctx context.Context, scope shared.Scope, productID int64) (bool, error) {
	return f.tracked[productID], nil
}

func TestTransferBatchTrackedNeedsBatchRef(t *testing.T) {
	repo := newMemoryRepo()
	catalog := fakeCatalog{tracked: map[int64]bool{7: true}}
	svc := NewService(repo, catalog, newFakeLedger(), nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{
		Scope: testScope, FromWarehouse: 1, ToWarehouse: 2,
		Items: []ItemInput{{ProductID: 7, Qty: 5}},
	})
	require.ErrorIs(t, err, ErrBatchRequired)
	require.ErrorIs(t, err, shared.ErrValidation)

	batchID := int64(42)
	tr, err := svc.Create(ctx, CreateInput{
		Scope: testScope, FromWarehouse: 1, ToWarehouse: 2,
		Items: []ItemInput{{ProductID: 7, BatchID: &batchID, Qty: 5}},
	})
	require.NoError(t, err)

	// Editing the draft to drop the batch reference fails the same way.
	err = svc.UpdateDraft(ctx, testScope, tr.ID, "", []ItemInput{{ProductID: 7, Qty: 5}})
	require.ErrorIs(t, err, ErrBatchRequired)
}

func TestTransferDraftEditAndDelete(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	repo.lgr = lgr
	lgr.stocks[stockKey(1, 7)] = 100
	svc := NewService(repo, nil, lgr, nil, nil)
	ctx := context.Background()

	tr := draftTransfer(t, svc, ItemInput{ProductID: 7, Qty: 30})
	require.NoError(t, svc.UpdateDraft(ctx, testScope, tr.ID, "restock", []ItemInput{{ProductID: 7, Qty: 10}}))

	refreshed, err := svc.Get(ctx, testScope, tr.ID)
	require.NoError(t, err)
	require.Len(t, refreshed.Items, 1)
	require.InDelta(t, 10, refreshed.Items[0].Qty, 1e-9)

	require.NoError(t, svc.Ship(ctx, testScope, tr.ID, 10))

	// Shipped transfers cannot be edited or deleted.
	err = svc.UpdateDraft(ctx, testScope, tr.ID, "", []ItemInput{{ProductID: 7, Qty: 1}})
	require.ErrorIs(t, err, ErrNotDraft)
	err = svc.Delete(ctx, testScope, tr.ID)
	require.ErrorIs(t, err, ErrNotDraft)
}
