package opname

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
	opnames     map[int64]Opname
	lines       map[int64][]Line
	adjustments map[int64]Adjustment
	lgr         *fakeLedger
	nextID      int64
	seq         int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		opnames:     make(map[int64]Opname),
		lines:       make(map[int64][]Line),
		adjustments: make(map[int64]Adjustment),
	}
}

// WithTx mirrors the database: a failed callback rolls back every write
// made inside it, movements and stock changes included.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	opnames := make(map[int64]Opname, len(r.opnames))
	for id, o := range r.opnames {
		o.Lines = append([]Line(nil), o.Lines...)
		opnames[id] = o
	}
	lines := make(map[int64][]Line, len(r.lines))
	for id, ls := range r.lines {
		lines[id] = append([]Line(nil), ls...)
	}
	adjustments := make(map[int64]Adjustment, len(r.adjustments))
	for id, a := range r.adjustments {
		adjustments[id] = a
	}
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
		r.opnames, r.lines, r.adjustments = opnames, lines, adjustments
		if r.lgr != nil {
			r.lgr.posted = r.lgr.posted[:posted]
			r.lgr.stocks = stocks
		}
		return err
	}
	return nil
}

func (tx *memoryTx) GetOpname(ctx context.Context, scope shared.Scope, opnameID int64) (Opname, error) {
	return tx.repo.GetOpname(ctx, scope, opnameID)
}

func (tx *memoryTx) UpdateStatus(ctx context.Context, scope shared.Scope, opnameID int64, from, to Status, actorID int64) error {
	return tx.repo.UpdateStatus(ctx, scope, opnameID, from, to, actorID)
}

func (tx *memoryTx) GetAdjustment(ctx context.Context, scope shared.Scope, adjustmentID int64) (Adjustment, error) {
	return tx.repo.GetAdjustment(ctx, scope, adjustmentID)
}

func (tx *memoryTx) UpdateAdjustmentStatus(ctx context.Context, scope shared.Scope, adjustmentID int64, from, to AdjustmentStatus, actorID int64) error {
	return tx.repo.UpdateAdjustmentStatus(ctx, scope, adjustmentID, from, to, actorID)
}

func (r *memoryRepo) NextNumber(ctx context.Context, scope shared.Scope, kind string) (string, error) {
	r.seq++
	return fmt.Sprintf("%s/202608/%04d", kind, r.seq), nil
}

func (r *memoryRepo) InsertOpname(ctx context.Context, o Opname) (int64, error) {
	r.nextID++
	o.ID = r.nextID
	o.CreatedAt = time.Now()
	r.opnames[o.ID] = o
	return o.ID, nil
}

func (r *memoryRepo) GetOpname(ctx context.Context, scope shared.Scope, opnameID int64) (Opname, error) {
	o, ok := r.opnames[opnameID]
	if !ok {
		return Opname{}, ErrOpnameNotFound
	}
	o.Lines = r.lines[opnameID]
	return o, nil
}

func (r *memoryRepo) ListOpnames(ctx context.Context, scope shared.Scope, status Status) ([]Opname, error) {
	var out []Opname
	for _, o := range r.opnames {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdateStatus(ctx context.Context, scope shared.Scope, opnameID int64, from, to Status, actorID int64) error {
	o, ok := r.opnames[opnameID]
	if !ok || o.Status != from {
		return ErrStatusConflict
	}
	o.Status = to
	if to == StatusApproved {
		o.ApprovedBy = actorID
	}
	r.opnames[opnameID] = o
	return nil
}

func (r *memoryRepo) UpsertLine(ctx context.Context, scope shared.Scope, line Line) error {
	lines := r.lines[line.OpnameID]
	for i, existing := range lines {
		if existing.ProductID == line.ProductID {
			line.ID = existing.ID
			lines[i] = line
			return nil
		}
	}
	r.nextID++
	line.ID = r.nextID
	r.lines[line.OpnameID] = append(lines, line)
	return nil
}

func (r *memoryRepo) InsertAdjustment(ctx context.Context, a Adjustment) (int64, error) {
	r.nextID++
	a.ID = r.nextID
	a.CreatedAt = time.Now()
	r.adjustments[a.ID] = a
	return a.ID, nil
}

func (r *memoryRepo) GetAdjustment(ctx context.Context, scope shared.Scope, adjustmentID int64) (Adjustment, error) {
	if a, ok := r.adjustments[adjustmentID]; ok {
		return a, nil
	}
	return Adjustment{}, ErrAdjustmentNotFound
}

func (r *memoryRepo) ListAdjustments(ctx context.Context, scope shared.Scope, status AdjustmentStatus) ([]Adjustment, error) {
	var out []Adjustment
	for _, a := range r.adjustments {
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdateAdjustmentStatus(ctx context.Context, scope shared.Scope, adjustmentID int64, from, to AdjustmentStatus, actorID int64) error {
	a, ok := r.adjustments[adjustmentID]
	if !ok || a.Status != from {
		return ErrStatusConflict
	}
	a.Status = to
	if to == AdjustmentApproved {
		a.ApprovedBy = actorID
	}
	r.adjustments[adjustmentID] = a
	return nil
}

// fakeLedger records posted movements and serves stock snapshots. It can
// reject every posting, or only postings for one stock key.
type fakeLedger struct {
	stocks  map[string]float64
	posted  []ledger.MovementInput
	failAll bool
	failKey string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{stocks: make(map[string]float64)}
}

func ledgerKey(warehouseID, productID int64) string {
	return fmt.Sprintf("%d:%d", warehouseID, productID)
}

func (f *fakeLedger) GetStock(ctx context.Context, scope shared.Scope, warehouseID, productID int64) (ledger.WarehouseStock, error) {
	qty, ok := f.stocks[ledgerKey(warehouseID, productID)]
	if !ok {
		return ledger.WarehouseStock{}, ledger.ErrStockNotFound
	}
	return ledger.WarehouseStock{WarehouseID: warehouseID, ProductID: productID, Quantity: qty}, nil
}

func (f *fakeLedger) PostMovement(ctx context.Context, input ledger.MovementInput) (ledger.Movement, error) {
	key := ledgerKey(input.WarehouseID, input.ProductID)
	if f.failAll || key == f.failKey {
		return ledger.Movement{}, ledger.ErrNegativeStock
	}
	f.stocks[key] += input.Qty
	f.posted = append(f.posted, input)
	return ledger.Movement{Qty: input.Qty}, nil
}

var testScope = shared.Scope{TenantID: 1, CompanyID: 1}

func startedOpname(t *testing.T, svc *Service) Opname {
	t.Helper()
	o, err := svc.Create(context.Background(), CreateInput{Scope: testScope, WarehouseID: 1, ActorID: 10})
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background(), testScope, o.ID, 10))
	return o
}

func TestOpnameApprovalPostsDifferences(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	repo.lgr = lgr
	lgr.stocks[ledgerKey(1, 7)] = 100
	lgr.stocks[ledgerKey(1, 8)] = 40
	svc := NewService(repo, lgr, lgr, nil, nil)
	ctx := context.Background()

	o := startedOpname(t, svc)

	line, err := svc.RecordCount(ctx, CountInput{Scope: testScope, OpnameID: o.ID, ProductID: 7, PhysicalQty: 95})
	require.NoError(t, err)
	require.InDelta(t, -5, line.DifferenceQty, 1e-9)

	// Exact count produces no movement.
	_, err = svc.RecordCount(ctx, CountInput{Scope: testScope, OpnameID: o.ID, ProductID: 8, PhysicalQty: 40})
	require.NoError(t, err)

	require.NoError(t, svc.Complete(ctx, testScope, o.ID, 10))
	require.NoError(t, svc.Approve(ctx, testScope, o.ID, 11))

	require.Len(t, lgr.posted, 1)
	require.Equal(t, ledger.MovementAdjustment, lgr.posted[0].Type)
	require.InDelta(t, -5, lgr.posted[0].Qty, 1e-9)
	require.Equal(t, "STOCK_OPNAME", lgr.posted[0].Ref.Type)
	require.InDelta(t, 95, lgr.stocks[ledgerKey(1, 7)], 1e-9)
}

func TestOpnameDoubleApproveConflicts(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	repo.lgr = lgr
	lgr.stocks[ledgerKey(1, 7)] = 10
	svc := NewService(repo, lgr, lgr, nil, nil)
	ctx := context.Background()

	o := startedOpname(t, svc)
	_, err := svc.RecordCount(ctx, CountInput{Scope: testScope, OpnameID: o.ID, ProductID: 7, PhysicalQty: 12})
	require.NoError(t, err)
	require.NoError(t, svc.Complete(ctx, testScope, o.ID, 10))
	require.NoError(t, svc.Approve(ctx, testScope, o.ID, 11))

	err = svc.Approve(ctx, testScope, o.ID, 11)
	require.ErrorIs(t, err, ErrStatusConflict)
	require.Len(t, lgr.posted, 1)
}

func TestOpnameCountOutsideProgress(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	repo.lgr = lgr
	svc := NewService(repo, lgr, lgr, nil, nil)
	ctx := context.Background()

	o, err := svc.Create(ctx, CreateInput{Scope: testScope, WarehouseID: 1, ActorID: 10})
	require.NoError(t, err)

	_, err = svc.RecordCount(ctx, CountInput{Scope: testScope, OpnameID: o.ID, ProductID: 7, PhysicalQty: 5})
	require.ErrorIs(t, err, ErrNotCounting)
}

func TestOpnameCompleteNeedsLines(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	repo.lgr = lgr
	svc := NewService(repo, lgr, lgr, nil, nil)
	ctx := context.Background()

	o := startedOpname(t, svc)
	err := svc.Complete(ctx, testScope, o.ID, 10)
	require.ErrorIs(t, err, ErrNoLines)
	require.ErrorIs(t, err, shared.ErrBusinessRule)
}

func TestOpnameApprovePostFailureRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	repo.lgr = lgr
	lgr.stocks[ledgerKey(1, 7)] = 10
	svc := NewService(repo, lgr, lgr, nil, nil)
	ctx := context.Background()

	o := startedOpname(t, svc)
	_, err := svc.RecordCount(ctx, CountInput{Scope: testScope, OpnameID: o.ID, ProductID: 7, PhysicalQty: 3})
	require.NoError(t, err)
	require.NoError(t, svc.Complete(ctx, testScope, o.ID, 10))

	lgr.failAll = true
	err = svc.Approve(ctx, testScope, o.ID, 11)
	require.Error(t, err)

	refreshed, err := svc.Get(ctx, testScope, o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, refreshed.Status)
	require.Empty(t, lgr.posted)
	require.InDelta(t, 10, lgr.stocks[ledgerKey(1, 7)], 1e-9)
}

func TestOpnameApproveRetryPostsEachLineOnce(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	repo.lgr = lgr
	lgr.stocks[ledgerKey(1, 7)] = 10
	lgr.stocks[ledgerKey(1, 8)] = 8
	svc := NewService(repo, lgr, lgr, nil, nil)
	ctx := context.Background()

	o := startedOpname(t, svc)
	_, err := svc.RecordCount(ctx, CountInput{Scope: testScope, OpnameID: o.ID, ProductID: 7, PhysicalQty: 12})
	require.NoError(t, err)
	_, err = svc.RecordCount(ctx, CountInput{Scope: testScope, OpnameID: o.ID, ProductID: 8, PhysicalQty: 0})
	require.NoError(t, err)
	require.NoError(t, svc.Complete(ctx, testScope, o.ID, 10))

	// The second line is rejected after the first already posted. The
	// whole approval rolls back: no movement sticks, stocks untouched.
	lgr.failKey = ledgerKey(1, 8)
	err = svc.Approve(ctx, testScope, o.ID, 11)
	require.Error(t, err)
	require.Empty(t, lgr.posted)
	require.InDelta(t, 10, lgr.stocks[ledgerKey(1, 7)], 1e-9)
	require.InDelta(t, 8, lgr.stocks[ledgerKey(1, 8)], 1e-9)

	refreshed, err := svc.Get(ctx, testScope, o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, refreshed.Status)

	// After the cause is repaired, re-approval posts every line exactly once.
	lgr.failKey = ""
	require.NoError(t, svc.Approve(ctx, testScope, o.ID, 11))
	require.Len(t, lgr.posted, 2)
	counts := make(map[int64]int)
	for _, m := range lgr.posted {
		counts[m.ProductID]++
	}
	require.Equal(t, map[int64]int{7: 1, 8: 1}, counts)
	require.InDelta(t, 12, lgr.stocks[ledgerKey(1, 7)], 1e-9)
	require.InDelta(t, 0, lgr.stocks[ledgerKey(1, 8)], 1e-9)
}

func TestAdjustmentLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	repo.lgr = lgr
	lgr.stocks[ledgerKey(1, 7)] = 50
	svc := NewService(repo, lgr, lgr, nil, nil)
	ctx := context.Background()

	a, err := svc.CreateAdjustment(ctx, AdjustmentInput{
		Scope: testScope, WarehouseID: 1, ProductID: 7,
		Type: AdjustmentDecrease, Reason: ReasonDamaged, Qty: 5, ActorID: 10,
	})
	require.NoError(t, err)
	require.Equal(t, AdjustmentPending, a.Status)

	require.NoError(t, svc.ApproveAdjustment(ctx, testScope, a.ID, 11))
	require.Len(t, lgr.posted, 1)
	require.InDelta(t, -5, lgr.posted[0].Qty, 1e-9)
	require.Equal(t, "STOCK_ADJUSTMENT", lgr.posted[0].Ref.Type)

	// Approving twice conflicts.
	err = svc.ApproveAdjustment(ctx, testScope, a.ID, 11)
	require.ErrorIs(t, err, ErrStatusConflict)
}

func TestAdjustmentValidation(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	repo.lgr = lgr
	svc := NewService(repo, lgr, lgr, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateAdjustment(ctx, AdjustmentInput{
		Scope: testScope, WarehouseID: 1, ProductID: 7,
		Type: "SIDEWAYS", Reason: ReasonOther, Qty: 5,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateAdjustment(ctx, AdjustmentInput{
		Scope: testScope, WarehouseID: 1, ProductID: 7,
		Type: AdjustmentIncrease, Reason: "WHIM", Qty: 5,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateAdjustment(ctx, AdjustmentInput{
		Scope: testScope, WarehouseID: 1, ProductID: 7,
		Type: AdjustmentIncrease, Reason: ReasonFound, Qty: 0,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRejectAdjustment(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	repo.lgr = lgr
	svc := NewService(repo, lgr, lgr, nil, nil)
	ctx := context.Background()

	a, err := svc.CreateAdjustment(ctx, AdjustmentInput{
		Scope: testScope, WarehouseID: 1, ProductID: 7,
		Type: AdjustmentIncrease, Reason: ReasonFound, Qty: 5, ActorID: 10,
	})
	require.NoError(t, err)
	require.NoError(t, svc.RejectAdjustment(ctx, testScope, a.ID, 11))
	require.Empty(t, lgr.posted)

	refreshed, err := svc.GetAdjustment(ctx, testScope, a.ID)
	require.NoError(t, err)
	require.Equal(t, AdjustmentRejected, refreshed.Status)
}
