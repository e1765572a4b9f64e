package procurement

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/niaga-erp/niaga-erp/internal/ledger"
	"github.com/niaga-erp/niaga-erp/internal/shared"
	"github.com/niaga-erp/niaga-erp/internal/tolerance"
)

type memoryRepo struct {
	orders   map[int64]PurchaseOrder
	receipts map[int64]GoodsReceipt
	invoices map[int64]APInvoice
	lgr      *fakeLedger
	nextID   int64
	seq      int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders:   make(map[int64]PurchaseOrder),
		receipts: make(map[int64]GoodsReceipt),
		invoices: make(map[int64]APInvoice),
	}
}

func cloneOrders(src map[int64]PurchaseOrder) map[int64]PurchaseOrder {
	out := make(map[int64]PurchaseOrder, len(src))
	for id, po := range src {
		po.Lines = append([]POLine(nil), po.Lines...)
		out[id] = po
	}
	return out
}

func cloneReceipts(src map[int64]GoodsReceipt) map[int64]GoodsReceipt {
	out := make(map[int64]GoodsReceipt, len(src))
	for id, grn := range src {
		grn.Lines = append([]GRNLine(nil), grn.Lines...)
		out[id] = grn
	}
	return out
}

func cloneInvoices(src map[int64]APInvoice) map[int64]APInvoice {
	out := make(map[int64]APInvoice, len(src))
	for id, inv := range src {
		inv.Lines = append([]InvoiceLine(nil), inv.Lines...)
		out[id] = inv
	}
	return out
}

// WithTx mirrors the database: a failed callback rolls back every write
// made inside it, movements included.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	orders, receipts, invoices := cloneOrders(r.orders), cloneReceipts(r.receipts), cloneInvoices(r.invoices)
	posted := 0
	if r.lgr != nil {
		posted = len(r.lgr.posted)
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.orders, r.receipts, r.invoices = orders, receipts, invoices
		if r.lgr != nil {
			r.lgr.posted = r.lgr.posted[:posted]
		}
		return err
	}
	return nil
}

func (r *memoryRepo) NextNumber(ctx context.Context, scope shared.Scope, kind string) (string, error) {
	r.seq++
	return fmt.Sprintf("%s/202608/%04d", kind, r.seq), nil
}

func (r *memoryRepo) GetOrder(ctx context.Context, scope shared.Scope, poID int64) (PurchaseOrder, error) {
	if po, ok := r.orders[poID]; ok {
		return po, nil
	}
	return PurchaseOrder{}, ErrOrderNotFound
}

func (r *memoryRepo) ListOrders(ctx context.Context, scope shared.Scope, status OrderStatus) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	for _, po := range r.orders {
		if status == "" || po.Status == status {
			out = append(out, po)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetReceipt(ctx context.Context, scope shared.Scope, grnID int64) (GoodsReceipt, error) {
	if grn, ok := r.receipts[grnID]; ok {
		return grn, nil
	}
	return GoodsReceipt{}, ErrOrderNotFound
}

func (r *memoryRepo) ListReceipts(ctx context.Context, scope shared.Scope, poID int64) ([]GoodsReceipt, error) {
	var out []GoodsReceipt
	for _, grn := range r.receipts {
		if grn.POID == poID {
			out = append(out, grn)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetInvoice(ctx context.Context, scope shared.Scope, invoiceID int64) (APInvoice, error) {
	if inv, ok := r.invoices[invoiceID]; ok {
		return inv, nil
	}
	return APInvoice{}, ErrOrderNotFound
}

func (r *memoryRepo) ListInvoices(ctx context.Context, scope shared.Scope, poID int64) ([]APInvoice, error) {
	var out []APInvoice
	for _, inv := range r.invoices {
		if inv.POID == poID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	tx.repo.nextID++
	po.ID = tx.repo.nextID
	po.CreatedAt = time.Now()
	tx.repo.orders[po.ID] = po
	return po.ID, nil
}

func (tx *memoryTx) InsertOrderLine(ctx context.Context, line POLine) (int64, error) {
	po := tx.repo.orders[line.POID]
	tx.repo.nextID++
	line.ID = tx.repo.nextID
	po.Lines = append(po.Lines, line)
	tx.repo.orders[line.POID] = po
	return line.ID, nil
}

func (tx *memoryTx) GetOrderForUpdate(ctx context.Context, scope shared.Scope, poID int64) (PurchaseOrder, error) {
	return tx.repo.GetOrder(ctx, scope, poID)
}

func (tx *memoryTx) UpdateOrderStatus(ctx context.Context, scope shared.Scope, poID int64, from, to OrderStatus) error {
	po, ok := tx.repo.orders[poID]
	if !ok || po.Status != from {
		return ErrStatusConflict
	}
	po.Status = to
	tx.repo.orders[poID] = po
	return nil
}

func (tx *memoryTx) MarkShortClosed(ctx context.Context, scope shared.Scope, poID int64) error {
	po, ok := tx.repo.orders[poID]
	if !ok {
		return ErrOrderNotFound
	}
	po.ShortClosed = true
	tx.repo.orders[poID] = po
	return nil
}

func (tx *memoryTx) SetInvoiceStatus(ctx context.Context, scope shared.Scope, poID int64, status InvoiceStatus) error {
	po, ok := tx.repo.orders[poID]
	if !ok {
		return ErrOrderNotFound
	}
	po.InvoiceStatus = status
	tx.repo.orders[poID] = po
	return nil
}

func (tx *memoryTx) advanceLine(lineID int64, fn func(*POLine)) error {
	for poID, po := range tx.repo.orders {
		for i := range po.Lines {
			if po.Lines[i].ID == lineID {
				fn(&po.Lines[i])
				tx.repo.orders[poID] = po
				return nil
			}
		}
	}
	return ErrLineMismatch
}

func (tx *memoryTx) AdvanceLineReceived(ctx context.Context, lineID int64, delta float64) error {
	return tx.advanceLine(lineID, func(l *POLine) { l.ReceivedQty += delta })
}

func (tx *memoryTx) AdvanceLineInvoiced(ctx context.Context, lineID int64, delta float64) error {
	return tx.advanceLine(lineID, func(l *POLine) { l.InvoicedQty += delta })
}

func (tx *memoryTx) InsertReceipt(ctx context.Context, grn GoodsReceipt) (int64, error) {
	tx.repo.nextID++
	grn.ID = tx.repo.nextID
	grn.CreatedAt = time.Now()
	tx.repo.receipts[grn.ID] = grn
	return grn.ID, nil
}

func (tx *memoryTx) InsertReceiptLine(ctx context.Context, line GRNLine) (int64, error) {
	grn := tx.repo.receipts[line.GRNID]
	tx.repo.nextID++
	line.ID = tx.repo.nextID
	grn.Lines = append(grn.Lines, line)
	tx.repo.receipts[line.GRNID] = grn
	return line.ID, nil
}

func (tx *memoryTx) InsertInvoice(ctx context.Context, inv APInvoice) (int64, error) {
	tx.repo.nextID++
	inv.ID = tx.repo.nextID
	inv.CreatedAt = time.Now()
	tx.repo.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (tx *memoryTx) InsertInvoiceLine(ctx context.Context, line InvoiceLine) (int64, error) {
	inv := tx.repo.invoices[line.InvoiceID]
	tx.repo.nextID++
	line.ID = tx.repo.nextID
	inv.Lines = append(inv.Lines, line)
	inv.Total += line.Qty * line.UnitPrice
	tx.repo.invoices[line.InvoiceID] = inv
	return line.ID, nil
}

// fixedTolerance resolves the same allowance for every product.
type fixedTolerance struct {
	resolved tolerance.Resolved
}

func (f fixedTolerance) Resolve(ctx context.Context, scope shared.Scope, productID int64, categoryName string) (tolerance.Resolved, error) {
	return f.resolved, nil
}

type fakeCatalog struct{}

func (fakeCatalog) ProductCategory(ctx context.Context, scope shared.Scope, productID int64) (string, error) {
	return "beverages", nil
}

type fakeLedger struct {
	posted   []ledger.MovementInput
	failWith error
}

func (f *fakeLedger) PostMovement(ctx context.Context, input ledger.MovementInput) (ledger.Movement, error) {
	if f.failWith != nil {
		return ledger.Movement{}, f.failWith
	}
	f.posted = append(f.posted, input)
	return ledger.Movement{Qty: input.Qty}, nil
}

var testScope = shared.Scope{TenantID: 1, CompanyID: 1}

func confirmedOrder(t *testing.T, svc *Service, lines ...OrderLineInput) PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	po, err := svc.CreateOrder(ctx, CreateOrderInput{
		Scope: testScope, SupplierID: 1, WarehouseID: 1, ActorID: 10, Lines: lines,
	})
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmOrder(ctx, testScope, po.ID, 10))
	refreshed, err := svc.GetOrder(ctx, testScope, po.ID)
	require.NoError(t, err)
	return refreshed
}

func newTestService(repo *memoryRepo, lgr *fakeLedger, overPct float64) *Service {
	repo.lgr = lgr
	return NewService(repo, fixedTolerance{tolerance.Resolved{OverPct: overPct, UnderPct: overPct, Source: tolerance.LevelCompany}},
		fakeCatalog{}, lgr, nil, nil)
}

func TestReceiveAdvancesAndPostsAccepted(t *testing.T) {
	repo := newMemoryRepo()
	lgr := &fakeLedger{}
	svc := newTestService(repo, lgr, 0)
	ctx := context.Background()

	po := confirmedOrder(t, svc, OrderLineInput{ProductID: 7, Qty: 100, UnitPrice: 2})
	lineID := po.Lines[0].ID

	grn, err := svc.Receive(ctx, ReceiveInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []ReceiveLineInput{{
			POLineID: lineID, ReceivedQty: 60, AcceptedQty: 55, RejectedQty: 5, RejectReason: "crushed cartons",
		}},
	})
	require.NoError(t, err)
	require.Len(t, grn.Lines, 1)
	require.InDelta(t, 100, grn.Lines[0].OrderedQty, 1e-9)

	// Only the accepted portion reaches stock and the PO accumulator.
	require.Len(t, lgr.posted, 1)
	require.Equal(t, ledger.MovementIn, lgr.posted[0].Type)
	require.InDelta(t, 55, lgr.posted[0].Qty, 1e-9)
	require.Equal(t, "GOODS_RECEIPT", lgr.posted[0].Ref.Type)

	refreshed, err := svc.GetOrder(ctx, testScope, po.ID)
	require.NoError(t, err)
	require.InDelta(t, 55, refreshed.Lines[0].ReceivedQty, 1e-9)
	require.Equal(t, OrderConfirmed, refreshed.Status)
}

func TestReceiveCompletesOrderWhenFull(t *testing.T) {
	repo := newMemoryRepo()
	lgr := &fakeLedger{}
	svc := newTestService(repo, lgr, 0)
	ctx := context.Background()

	po := confirmedOrder(t, svc, OrderLineInput{ProductID: 7, Qty: 50, UnitPrice: 2})
	_, err := svc.Receive(ctx, ReceiveInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []ReceiveLineInput{{POLineID: po.Lines[0].ID, ReceivedQty: 50, AcceptedQty: 50}},
	})
	require.NoError(t, err)

	refreshed, err := svc.GetOrder(ctx, testScope, po.ID)
	require.NoError(t, err)
	require.Equal(t, OrderCompleted, refreshed.Status)

	// A completed order no longer receives.
	_, err = svc.Receive(ctx, ReceiveInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []ReceiveLineInput{{POLineID: po.Lines[0].ID, ReceivedQty: 1, AcceptedQty: 1}},
	})
	require.ErrorIs(t, err, ErrNotReceivable)
}

func TestReceivePostFailureRollsBackReceipt(t *testing.T) {
	repo := newMemoryRepo()
	lgr := &fakeLedger{}
	svc := newTestService(repo, lgr, 0)
	ctx := context.Background()

	po := confirmedOrder(t, svc, OrderLineInput{ProductID: 7, Qty: 100, UnitPrice: 2})
	lgr.failWith = errors.New("ledger unavailable")

	_, err := svc.Receive(ctx, ReceiveInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []ReceiveLineInput{{POLineID: po.Lines[0].ID, ReceivedQty: 60, AcceptedQty: 60}},
	})
	require.Error(t, err)

	// Document and accumulator rolled back with the movement: nothing was
	// received and the order is still open for another attempt.
	refreshed, err := svc.GetOrder(ctx, testScope, po.ID)
	require.NoError(t, err)
	require.InDelta(t, 0, refreshed.Lines[0].ReceivedQty, 1e-9)
	require.Equal(t, OrderConfirmed, refreshed.Status)
	require.Empty(t, lgr.posted)
	receipts, err := svc.ListReceipts(ctx, testScope, po.ID)
	require.NoError(t, err)
	require.Empty(t, receipts)

	lgr.failWith = nil
	_, err = svc.Receive(ctx, ReceiveInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []ReceiveLineInput{{POLineID: po.Lines[0].ID, ReceivedQty: 60, AcceptedQty: 60}},
	})
	require.NoError(t, err)
	require.Len(t, lgr.posted, 1)
}

func TestReceiveToleranceGate(t *testing.T) {
	repo := newMemoryRepo()
	lgr := &fakeLedger{}
	svc := newTestService(repo, lgr, 10)
	ctx := context.Background()

	po := confirmedOrder(t, svc, OrderLineInput{ProductID: 7, Qty: 100, UnitPrice: 2})
	lineID := po.Lines[0].ID

	// 10% over-delivery allows up to 110.
	_, err := svc.Receive(ctx, ReceiveInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []ReceiveLineInput{{POLineID: lineID, ReceivedQty: 110, AcceptedQty: 110}},
	})
	require.NoError(t, err)

	// The next accepted unit breaches the allowance.
	_, err = svc.Receive(ctx, ReceiveInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []ReceiveLineInput{{POLineID: lineID, ReceivedQty: 1, AcceptedQty: 1}},
	})
	require.ErrorIs(t, err, ErrToleranceExceeded)
	require.ErrorIs(t, err, shared.ErrBusinessRule)
}

func TestReceiveUnlimitedOverLiftsCeiling(t *testing.T) {
	repo := newMemoryRepo()
	lgr := &fakeLedger{}
	repo.lgr = lgr
	svc := NewService(repo, fixedTolerance{tolerance.Resolved{UnlimitedOver: true, Source: tolerance.LevelProduct}},
		fakeCatalog{}, lgr, nil, nil)
	ctx := context.Background()

	po := confirmedOrder(t, svc, OrderLineInput{ProductID: 7, Qty: 100, UnitPrice: 2})
	_, err := svc.Receive(ctx, ReceiveInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []ReceiveLineInput{{POLineID: po.Lines[0].ID, ReceivedQty: 250, AcceptedQty: 250}},
	})
	require.NoError(t, err)
	require.Len(t, lgr.posted, 1)
	require.InDelta(t, 250, lgr.posted[0].Qty, 1e-9)
}

func TestReceiveStrictToleranceRejectsOverage(t *testing.T) {
	repo := newMemoryRepo()
	lgr := &fakeLedger{}
	svc := newTestService(repo, lgr, 0)
	ctx := context.Background()

	po := confirmedOrder(t, svc, OrderLineInput{ProductID: 7, Qty: 100, UnitPrice: 2})
	_, err := svc.Receive(ctx, ReceiveInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []ReceiveLineInput{{POLineID: po.Lines[0].ID, ReceivedQty: 101, AcceptedQty: 101}},
	})
	require.ErrorIs(t, err, ErrToleranceExceeded)
	require.Empty(t, lgr.posted)
}

func TestReceiveSplitValidation(t *testing.T) {
	repo := newMemoryRepo()
	lgr := &fakeLedger{}
	svc := newTestService(repo, lgr, 0)
	ctx := context.Background()

	po := confirmedOrder(t, svc, OrderLineInput{ProductID: 7, Qty: 100, UnitPrice: 2})
	lineID := po.Lines[0].ID

	_, err := svc.Receive(ctx, ReceiveInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []ReceiveLineInput{{POLineID: lineID, ReceivedQty: 10, AcceptedQty: 4, RejectedQty: 5, RejectReason: "short"}},
	})
	require.ErrorIs(t, err, ErrSplitMismatch)

	_, err = svc.Receive(ctx, ReceiveInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []ReceiveLineInput{{POLineID: lineID, ReceivedQty: 10, AcceptedQty: 5, RejectedQty: 5}},
	})
	require.ErrorIs(t, err, ErrRejectReasonRequired)
}

func TestInvoiceRemainderGuard(t *testing.T) {
	repo := newMemoryRepo()
	lgr := &fakeLedger{}
	svc := newTestService(repo, lgr, 0)
	ctx := context.Background()

	po := confirmedOrder(t, svc, OrderLineInput{ProductID: 7, Qty: 100, UnitPrice: 2})
	lineID := po.Lines[0].ID

	// Billing is capped by the ordered quantity, not by receipts, so a
	// pre-payment invoice before any goods arrive is fine.
	inv, err := svc.Invoice(ctx, InvoiceInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []InvoiceLineInput{{POLineID: lineID, Qty: 60, UnitPrice: 2}},
	})
	require.NoError(t, err)
	require.InDelta(t, 120, inv.Total, 1e-9)

	refreshed, err := svc.GetOrder(ctx, testScope, po.ID)
	require.NoError(t, err)
	require.Equal(t, PartiallyInvoiced, refreshed.InvoiceStatus)

	// Remainder is 40: billing 50 fails, billing exactly 40 closes it out.
	_, err = svc.Invoice(ctx, InvoiceInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []InvoiceLineInput{{POLineID: lineID, Qty: 50, UnitPrice: 2}},
	})
	require.ErrorIs(t, err, ErrOverInvoiced)
	require.ErrorIs(t, err, shared.ErrBusinessRule)

	_, err = svc.Invoice(ctx, InvoiceInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []InvoiceLineInput{{POLineID: lineID, Qty: 40, UnitPrice: 2}},
	})
	require.NoError(t, err)

	refreshed, err = svc.GetOrder(ctx, testScope, po.ID)
	require.NoError(t, err)
	require.Equal(t, FullyInvoiced, refreshed.InvoiceStatus)
}

func TestInvoiceStatusFullyInvoiced(t *testing.T) {
	repo := newMemoryRepo()
	lgr := &fakeLedger{}
	svc := newTestService(repo, lgr, 0)
	ctx := context.Background()

	po := confirmedOrder(t, svc, OrderLineInput{ProductID: 7, Qty: 50, UnitPrice: 2})
	lineID := po.Lines[0].ID

	_, err := svc.Receive(ctx, ReceiveInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []ReceiveLineInput{{POLineID: lineID, ReceivedQty: 50, AcceptedQty: 50}},
	})
	require.NoError(t, err)
	_, err = svc.Invoice(ctx, InvoiceInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []InvoiceLineInput{{POLineID: lineID, Qty: 50, UnitPrice: 2}},
	})
	require.NoError(t, err)

	refreshed, err := svc.GetOrder(ctx, testScope, po.ID)
	require.NoError(t, err)
	require.Equal(t, FullyInvoiced, refreshed.InvoiceStatus)
}

func TestShortClose(t *testing.T) {
	repo := newMemoryRepo()
	lgr := &fakeLedger{}
	svc := newTestService(repo, lgr, 0)
	ctx := context.Background()

	po := confirmedOrder(t, svc, OrderLineInput{ProductID: 7, Qty: 100, UnitPrice: 2})
	_, err := svc.Receive(ctx, ReceiveInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []ReceiveLineInput{{POLineID: po.Lines[0].ID, ReceivedQty: 30, AcceptedQty: 30}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.ShortClose(ctx, testScope, po.ID, 10))
	refreshed, err := svc.GetOrder(ctx, testScope, po.ID)
	require.NoError(t, err)
	require.Equal(t, OrderCompleted, refreshed.Status)

	require.True(t, refreshed.ShortClosed)

	// Short-close freezes both accumulators: no more receipts and no
	// more invoices.
	_, err = svc.Receive(ctx, ReceiveInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []ReceiveLineInput{{POLineID: po.Lines[0].ID, ReceivedQty: 1, AcceptedQty: 1}},
	})
	require.ErrorIs(t, err, ErrNotReceivable)

	_, err = svc.Invoice(ctx, InvoiceInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []InvoiceLineInput{{POLineID: po.Lines[0].ID, Qty: 30, UnitPrice: 2}},
	})
	require.ErrorIs(t, err, ErrNotInvoiceable)
	require.ErrorIs(t, err, shared.ErrBusinessRule)
}

func TestInvoiceAllowedAfterNaturalCompletion(t *testing.T) {
	repo := newMemoryRepo()
	lgr := &fakeLedger{}
	svc := newTestService(repo, lgr, 0)
	ctx := context.Background()

	po := confirmedOrder(t, svc, OrderLineInput{ProductID: 7, Qty: 50, UnitPrice: 2})
	_, err := svc.Receive(ctx, ReceiveInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []ReceiveLineInput{{POLineID: po.Lines[0].ID, ReceivedQty: 50, AcceptedQty: 50}},
	})
	require.NoError(t, err)

	refreshed, err := svc.GetOrder(ctx, testScope, po.ID)
	require.NoError(t, err)
	require.Equal(t, OrderCompleted, refreshed.Status)
	require.False(t, refreshed.ShortClosed)

	// Completion through full receipt keeps the order billable.
	_, err = svc.Invoice(ctx, InvoiceInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []InvoiceLineInput{{POLineID: po.Lines[0].ID, Qty: 50, UnitPrice: 2}},
	})
	require.NoError(t, err)
}

func TestInvoiceAgainstDraftFails(t *testing.T) {
	repo := newMemoryRepo()
	lgr := &fakeLedger{}
	svc := newTestService(repo, lgr, 0)
	ctx := context.Background()

	po, err := svc.CreateOrder(ctx, CreateOrderInput{
		Scope: testScope, SupplierID: 1, WarehouseID: 1, ActorID: 10,
		Lines: []OrderLineInput{{ProductID: 7, Qty: 10, UnitPrice: 1}},
	})
	require.NoError(t, err)

	_, err = svc.Invoice(ctx, InvoiceInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []InvoiceLineInput{{POLineID: po.Lines[0].ID, Qty: 5, UnitPrice: 1}},
	})
	require.ErrorIs(t, err, ErrNotInvoiceable)
}

func TestReceiveAgainstDraftFails(t *testing.T) {
	repo := newMemoryRepo()
	lgr := &fakeLedger{}
	svc := newTestService(repo, lgr, 0)
	ctx := context.Background()

	po, err := svc.CreateOrder(ctx, CreateOrderInput{
		Scope: testScope, SupplierID: 1, WarehouseID: 1, ActorID: 10,
		Lines: []OrderLineInput{{ProductID: 7, Qty: 10, UnitPrice: 1}},
	})
	require.NoError(t, err)

	_, err = svc.Receive(ctx, ReceiveInput{
		Scope: testScope, POID: po.ID, ActorID: 10,
		Lines: []ReceiveLineInput{{POLineID: po.Lines[0].ID, ReceivedQty: 5, AcceptedQty: 5}},
	})
	require.ErrorIs(t, err, ErrNotReceivable)
}
