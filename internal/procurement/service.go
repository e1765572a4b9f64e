package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/niaga-erp/niaga-erp/internal/ledger"
	"github.com/niaga-erp/niaga-erp/internal/shared"
	"github.com/niaga-erp/niaga-erp/internal/tolerance"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	NextNumber(ctx context.Context, scope shared.Scope, kind string) (string, error)
	GetOrder(ctx context.Context, scope shared.Scope, poID int64) (PurchaseOrder, error)
	ListOrders(ctx context.Context, scope shared.Scope, status OrderStatus) ([]PurchaseOrder, error)
	GetReceipt(ctx context.Context, scope shared.Scope, grnID int64) (GoodsReceipt, error)
	ListReceipts(ctx context.Context, scope shared.Scope, poID int64) ([]GoodsReceipt, error)
	GetInvoice(ctx context.Context, scope shared.Scope, invoiceID int64) (APInvoice, error)
	ListInvoices(ctx context.Context, scope shared.Scope, poID int64) ([]APInvoice, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertOrderLine(ctx context.Context, line POLine) (int64, error)
	GetOrderForUpdate(ctx context.Context, scope shared.Scope, poID int64) (PurchaseOrder, error)
	UpdateOrderStatus(ctx context.Context, scope shared.Scope, poID int64, from, to OrderStatus) error
	MarkShortClosed(ctx context.Context, scope shared.Scope, poID int64) error
	SetInvoiceStatus(ctx context.Context, scope shared.Scope, poID int64, status InvoiceStatus) error
	AdvanceLineReceived(ctx context.Context, lineID int64, delta float64) error
	AdvanceLineInvoiced(ctx context.Context, lineID int64, delta float64) error
	InsertReceipt(ctx context.Context, grn GoodsReceipt) (int64, error)
	InsertReceiptLine(ctx context.Context, line GRNLine) (int64, error)
	InsertInvoice(ctx context.Context, inv APInvoice) (int64, error)
	InsertInvoiceLine(ctx context.Context, line InvoiceLine) (int64, error)
}

// TolerancePort resolves the over-delivery allowance for a product.
type TolerancePort interface {
	Resolve(ctx context.Context, scope shared.Scope, productID int64, categoryName string) (tolerance.Resolved, error)
}

// CatalogPort supplies the product category used in tolerance resolution.
type CatalogPort interface {
	ProductCategory(ctx context.Context, scope shared.Scope, productID int64) (string, error)
}

// MovementPoster posts stock movements through the ledger.
type MovementPoster interface {
	PostMovement(ctx context.Context, input ledger.MovementInput) (ledger.Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the procurement fulfillment tracker: orders, receipts
// gated by delivery tolerance, and invoices guarded by the received
// remainder.
type Service struct {
	repo       RepositoryPort
	tolerances TolerancePort
	catalog    CatalogPort
	poster     MovementPoster
	audit      AuditPort
	logger     *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, tolerances TolerancePort, catalog CatalogPort, poster MovementPoster, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tolerances: tolerances, catalog: catalog, poster: poster, audit: audit, logger: logger}
}

const qtyEpsilon = 1e-6

// CreateOrder opens a DRAFT purchase order with its lines.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (PurchaseOrder, error) {
	if err := input.Scope.Validate(); err != nil {
		return PurchaseOrder{}, err
	}
	if input.SupplierID == 0 || input.WarehouseID == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: supplier and warehouse required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 || line.Qty <= 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: line product and positive quantity required", shared.ErrValidation)
		}
		if line.UnitPrice < 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: unit price must be >= 0", shared.ErrValidation)
		}
	}
	number, err := s.repo.NextNumber(ctx, input.Scope, "PO")
	if err != nil {
		return PurchaseOrder{}, err
	}
	po := PurchaseOrder{
		TenantID:      input.Scope.TenantID,
		CompanyID:     input.Scope.CompanyID,
		Number:        number,
		SupplierID:    input.SupplierID,
		WarehouseID:   input.WarehouseID,
		Status:        OrderDraft,
		InvoiceStatus: NotInvoiced,
		ExpectedDate:  input.ExpectedDate,
		Notes:         input.Notes,
		CreatedBy:     input.ActorID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertOrder(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		for _, line := range input.Lines {
			poLine := POLine{POID: id, ProductID: line.ProductID, Qty: line.Qty, UnitPrice: line.UnitPrice}
			lineID, err := tx.InsertOrderLine(ctx, poLine)
			if err != nil {
				return err
			}
			poLine.ID = lineID
			po.Lines = append(po.Lines, poLine)
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.record(ctx, input.Scope, input.ActorID, "procurement:order_create", po.ID, po.Number)
	return po, nil
}

// ConfirmOrder moves DRAFT to CONFIRMED; only confirmed orders receive.
func (s *Service) ConfirmOrder(ctx context.Context, scope shared.Scope, poID, actorID int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateOrderStatus(ctx, scope, poID, OrderDraft, OrderConfirmed)
	})
}

// CancelOrder abandons a DRAFT order.
func (s *Service) CancelOrder(ctx context.Context, scope shared.Scope, poID, actorID int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateOrderStatus(ctx, scope, poID, OrderDraft, OrderCancelled)
	})
}

// ShortClose completes a CONFIRMED order without waiting for the
// remaining quantity. The order is flagged so receipt and invoice
// accumulation stay frozen afterwards.
func (s *Service) ShortClose(ctx context.Context, scope shared.Scope, poID, actorID int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateOrderStatus(ctx, scope, poID, OrderConfirmed, OrderCompleted); err != nil {
			return err
		}
		return tx.MarkShortClosed(ctx, scope, poID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, scope, actorID, "procurement:short_close", poID, "")
	return nil
}

// Receive records a goods receipt against a confirmed order. Accepted
// quantity is capped by the resolved over-delivery tolerance per line and
// posts an IN movement in the same transaction as the receipt document;
// the rejected portion never touches stock.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (GoodsReceipt, error) {
	if err := input.Scope.Validate(); err != nil {
		return GoodsReceipt{}, err
	}
	if len(input.Lines) == 0 {
		return GoodsReceipt{}, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.ReceivedQty <= 0 {
			return GoodsReceipt{}, fmt.Errorf("%w: received quantity must be positive", shared.ErrValidation)
		}
		if line.AcceptedQty < 0 || line.RejectedQty < 0 {
			return GoodsReceipt{}, fmt.Errorf("%w: accepted and rejected must be >= 0", shared.ErrValidation)
		}
		if math.Abs(line.AcceptedQty+line.RejectedQty-line.ReceivedQty) > qtyEpsilon {
			return GoodsReceipt{}, ErrSplitMismatch
		}
		if line.RejectedQty > qtyEpsilon && line.RejectReason == "" {
			return GoodsReceipt{}, ErrRejectReasonRequired
		}
	}
	number, err := s.repo.NextNumber(ctx, input.Scope, "GRN")
	if err != nil {
		return GoodsReceipt{}, err
	}
	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	grn := GoodsReceipt{
		TenantID:   input.Scope.TenantID,
		CompanyID:  input.Scope.CompanyID,
		POID:       input.POID,
		Number:     number,
		ReceivedAt: receivedAt,
		ReceivedBy: input.ActorID,
		Notes:      input.Notes,
	}
	var po PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetOrderForUpdate(ctx, input.Scope, input.POID)
		if err != nil {
			return err
		}
		if po.Status != OrderConfirmed {
			return ErrNotReceivable
		}
		lineByID := make(map[int64]POLine, len(po.Lines))
		for _, line := range po.Lines {
			lineByID[line.ID] = line
		}

		grnID, err := tx.InsertReceipt(ctx, grn)
		if err != nil {
			return err
		}
		grn.ID = grnID

		for _, line := range input.Lines {
			poLine, ok := lineByID[line.POLineID]
			if !ok {
				return ErrLineMismatch
			}
			allowed, err := s.allowedQty(ctx, input.Scope, poLine)
			if err != nil {
				return err
			}
			if poLine.ReceivedQty+line.AcceptedQty > allowed+qtyEpsilon {
				return fmt.Errorf("%w: product %d allows %.3f, already received %.3f, accepting %.3f",
					ErrToleranceExceeded, poLine.ProductID, allowed, poLine.ReceivedQty, line.AcceptedQty)
			}
			grnLine := GRNLine{
				GRNID:        grnID,
				POLineID:     poLine.ID,
				ProductID:    poLine.ProductID,
				BatchNumber:  line.BatchNumber,
				OrderedQty:   poLine.Qty,
				ReceivedQty:  line.ReceivedQty,
				AcceptedQty:  line.AcceptedQty,
				RejectedQty:  line.RejectedQty,
				RejectReason: line.RejectReason,
				UnitCost:     line.UnitCost,
			}
			lineID, err := tx.InsertReceiptLine(ctx, grnLine)
			if err != nil {
				return err
			}
			grnLine.ID = lineID
			grn.Lines = append(grn.Lines, grnLine)

			if line.AcceptedQty > qtyEpsilon {
				if err := tx.AdvanceLineReceived(ctx, poLine.ID, line.AcceptedQty); err != nil {
					return err
				}
				poLine.ReceivedQty += line.AcceptedQty
				lineByID[poLine.ID] = poLine

				if _, err := s.poster.PostMovement(ctx, ledger.MovementInput{
					Scope:       input.Scope,
					WarehouseID: po.WarehouseID,
					ProductID:   poLine.ProductID,
					Type:        ledger.MovementIn,
					Qty:         line.AcceptedQty,
					Ref:         ledger.DocRef{Type: "GOODS_RECEIPT", ID: grnID, Number: grn.Number},
					ActorID:     input.ActorID,
				}); err != nil {
					return err
				}
			}
		}

		fullyReceived := true
		for _, line := range lineByID {
			if line.ReceivedQty+qtyEpsilon < line.Qty {
				fullyReceived = false
				break
			}
		}
		if fullyReceived {
			if err := tx.UpdateOrderStatus(ctx, input.Scope, po.ID, OrderConfirmed, OrderCompleted); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.record(ctx, input.Scope, input.ActorID, "procurement:receive", grn.ID, grn.Number)
	return grn, nil
}

// allowedQty computes ordered quantity scaled by the resolved
// over-delivery percentage. A rule flagged unlimited lifts the ceiling
// entirely.
func (s *Service) allowedQty(ctx context.Context, scope shared.Scope, line POLine) (float64, error) {
	category := ""
	if s.catalog != nil {
		var err error
		category, err = s.catalog.ProductCategory(ctx, scope, line.ProductID)
		if err != nil {
			return 0, err
		}
	}
	resolved, err := s.tolerances.Resolve(ctx, scope, line.ProductID, category)
	if err != nil {
		return 0, err
	}
	if resolved.UnlimitedOver {
		return math.Inf(1), nil
	}
	return line.Qty * (1 + resolved.OverPct/100), nil
}

// Invoice bills against the order. Each line is guarded by the ordered,
// not yet invoiced remainder regardless of receipts; the derived invoice
// status lands on the order header. Short-closed, draft and cancelled
// orders accept no further invoices.
func (s *Service) Invoice(ctx context.Context, input InvoiceInput) (APInvoice, error) {
	if err := input.Scope.Validate(); err != nil {
		return APInvoice{}, err
	}
	if len(input.Lines) == 0 {
		return APInvoice{}, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.Qty <= 0 {
			return APInvoice{}, fmt.Errorf("%w: invoice quantity must be positive", shared.ErrValidation)
		}
		if line.UnitPrice < 0 {
			return APInvoice{}, fmt.Errorf("%w: unit price must be >= 0", shared.ErrValidation)
		}
	}
	number := input.Number
	if number == "" {
		var err error
		number, err = s.repo.NextNumber(ctx, input.Scope, "API")
		if err != nil {
			return APInvoice{}, err
		}
	}
	inv := APInvoice{
		TenantID:  input.Scope.TenantID,
		CompanyID: input.Scope.CompanyID,
		POID:      input.POID,
		Number:    number,
		DueDate:   input.DueDate,
		CreatedBy: input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetOrderForUpdate(ctx, input.Scope, input.POID)
		if err != nil {
			return err
		}
		if po.ShortClosed || po.Status == OrderDraft || po.Status == OrderCancelled {
			return ErrNotInvoiceable
		}
		lineByID := make(map[int64]POLine, len(po.Lines))
		for _, line := range po.Lines {
			lineByID[line.ID] = line
		}

		invoiceID, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = invoiceID

		for _, line := range input.Lines {
			poLine, ok := lineByID[line.POLineID]
			if !ok {
				return ErrLineMismatch
			}
			if line.Qty > poLine.RemainingToInvoice()+qtyEpsilon {
				return fmt.Errorf("%w: line %d remainder %.3f, billing %.3f",
					ErrOverInvoiced, poLine.ID, poLine.RemainingToInvoice(), line.Qty)
			}
			invLine := InvoiceLine{InvoiceID: invoiceID, POLineID: poLine.ID, Qty: line.Qty, UnitPrice: line.UnitPrice}
			lineID, err := tx.InsertInvoiceLine(ctx, invLine)
			if err != nil {
				return err
			}
			invLine.ID = lineID
			inv.Lines = append(inv.Lines, invLine)
			inv.Total += line.Qty * line.UnitPrice

			if err := tx.AdvanceLineInvoiced(ctx, poLine.ID, line.Qty); err != nil {
				return err
			}
			poLine.InvoicedQty += line.Qty
			lineByID[poLine.ID] = poLine
		}

		status := deriveInvoiceStatus(lineByID)
		if status != po.InvoiceStatus {
			if err := tx.SetInvoiceStatus(ctx, input.Scope, po.ID, status); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return APInvoice{}, err
	}
	s.record(ctx, input.Scope, input.ActorID, "procurement:invoice", inv.ID, inv.Number)
	return inv, nil
}

func deriveInvoiceStatus(lines map[int64]POLine) InvoiceStatus {
	totalInvoiced := 0.0
	fully := true
	for _, line := range lines {
		totalInvoiced += line.InvoicedQty
		if line.InvoicedQty+qtyEpsilon < line.Qty {
			fully = false
		}
	}
	switch {
	case totalInvoiced <= qtyEpsilon:
		return NotInvoiced
	case fully:
		return FullyInvoiced
	default:
		return PartiallyInvoiced
	}
}

// GetOrder fetches one order with its lines.
func (s *Service) GetOrder(ctx context.Context, scope shared.Scope, poID int64) (PurchaseOrder, error) {
	if err := scope.Validate(); err != nil {
		return PurchaseOrder{}, err
	}
	return s.repo.GetOrder(ctx, scope, poID)
}

// ListOrders lists orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, scope shared.Scope, status OrderStatus) ([]PurchaseOrder, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListOrders(ctx, scope, status)
}

// GetReceipt fetches one goods receipt with its lines.
func (s *Service) GetReceipt(ctx context.Context, scope shared.Scope, grnID int64) (GoodsReceipt, error) {
	if err := scope.Validate(); err != nil {
		return GoodsReceipt{}, err
	}
	return s.repo.GetReceipt(ctx, scope, grnID)
}

// ListReceipts lists receipts for one order.
func (s *Service) ListReceipts(ctx context.Context, scope shared.Scope, poID int64) ([]GoodsReceipt, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListReceipts(ctx, scope, poID)
}

// GetInvoice fetches one invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, scope shared.Scope, invoiceID int64) (APInvoice, error) {
	if err := scope.Validate(); err != nil {
		return APInvoice{}, err
	}
	return s.repo.GetInvoice(ctx, scope, invoiceID)
}

// ListInvoices lists invoices for one order.
func (s *Service) ListInvoices(ctx context.Context, scope shared.Scope, poID int64) ([]APInvoice, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListInvoices(ctx, scope, poID)
}

func (s *Service) record(ctx context.Context, scope shared.Scope, actorID int64, action string, entityID int64, number string) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{}
	if number != "" {
		meta["number"] = number
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Scope:    scope,
		ActorID:  actorID,
		Action:   action,
		Entity:   "procurement",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
