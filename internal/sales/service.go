package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/niaga-erp/niaga-erp/internal/ledger"
	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	NextNumber(ctx context.Context, scope shared.Scope, kind string) (string, error)
	GetOrder(ctx context.Context, scope shared.Scope, soID int64) (SalesOrder, error)
	ListOrders(ctx context.Context, scope shared.Scope, status OrderStatus) ([]SalesOrder, error)
	GetDelivery(ctx context.Context, scope shared.Scope, deliveryID int64) (DeliveryOrder, error)
	ListDeliveries(ctx context.Context, scope shared.Scope, soID int64) ([]DeliveryOrder, error)
	GetInvoice(ctx context.Context, scope shared.Scope, invoiceID int64) (ARInvoice, error)
	ListInvoices(ctx context.Context, scope shared.Scope, soID int64) ([]ARInvoice, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertOrder(ctx context.Context, so SalesOrder) (int64, error)
	InsertOrderLine(ctx context.Context, line SOLine) (int64, error)
	GetOrderForUpdate(ctx context.Context, scope shared.Scope, soID int64) (SalesOrder, error)
	UpdateOrderStatus(ctx context.Context, scope shared.Scope, soID int64, from, to OrderStatus) error
	SetInvoiceStatus(ctx context.Context, scope shared.Scope, soID int64, status InvoiceStatus) error
	AdvanceLineDelivered(ctx context.Context, lineID int64, delta float64) error
	AdvanceLineInvoiced(ctx context.Context, lineID int64, delta float64) error
	InsertDelivery(ctx context.Context, do DeliveryOrder) (int64, error)
	InsertDeliveryLine(ctx context.Context, line DeliveryLine) (int64, error)
	InsertInvoice(ctx context.Context, inv ARInvoice) (int64, error)
	InsertInvoiceLine(ctx context.Context, line InvoiceLine) (int64, error)
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

// Service runs the sales fulfillment tracker. Deliveries are capped at
// the ordered quantity per line; tolerance rules apply only to inbound
// receipts, never here.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	poster  MovementPoster
	audit   AuditPort
	logger  *slog.Logger
}

// NewService builds Service. A nil catalog skips the batch-reference
// check on deliveries.
func NewService(repo RepositoryPort, catalog CatalogPort, poster MovementPoster, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, poster: poster, audit: audit, logger: logger}
}

const qtyEpsilon = 1e-6

// CreateOrder opens a DRAFT sales order with its lines.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (SalesOrder, error) {
	if err := input.Scope.Validate(); err != nil {
		return SalesOrder{}, err
	}
	if input.CustomerID == 0 || input.WarehouseID == 0 {
		return SalesOrder{}, fmt.Errorf("%w: customer and warehouse required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return SalesOrder{}, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 || line.Qty <= 0 {
			return SalesOrder{}, fmt.Errorf("%w: line product and positive quantity required", shared.ErrValidation)
		}
		if line.UnitPrice < 0 {
			return SalesOrder{}, fmt.Errorf("%w: unit price must be >= 0", shared.ErrValidation)
		}
	}
	number, err := s.repo.NextNumber(ctx, input.Scope, "SO")
	if err != nil {
		return SalesOrder{}, err
	}
	so := SalesOrder{
		TenantID:      input.Scope.TenantID,
		CompanyID:     input.Scope.CompanyID,
		Number:        number,
		CustomerID:    input.CustomerID,
		WarehouseID:   input.WarehouseID,
		Status:        OrderDraft,
		InvoiceStatus: NotInvoiced,
		Notes:         input.Notes,
		CreatedBy:     input.ActorID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertOrder(ctx, so)
		if err != nil {
			return err
		}
		so.ID = id
		for _, line := range input.Lines {
			soLine := SOLine{SOID: id, ProductID: line.ProductID, Qty: line.Qty, UnitPrice: line.UnitPrice}
			lineID, err := tx.InsertOrderLine(ctx, soLine)
			if err != nil {
				return err
			}
			soLine.ID = lineID
			so.Lines = append(so.Lines, soLine)
		}
		return nil
	})
	if err != nil {
		return SalesOrder{}, err
	}
	s.record(ctx, input.Scope, input.ActorID, "sales:order_create", so.ID, so.Number)
	return so, nil
}

// ConfirmOrder moves DRAFT to CONFIRMED; only confirmed orders deliver.
func (s *Service) ConfirmOrder(ctx context.Context, scope shared.Scope, soID, actorID int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateOrderStatus(ctx, scope, soID, OrderDraft, OrderConfirmed)
	})
}

// CancelOrder abandons a DRAFT order.
func (s *Service) CancelOrder(ctx context.Context, scope shared.Scope, soID, actorID int64) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateOrderStatus(ctx, scope, soID, OrderDraft, OrderCancelled)
	})
}

// Deliver records a shipment against a confirmed order. Every line is
// capped at its ordered remainder and posts an OUT movement inside the
// same transaction as the delivery document, so a ledger rejection rolls
// the whole shipment back and no delivered quantity sticks.
func (s *Service) Deliver(ctx context.Context, input DeliverInput) (DeliveryOrder, error) {
	if err := input.Scope.Validate(); err != nil {
		return DeliveryOrder{}, err
	}
	if len(input.Lines) == 0 {
		return DeliveryOrder{}, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.Qty <= 0 {
			return DeliveryOrder{}, fmt.Errorf("%w: delivery quantity must be positive", shared.ErrValidation)
		}
	}
	number, err := s.repo.NextNumber(ctx, input.Scope, "DO")
	if err != nil {
		return DeliveryOrder{}, err
	}
	deliveredAt := input.DeliveredAt
	if deliveredAt.IsZero() {
		deliveredAt = time.Now()
	}
	do := DeliveryOrder{
		TenantID:    input.Scope.TenantID,
		CompanyID:   input.Scope.CompanyID,
		SOID:        input.SOID,
		Number:      number,
		DeliveredAt: deliveredAt,
		DeliveredBy: input.ActorID,
		Notes:       input.Notes,
	}
	var so SalesOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		so, err = tx.GetOrderForUpdate(ctx, input.Scope, input.SOID)
		if err != nil {
			return err
		}
		if so.Status != OrderConfirmed {
			return ErrNotDeliverable
		}
		lineByID := make(map[int64]SOLine, len(so.Lines))
		for _, line := range so.Lines {
			lineByID[line.ID] = line
		}

		doID, err := tx.InsertDelivery(ctx, do)
		if err != nil {
			return err
		}
		do.ID = doID

		for _, line := range input.Lines {
			soLine, ok := lineByID[line.SOLineID]
			if !ok {
				return ErrLineMismatch
			}
			if line.Qty > soLine.RemainingToDeliver()+qtyEpsilon {
				return fmt.Errorf("%w: line %d remainder %.3f, shipping %.3f",
					ErrOverDelivered, soLine.ID, soLine.RemainingToDeliver(), line.Qty)
			}
			if line.BatchID == nil && s.catalog != nil {
				required, err := s.catalog.BatchRequired(ctx, input.Scope, soLine.ProductID)
				if err != nil {
					return err
				}
				if required {
					return fmt.Errorf("%w: product %d", ErrBatchRequired, soLine.ProductID)
				}
			}
			doLine := DeliveryLine{DeliveryID: doID, SOLineID: soLine.ID, ProductID: soLine.ProductID, BatchID: line.BatchID, Qty: line.Qty}
			lineID, err := tx.InsertDeliveryLine(ctx, doLine)
			if err != nil {
				return err
			}
			doLine.ID = lineID
			do.Lines = append(do.Lines, doLine)

			if err := tx.AdvanceLineDelivered(ctx, soLine.ID, line.Qty); err != nil {
				return err
			}
			soLine.DeliveredQty += line.Qty
			lineByID[soLine.ID] = soLine

			if _, err := s.poster.PostMovement(ctx, ledger.MovementInput{
				Scope:       input.Scope,
				WarehouseID: so.WarehouseID,
				ProductID:   soLine.ProductID,
				BatchID:     line.BatchID,
				Type:        ledger.MovementOut,
				Qty:         -line.Qty,
				Ref:         ledger.DocRef{Type: "DELIVERY_ORDER", ID: doID, Number: do.Number},
				ActorID:     input.ActorID,
			}); err != nil {
				return err
			}
		}

		fullyDelivered := true
		for _, line := range lineByID {
			if line.DeliveredQty+qtyEpsilon < line.Qty {
				fullyDelivered = false
				break
			}
		}
		if fullyDelivered {
			if err := tx.UpdateOrderStatus(ctx, input.Scope, so.ID, OrderConfirmed, OrderCompleted); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return DeliveryOrder{}, err
	}
	s.record(ctx, input.Scope, input.ActorID, "sales:deliver", do.ID, do.Number)
	return do, nil
}

// Invoice bills delivered quantity. Each line is guarded by the
// delivered, not yet invoiced remainder.
func (s *Service) Invoice(ctx context.Context, input InvoiceInput) (ARInvoice, error) {
	if err := input.Scope.Validate(); err != nil {
		return ARInvoice{}, err
	}
	if len(input.Lines) == 0 {
		return ARInvoice{}, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.Qty <= 0 {
			return ARInvoice{}, fmt.Errorf("%w: invoice quantity must be positive", shared.ErrValidation)
		}
		if line.UnitPrice < 0 {
			return ARInvoice{}, fmt.Errorf("%w: unit price must be >= 0", shared.ErrValidation)
		}
	}
	number := input.Number
	if number == "" {
		var err error
		number, err = s.repo.NextNumber(ctx, input.Scope, "ARI")
		if err != nil {
			return ARInvoice{}, err
		}
	}
	inv := ARInvoice{
		TenantID:  input.Scope.TenantID,
		CompanyID: input.Scope.CompanyID,
		SOID:      input.SOID,
		Number:    number,
		DueDate:   input.DueDate,
		CreatedBy: input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		so, err := tx.GetOrderForUpdate(ctx, input.Scope, input.SOID)
		if err != nil {
			return err
		}
		lineByID := make(map[int64]SOLine, len(so.Lines))
		for _, line := range so.Lines {
			lineByID[line.ID] = line
		}

		invoiceID, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = invoiceID

		for _, line := range input.Lines {
			soLine, ok := lineByID[line.SOLineID]
			if !ok {
				return ErrLineMismatch
			}
			if line.Qty > soLine.RemainingToInvoice()+qtyEpsilon {
				return fmt.Errorf("%w: line %d remainder %.3f, billing %.3f",
					ErrOverInvoiced, soLine.ID, soLine.RemainingToInvoice(), line.Qty)
			}
			invLine := InvoiceLine{InvoiceID: invoiceID, SOLineID: soLine.ID, Qty: line.Qty, UnitPrice: line.UnitPrice}
			lineID, err := tx.InsertInvoiceLine(ctx, invLine)
			if err != nil {
				return err
			}
			invLine.ID = lineID
			inv.Lines = append(inv.Lines, invLine)
			inv.Total += line.Qty * line.UnitPrice

			if err := tx.AdvanceLineInvoiced(ctx, soLine.ID, line.Qty); err != nil {
				return err
			}
			soLine.InvoicedQty += line.Qty
			lineByID[soLine.ID] = soLine
		}

		status := deriveInvoiceStatus(lineByID)
		if status != so.InvoiceStatus {
			if err := tx.SetInvoiceStatus(ctx, input.Scope, so.ID, status); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ARInvoice{}, err
	}
	s.record(ctx, input.Scope, input.ActorID, "sales:invoice", inv.ID, inv.Number)
	return inv, nil
}

func deriveInvoiceStatus(lines map[int64]SOLine) InvoiceStatus {
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
func (s *Service) GetOrder(ctx context.Context, scope shared.Scope, soID int64) (SalesOrder, error) {
	if err := scope.Validate(); err != nil {
		return SalesOrder{}, err
	}
	return s.repo.GetOrder(ctx, scope, soID)
}

// ListOrders lists orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, scope shared.Scope, status OrderStatus) ([]SalesOrder, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListOrders(ctx, scope, status)
}

// GetDelivery fetches one delivery with its lines.
func (s *Service) GetDelivery(ctx context.Context, scope shared.Scope, deliveryID int64) (DeliveryOrder, error) {
	if err := scope.Validate(); err != nil {
		return DeliveryOrder{}, err
	}
	return s.repo.GetDelivery(ctx, scope, deliveryID)
}

// ListDeliveries lists deliveries for one order.
func (s *Service) ListDeliveries(ctx context.Context, scope shared.Scope, soID int64) ([]DeliveryOrder, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListDeliveries(ctx, scope, soID)
}

// GetInvoice fetches one invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, scope shared.Scope, invoiceID int64) (ARInvoice, error) {
	if err := scope.Validate(); err != nil {
		return ARInvoice{}, err
	}
	return s.repo.GetInvoice(ctx, scope, invoiceID)
}

// ListInvoices lists invoices for one order.
func (s *Service) ListInvoices(ctx context.Context, scope shared.Scope, soID int64) ([]ARInvoice, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListInvoices(ctx, scope, soID)
}

func (s *Service) record(ctx context.Context, scope shared.Scope, actorID int64, action string, entityID int64, number string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Scope:    scope,
		ActorID:  actorID,
		Action:   action,
		Entity:   "sales",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     map[string]any{"number": number},
	})
}
