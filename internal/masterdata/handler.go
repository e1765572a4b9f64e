package masterdata

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/niaga-erp/niaga-erp/internal/platform/httpx"
	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// Handler wires HTTP endpoints for catalog lookups.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs masterdata handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers masterdata routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/warehouses", h.listWarehouses)
	r.Get("/warehouses/{warehouseID}", h.getWarehouse)
	r.Get("/low-stock", h.listLowStock)
}

func requestScope(r *http.Request) (shared.Scope, bool) {
	return shared.ScopeFromContext(r.Context())
}

func urlID(r *http.Request, key string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	return id
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	products, err := h.service.ListProducts(r.Context(), scope, r.URL.Query().Get("category"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	p, err := h.service.GetProduct(r.Context(), scope, urlID(r, "productID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	warehouses, err := h.service.ListWarehouses(r.Context(), scope)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, warehouses)
}

func (h *Handler) getWarehouse(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	wh, err := h.service.GetWarehouse(r.Context(), scope, urlID(r, "warehouseID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wh)
}

func (h *Handler) listLowStock(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	warehouseID, _ := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	items, err := h.service.ListLowStock(r.Context(), scope, warehouseID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}
