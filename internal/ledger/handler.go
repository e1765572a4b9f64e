package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/niaga-erp/niaga-erp/internal/platform/httpx"
	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// Handler wires HTTP endpoints for the movement log and stock cache.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock", h.getStock)
	r.Put("/stock/settings", h.updateSettings)
	r.Get("/movements", h.listMovements)
	r.Get("/verify", h.verifyStock)
}

type stockSettingsRequest struct {
	WarehouseID int64   `json:"warehouse_id" validate:"required,gt=0"`
	ProductID   int64   `json:"product_id" validate:"required,gt=0"`
	MinStock    float64 `json:"min_stock" validate:"gte=0"`
	MaxStock    float64 `json:"max_stock" validate:"gte=0"`
	BinLocation string  `json:"bin_location" validate:"max=64"`
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	warehouseID := queryInt64(r, "warehouse_id")
	productID := queryInt64(r, "product_id")
	stock, err := h.service.GetStock(r.Context(), scope, warehouseID, productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	var req stockSettingsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.service.UpdateStockSettings(r.Context(), StockSettingsInput{
		Scope:       scope,
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		MinStock:    req.MinStock,
		MaxStock:    req.MaxStock,
		BinLocation: req.BinLocation,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	filter := MovementFilter{
		WarehouseID: queryInt64(r, "warehouse_id"),
		ProductID:   queryInt64(r, "product_id"),
		Type:        MovementType(r.URL.Query().Get("type")),
	}
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	movements, err := h.service.ListMovements(r.Context(), scope, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) verifyStock(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	report, err := h.service.VerifyStock(r.Context(), scope, queryInt64(r, "warehouse_id"), queryInt64(r, "product_id"))
	if err != nil {
		if report.WarehouseID != 0 {
			h.logger.Error("stock drift detected via API",
				slog.Int64("warehouse_id", report.WarehouseID),
				slog.Int64("product_id", report.ProductID))
			httpx.JSON(w, http.StatusConflict, report)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func queryInt64(r *http.Request, key string) int64 {
	value, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return value
}
