package cart

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Manulynx/gestores/internal/catalog"
	"github.com/Manulynx/gestores/internal/platform/httpx"
	"github.com/Manulynx/gestores/internal/shared"
	"github.com/Manulynx/gestores/internal/stock"
)

// Handler exposes cart endpoints.
type Handler struct {
	logger    *slog.Logger
	store     *Store
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, store *Store) *Handler {
	return &Handler{logger: logger, store: store, validator: validator.New()}
}

// MountRoutes attaches cart routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.show)
	r.Post("/items", h.setItem)
	r.Post("/items/{materialID}/decrement", h.decrement)
	r.Delete("/items/{materialID}", h.remove)
	r.Delete("/", h.clear)
}

type setItemRequest struct {
	MaterialID int64 `json:"material_id" validate:"required,gt=0"`
	Quantity   int64 `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	lines, total, err := h.store.Snapshot(r.Context(), sess.ID)
	if err != nil {
		h.logger.Error("cart snapshot", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lines": lines, "total": total})
}

func (h *Handler) setItem(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	var req setItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.store.SetQuantity(r.Context(), sess.ID, req.MaterialID, req.Quantity); err != nil {
		h.respondError(w, err)
		return
	}
	h.show(w, r)
}

func (h *Handler) decrement(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	materialID, err := strconv.ParseInt(chi.URLParam(r, "materialID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid material id")
		return
	}
	if err := h.store.Decrement(r.Context(), sess.ID, materialID); err != nil {
		h.respondError(w, err)
		return
	}
	h.show(w, r)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	materialID, err := strconv.ParseInt(chi.URLParam(r, "materialID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid material id")
		return
	}
	if err := h.store.Remove(r.Context(), sess.ID, materialID); err != nil {
		h.respondError(w, err)
		return
	}
	h.show(w, r)
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := h.store.Clear(r.Context(), sess.ID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lines": []Line{}})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var insufficient *stock.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", insufficient.Error())
	case errors.Is(err, catalog.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, catalog.ErrRetired):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("cart request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
