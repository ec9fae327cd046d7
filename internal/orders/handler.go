package orders

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Manulynx/gestores/internal/auth"
	"github.com/Manulynx/gestores/internal/catalog"
	"github.com/Manulynx/gestores/internal/clients"
	"github.com/Manulynx/gestores/internal/platform/httpx"
	"github.com/Manulynx/gestores/internal/shared"
	"github.com/Manulynx/gestores/internal/stock"
)

// Handler exposes the order endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes attaches the order routes for authenticated gestores.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/checkout", h.checkout)
	r.Get("/", h.list)
	r.Get("/commissions", h.commissions)
	r.Get("/{orderID}", h.get)
	r.Post("/{orderID}/cancel", h.cancel)
	r.Post("/{orderID}/reactivate", h.reactivate)
	r.Put("/{orderID}/lines", h.replaceLines)
	r.Delete("/{orderID}", h.remove)
}

// MountAdminRoutes attaches admin-only transitions.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/{orderID}/confirm", h.confirm)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	var req CheckoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.Checkout(r.Context(), actorFrom(r), sess.ID, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	summaries, total, err := h.service.List(r.Context(), actorFrom(r), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": summaries, "total": total})
}

func (h *Handler) commissions(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	gestorID := actor.ID
	if raw := r.URL.Query().Get("gestor_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid gestor id")
			return
		}
		gestorID = parsed
	}
	from, to, err := parsePeriod(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	total, err := h.service.CommissionTotal(r.Context(), actor, gestorID, from, to)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"gestor_id": gestorID, "from": from, "to": to, "commission_total": total})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), actorFrom(r), orderID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Confirm)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Reactivate(r.Context(), actorFrom(r), orderID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) replaceLines(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var req ReplaceLinesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.ReplaceLines(r.Context(), actorFrom(r), orderID, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actorFrom(r), orderID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actor Actor, orderID int64) (*Order, error)) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := op(r.Context(), actorFrom(r), orderID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return 0, false
	}
	return orderID, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var insufficient *stock.InsufficientStockError
	var lifecycle *LifecycleError
	switch {
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", insufficient.Error())
	case errors.As(err, &lifecycle):
		status := http.StatusConflict
		if lifecycle.Reason == reasonNotAuthorized || lifecycle.Reason == reasonAdminOnly {
			status = http.StatusForbidden
		}
		httpx.Problem(w, status, "Lifecycle Conflict", lifecycle.Reason)
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "order not found")
	case errors.Is(err, ErrEmptyCart):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "cart is empty")
	case errors.Is(err, ErrClientDetailsRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, clients.ErrNotOwner):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "client belongs to another gestor")
	case errors.Is(err, catalog.ErrRetired), errors.Is(err, stock.ErrMaterialNotFound):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("order request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func actorFrom(r *http.Request) Actor {
	user := auth.UserFromContext(r.Context())
	return Actor{ID: user.ID, Admin: user.Admin}
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{Status: q.Get("status")}
	switch filter.Status {
	case "", string(StatusPending), string(StatusEffected), string(StatusCancelled), FilterReactivated, FilterReactivation:
	default:
		return filter, errors.New("unknown status filter")
	}
	if raw := q.Get("client_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, errors.New("invalid client id")
		}
		filter.ClientID = &id
	}
	if raw := q.Get("gestor_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, errors.New("invalid gestor id")
		}
		filter.GestorID = &id
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("invalid from timestamp")
		}
		filter.DateFrom = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("invalid to timestamp")
		}
		filter.DateTo = &t
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return filter, errors.New("invalid offset")
		}
		filter.Offset = offset
	}
	return filter, nil
}

func parsePeriod(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now()
	from := now.AddDate(0, -1, 0)
	to := now
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, errors.New("invalid from timestamp")
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, errors.New("invalid to timestamp")
		}
		to = t
	}
	return from, to, nil
}
