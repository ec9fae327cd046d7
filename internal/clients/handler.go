package clients

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Manulynx/gestores/internal/auth"
	"github.com/Manulynx/gestores/internal/platform/httpx"
)

// Handler exposes client endpoints to gestores.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes attaches client routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Get("/by-doc/{doc}", h.findByDoc)
}

type clientRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Surname     string `json:"surname" validate:"required,max=100"`
	IdentityDoc string `json:"identity_doc" validate:"required,max=11"`
	Phone       string `json:"phone" validate:"max=20"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor := auth.UserFromContext(r.Context())
	list, err := h.service.ListByGestor(r.Context(), actor.ID)
	if err != nil {
		h.logger.Error("list clients", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"clients": list})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor := auth.UserFromContext(r.Context())
	var req clientRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id, err := h.service.Create(r.Context(), Client{
		GestorID:    actor.ID,
		Name:        req.Name,
		Surname:     req.Surname,
		IdentityDoc: req.IdentityDoc,
		Phone:       req.Phone,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	actor := auth.UserFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	c, err := h.service.Get(r.Context(), id, actor.ID, actor.Admin)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor := auth.UserFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	var req clientRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err = h.service.Update(r.Context(), Client{ID: id, Name: req.Name, Surname: req.Surname, Phone: req.Phone}, actor.ID, actor.Admin)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) findByDoc(w http.ResponseWriter, r *http.Request) {
	actor := auth.UserFromContext(r.Context())
	c, err := h.service.FindByIdentityDoc(r.Context(), chi.URLParam(r, "doc"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !actor.Admin && c.GestorID != actor.ID {
		// Existence leaks on purpose: gestores must learn the document is
		// taken by another gestor before attempting checkout.
		httpx.Problem(w, http.StatusForbidden, "Forbidden", ErrNotOwner.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateIdentityDoc):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrNotOwner):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrInvalid):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("clients request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
