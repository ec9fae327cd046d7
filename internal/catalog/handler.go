package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Manulynx/gestores/internal/platform/httpx"
)

// Handler exposes catalog endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes attaches catalog routes. Mutations are admin-gated by the
// router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/materials", h.listMaterials)
	r.Get("/materials/{id}", h.showMaterial)
	r.Get("/categories", h.listCategories)
}

// MountAdminRoutes attaches catalog mutation routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/materials", h.createMaterial)
	r.Put("/materials/{id}", h.updateMaterial)
	r.Post("/materials/{id}/retire", h.retireMaterial)
	r.Post("/materials/{id}/restore", h.restoreMaterial)
	r.Post("/categories", h.createCategory)
	r.Delete("/categories/{id}", h.deleteCategory)
}

type materialRequest struct {
	Name       string  `json:"name" validate:"required,max=50"`
	Code       *string `json:"code,omitempty" validate:"omitempty,max=50"`
	CategoryID int64   `json:"category_id" validate:"required,gt=0"`
	Price      string  `json:"price" validate:"required"`
	OfferPrice *string `json:"offer_price,omitempty"`
	OnOffer    bool    `json:"on_offer"`
	Commission string  `json:"commission"`
	Quantity   int64   `json:"quantity" validate:"gte=0"`
	Featured   bool    `json:"featured"`
}

func (req materialRequest) toMaterial() (Material, error) {
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return Material{}, errors.New("invalid price")
	}
	commission := decimal.Zero
	if req.Commission != "" {
		commission, err = decimal.NewFromString(req.Commission)
		if err != nil {
			return Material{}, errors.New("invalid commission")
		}
	}
	m := Material{
		Name:       req.Name,
		Code:       req.Code,
		CategoryID: req.CategoryID,
		Price:      price,
		OnOffer:    req.OnOffer,
		Commission: commission,
		Quantity:   req.Quantity,
		Featured:   req.Featured,
	}
	if req.OfferPrice != nil {
		offer, err := decimal.NewFromString(*req.OfferPrice)
		if err != nil {
			return Material{}, errors.New("invalid offer price")
		}
		m.OfferPrice = &offer
	}
	return m, nil
}

func (h *Handler) listMaterials(w http.ResponseWriter, r *http.Request) {
	categoryID, _ := strconv.ParseInt(r.URL.Query().Get("category_id"), 10, 64)
	includeRetired := r.URL.Query().Get("include_retired") == "1"

	materials, err := h.service.ListMaterials(r.Context(), categoryID, includeRetired)
	if err != nil {
		h.logger.Error("list materials", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"materials": materials})
}

func (h *Handler) showMaterial(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	material, err := h.service.GetMaterial(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, material)
}

func (h *Handler) createMaterial(w http.ResponseWriter, r *http.Request) {
	var req materialRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	material, err := req.toMaterial()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id, err := h.service.CreateMaterial(r.Context(), material)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) updateMaterial(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	var req materialRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	material, err := req.toMaterial()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	material.ID = id
	if err := h.service.UpdateMaterial(r.Context(), material); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) retireMaterial(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(w, r, h.service.RetireMaterial)
}

func (h *Handler) restoreMaterial(w http.ResponseWriter, r *http.Request) {
	h.lifecycleAction(w, r, h.service.RestoreMaterial)
}

func (h *Handler) lifecycleAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id int64) error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	if err := action(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.logger.Error("list categories", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name" validate:"required,max=50"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id, err := h.service.CreateCategory(r.Context(), req.Name)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateCode), errors.Is(err, ErrCategoryInUse):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrRetired):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalid):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("catalog request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
