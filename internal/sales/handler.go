package sales

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rotasales/rotasales/internal/platform/httpx"
	"github.com/rotasales/rotasales/internal/shared"
)

// Handler exposes the sales endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers the sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sales", func(r chi.Router) {
		r.Get("/", h.listSales)
		r.Post("/", h.createSale)
		r.Get("/{id}", h.getSale)
		r.Delete("/{id}", h.deleteSale)
	})
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	var req CreateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	sale, err := h.service.CreateSale(r.Context(), ident, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	var filter ListFilter
	q := r.URL.Query()
	if raw := q.Get("seller_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "seller_id must be an integer")
			return
		}
		filter.SellerID = &id
	}
	if raw := q.Get("guide_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "guide_id must be an integer")
			return
		}
		filter.GuideID = &id
	}
	if raw := q.Get("from"); raw != "" {
		d, err := shared.ParseDate(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.From = &d
	}
	if raw := q.Get("to"); raw != "" {
		d, err := shared.ParseDate(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.To = &d
	}

	sales, err := h.service.ListSales(r.Context(), ident, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	sale, err := h.service.GetSale(r.Context(), ident, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) deleteSale(w http.ResponseWriter, r *http.Request) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	if err := h.service.DeleteSale(r.Context(), ident, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
