package guide

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rotasales/rotasales/internal/platform/httpx"
	"github.com/rotasales/rotasales/internal/shared"
)

// Handler exposes the sales-guide endpoints.
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

// MountRoutes registers the guide routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/guides", func(r chi.Router) {
		r.Get("/", h.listGuides)
		r.Post("/", h.createGuide)
		r.Get("/{id}", h.getGuide)
		r.Post("/{id}/close", h.closeGuide)
		r.Get("/{id}/sales-summary", h.salesSummary)
		r.Patch("/{id}/items/{itemID}", h.updateGuideItem)
		r.Delete("/{id}", h.deleteGuide)
	})
}

func identAndID(w http.ResponseWriter, r *http.Request) (shared.Identity, int64, bool) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return shared.Identity{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return shared.Identity{}, 0, false
	}
	return ident, id, true
}

func (h *Handler) createGuide(w http.ResponseWriter, r *http.Request) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	var req CreateGuideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	g, err := h.service.CreateGuide(r.Context(), ident, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, g)
}

func (h *Handler) listGuides(w http.ResponseWriter, r *http.Request) {
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
	if raw := q.Get("status"); raw != "" {
		status := GuideStatus(raw)
		if status != StatusOpen && status != StatusClosed {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "status must be OPEN or CLOSED")
			return
		}
		filter.Status = &status
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

	guides, err := h.service.ListGuides(r.Context(), ident, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"guides": guides})
}

func (h *Handler) getGuide(w http.ResponseWriter, r *http.Request) {
	ident, id, ok := identAndID(w, r)
	if !ok {
		return
	}
	g, err := h.service.GetGuide(r.Context(), ident, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) closeGuide(w http.ResponseWriter, r *http.Request) {
	ident, id, ok := identAndID(w, r)
	if !ok {
		return
	}

	var req CloseGuideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	g, err := h.service.CloseGuide(r.Context(), ident, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) salesSummary(w http.ResponseWriter, r *http.Request) {
	ident, id, ok := identAndID(w, r)
	if !ok {
		return
	}
	summary, err := h.service.GetSalesSummary(r.Context(), ident, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) updateGuideItem(w http.ResponseWriter, r *http.Request) {
	ident, id, ok := identAndID(w, r)
	if !ok {
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}

	var req UpdateGuideItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	g, err := h.service.UpdateGuideItem(r.Context(), ident, id, itemID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) deleteGuide(w http.ResponseWriter, r *http.Request) {
	ident, id, ok := identAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteGuide(r.Context(), ident, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
