package credit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rotasales/rotasales/internal/platform/httpx"
	"github.com/rotasales/rotasales/internal/shared"
)

// Handler exposes the credit ledger endpoints.
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

// MountRoutes registers the credit routes. Both roles may read; payments
// are accepted from both as well, scoped by ownership.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/credits", func(r chi.Router) {
		r.Get("/", h.listCredits)
		r.Get("/{id}", h.getCredit)
		r.Post("/{id}/payments", h.payCredit)
	})
}

func (h *Handler) listCredits(w http.ResponseWriter, r *http.Request) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	var filter ListFilter
	q := r.URL.Query()
	if raw := q.Get("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "customer_id must be an integer")
			return
		}
		filter.CustomerID = &id
	}
	if raw := q.Get("is_paid"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "is_paid must be a boolean")
			return
		}
		filter.IsPaid = &v
	}

	credits, err := h.service.ListCredits(r.Context(), ident, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"credits": credits})
}

func (h *Handler) getCredit(w http.ResponseWriter, r *http.Request) {
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

	c, err := h.service.GetCredit(r.Context(), ident, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) payCredit(w http.ResponseWriter, r *http.Request) {
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

	var req PayCreditRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	payment, err := h.service.PayCredit(r.Context(), ident, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}
