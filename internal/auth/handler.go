package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rotasales/rotasales/internal/platform/httpx"
	"github.com/rotasales/rotasales/internal/shared"
)

// Handler manages authentication endpoints.
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

// MountRoutes registers the public authentication routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register/boss", h.registerBoss)
	r.Post("/login/boss", h.loginBoss)
	r.Post("/login/seller", h.loginSeller)
}

// MountProtectedRoutes registers routes behind the authenticator.
func (h *Handler) MountProtectedRoutes(r chi.Router) {
	r.Get("/me", h.me)
}

func (h *Handler) registerBoss(w http.ResponseWriter, r *http.Request) {
	var req RegisterBossRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	boss, err := h.service.RegisterBoss(r.Context(), req)
	if err != nil {
		h.logger.Warn("register boss failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"boss": boss})
}

func (h *Handler) loginBoss(w http.ResponseWriter, r *http.Request) {
	var req LoginBossRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	resp, err := h.service.LoginBoss(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) loginSeller(w http.ResponseWriter, r *http.Request) {
	var req LoginSellerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	resp, err := h.service.LoginSeller(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":      ident.ID,
		"role":    ident.Role,
		"boss_id": ident.BossID,
	})
}
