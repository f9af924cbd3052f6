package sync

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rotasales/rotasales/internal/platform/httpx"
	"github.com/rotasales/rotasales/internal/shared"
)

// Handler exposes the sync endpoints, seller-only.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{
		logger:   logger,
		engine:   engine,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers the sync routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sync", func(r chi.Router) {
		r.Post("/upload", h.upload)
		r.Get("/download", h.download)
	})
}

// upload always answers 200 for a well-formed envelope; individual
// failures live inside the results array.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	var req UploadRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	resp, err := h.engine.ProcessUpload(r.Context(), ident, req.Operations)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	ident, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	data, err := h.engine.GetDownloadData(r.Context(), ident)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}
