package masterdata

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rotasales/rotasales/internal/platform/httpx"
	"github.com/rotasales/rotasales/internal/shared"
)

// Handler exposes the master-data endpoints. Catalog reads are open to any
// authenticated identity in the tenant; everything else is boss-only.
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

// MountCatalogRoutes registers the tenant-scoped read endpoints sellers use
// to browse products and customers.
func (h *Handler) MountCatalogRoutes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Get("/customers", h.listCustomers)
	r.Get("/customers/{id}", h.getCustomer)
}

// MountRoutes registers the boss-only administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Post("/", h.createProduct)
		r.Patch("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deleteProduct)
	})
	r.Route("/customers", func(r chi.Router) {
		r.Post("/", h.createCustomer)
		r.Patch("/{id}", h.updateCustomer)
		r.Delete("/{id}", h.deleteCustomer)
	})
	r.Route("/sellers", func(r chi.Router) {
		r.Get("/", h.listSellers)
		r.Post("/", h.createSeller)
		r.Get("/{id}", h.getSeller)
		r.Patch("/{id}", h.updateSeller)
		r.Post("/{id}/regenerate-token", h.regenerateSellerToken)
		r.Delete("/{id}", h.deleteSeller)
	})
}

func tenantAndID(r *http.Request) (bossID, id int64, ok bool) {
	ident, found := shared.IdentityFromContext(r.Context())
	if !found {
		return 0, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return ident.TenantID(), id, true
}

// --- Products ---

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	ident, _ := shared.IdentityFromContext(r.Context())
	var req CreateProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), ident.TenantID(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ident, _ := shared.IdentityFromContext(r.Context())
	var isActive *bool
	if raw := r.URL.Query().Get("is_active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "is_active must be a boolean")
			return
		}
		isActive = &v
	}
	products, err := h.service.ListProducts(r.Context(), ident.TenantID(), isActive)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	bossID, id, ok := tenantAndID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	product, err := h.service.GetProduct(r.Context(), bossID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	bossID, id, ok := tenantAndID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	var req UpdateProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), bossID, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	bossID, id, ok := tenantAndID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	softDeleted, err := h.service.DeleteProduct(r.Context(), bossID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if softDeleted {
		httpx.JSON(w, http.StatusOK, map[string]any{"deactivated": true})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Customers ---

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	ident, _ := shared.IdentityFromContext(r.Context())
	var req CreateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	customer, err := h.service.CreateCustomer(r.Context(), ident.TenantID(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	ident, _ := shared.IdentityFromContext(r.Context())
	customers, err := h.service.ListCustomers(r.Context(), ident.TenantID())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	bossID, id, ok := tenantAndID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	customer, err := h.service.GetCustomer(r.Context(), bossID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	bossID, id, ok := tenantAndID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	var req UpdateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	customer, err := h.service.UpdateCustomer(r.Context(), bossID, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	bossID, id, ok := tenantAndID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	if err := h.service.DeleteCustomer(r.Context(), bossID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Sellers ---

func (h *Handler) createSeller(w http.ResponseWriter, r *http.Request) {
	ident, _ := shared.IdentityFromContext(r.Context())
	var req CreateSellerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	seller, err := h.service.CreateSeller(r.Context(), ident.TenantID(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, seller)
}

func (h *Handler) listSellers(w http.ResponseWriter, r *http.Request) {
	ident, _ := shared.IdentityFromContext(r.Context())
	sellers, err := h.service.ListSellers(r.Context(), ident.TenantID())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	for i := range sellers {
		sellers[i].Token = ""
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sellers": sellers})
}

func (h *Handler) getSeller(w http.ResponseWriter, r *http.Request) {
	bossID, id, ok := tenantAndID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	seller, err := h.service.GetSeller(r.Context(), bossID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	seller.Token = ""
	httpx.JSON(w, http.StatusOK, seller)
}

func (h *Handler) updateSeller(w http.ResponseWriter, r *http.Request) {
	bossID, id, ok := tenantAndID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	var req UpdateSellerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	seller, err := h.service.UpdateSeller(r.Context(), bossID, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	seller.Token = ""
	httpx.JSON(w, http.StatusOK, seller)
}

func (h *Handler) regenerateSellerToken(w http.ResponseWriter, r *http.Request) {
	bossID, id, ok := tenantAndID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	seller, err := h.service.RegenerateSellerToken(r.Context(), bossID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, seller)
}

func (h *Handler) deleteSeller(w http.ResponseWriter, r *http.Request) {
	bossID, id, ok := tenantAndID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	if err := h.service.DeleteSeller(r.Context(), bossID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
