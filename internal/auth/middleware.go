package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/rotasales/rotasales/internal/platform/httpx"
	"github.com/rotasales/rotasales/internal/shared"
)

// Middleware authenticates bearer tokens and guards routes by role.
type Middleware struct {
	issuer *TokenIssuer
	logger *slog.Logger
}

// NewMiddleware constructs the auth middleware.
func NewMiddleware(issuer *TokenIssuer, logger *slog.Logger) *Middleware {
	return &Middleware{issuer: issuer, logger: logger}
}

// Authenticate parses the Authorization header and stores the identity in
// the request context. Requests without a valid token are rejected.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}

		ident, err := m.issuer.Verify(token)
		if err != nil {
			m.logger.Warn("token rejected", slog.String("path", r.URL.Path))
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
			return
		}

		ctx := shared.ContextWithIdentity(r.Context(), ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole restricts a route group to one role.
func (m *Middleware) RequireRole(role shared.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, ok := shared.IdentityFromContext(r.Context())
			if !ok || ident.Role != role {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
