package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopflow/backend/internal/domain"
)

type contextKey struct{}

// IdentityFrom returns the identity placed in the context by Middleware.
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(*Identity)
	return id, ok
}

// WithIdentity returns a context carrying the given identity. Handlers read
// it back through IdentityFrom.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// Middleware verifies the bearer token and injects the resulting identity
// into the request context.
func (s *Service) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			writeUnauthorized(w, "missing bearer token")
			return
		}

		identity, err := s.Verify(tokenString)
		if err != nil {
			writeUnauthorized(w, "invalid token")
			return
		}

		next(w, r.WithContext(WithIdentity(r.Context(), identity)))
	}
}

// AdminOnly composes Middleware with an admin role gate.
func (s *Service) AdminOnly(next http.HandlerFunc) http.HandlerFunc {
	return s.Middleware(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFrom(r.Context())
		if identity == nil || identity.RoleID != domain.RoleAdmin {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "admin access required"})
			return
		}
		next(w, r)
	})
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
