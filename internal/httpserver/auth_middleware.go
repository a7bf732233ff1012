package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/stagelink/backend/internal/domain"
)

type contextKey string

const identityContextKey contextKey = "currentIdentity"

// WithIdentity returns a new context carrying the resolved caller identity.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// CurrentIdentity extracts the caller identity from the request context.
func CurrentIdentity(r *http.Request) (domain.Identity, bool) {
	if v := r.Context().Value(identityContextKey); v != nil {
		if id, ok := v.(domain.Identity); ok {
			return id, true
		}
	}
	return domain.Identity{}, false
}

// AuthMiddleware resolves the Bearer token through the identity provider and
// attaches the identity to the request context.
func AuthMiddleware(idp domain.IdentityProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

			identity, err := idp.Authenticate(r.Context(), tokenStr)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
