package auth

import (
	"context"
	"net/http"
	"strings"
)

// Context keys for caller information.
type contextKey string

const (
	principalContextKey contextKey = "principal"
)

// PrincipalFromContext retrieves the authenticated caller from the context.
func PrincipalFromContext(ctx context.Context) *Principal {
	principal, ok := ctx.Value(principalContextKey).(*Principal)
	if !ok {
		return nil
	}

	return principal
}

// ContextWithPrincipal adds a caller to the context.
func ContextWithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// ActorFromContext returns the caller name recorded in audit entries.
func ActorFromContext(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.Name
	}

	return Anonymous.Name
}

// Middleware creates middleware that validates API keys.
func Middleware(authSvc Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authSvc.Enabled() {
				next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), Anonymous)))

				return
			}

			key := extractKey(r)
			if key == "" {
				writeUnauthorized(w)

				return
			}

			principal, err := authSvc.Authenticate(r.Context(), key)
			if err != nil {
				writeUnauthorized(w)

				return
			}

			// Add caller to context.
			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="tools-api"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"detail":"Unauthorized"}`))
}

// extractKey extracts the API key from the request.
func extractKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}

	// Check Authorization header.
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		// Support both "Bearer <key>" and "<key>" formats.
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}

		return authHeader
	}

	return ""
}
