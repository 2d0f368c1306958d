package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/services"
)

type contextKey string

const identityKey contextKey = "identity"

// TokenVerifier is implemented by every services.IdentityGateway.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*services.Identity, error)
}

// Auth rejects requests without a valid bearer token and stores the caller's
// identity in the request context. WebSocket upgrades may pass the token as
// the "token" query parameter since browsers cannot set headers on them.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Missing or malformed authorization token")
				return
			}

			id, err := verifier.VerifyToken(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), *id)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if header == "" && strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id services.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity stored by Auth.
func IdentityFromContext(ctx context.Context) (services.Identity, bool) {
	id, ok := ctx.Value(identityKey).(services.Identity)
	return id, ok
}
