package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
	pkgjwt "github.com/ShedrackAmodu/school-comm-service/pkg/jwt"
	"github.com/ShedrackAmodu/school-comm-service/pkg/log"
)

const (
	authHeaderKey = "Authorization"
	bearerPrefix  = "Bearer "
	tokenParam    = "token"
)

type contextKey struct{}

var identityKey contextKey

// WithIdentity stores the authenticated identity in the context.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(domain.Identity)
	return identity, ok
}

// Auth validates the platform's RS256 access tokens and puts the
// resulting identity into the request context.
type Auth struct {
	verifier *pkgjwt.Verifier
}

func NewAuth(verifier *pkgjwt.Verifier) *Auth {
	return &Auth{verifier: verifier}
}

// Require rejects unauthenticated requests with 401 before any
// WebSocket upgrade happens. The token comes from the Authorization
// header or, for browser WebSocket clients that cannot set headers,
// from the token query parameter.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			unauthorized(w, "missing access token")
			return
		}

		claims, err := a.verifier.ValidateToken(token)
		if err != nil {
			unauthorized(w, "invalid access token")
			return
		}

		identity := domain.Identity{
			UserID:      claims.UserID,
			Username:    claims.Username,
			DisplayName: claims.DisplayName,
			Roles:       claims.Roles,
		}

		ctx := WithIdentity(r.Context(), identity)

		l := log.Ctx(ctx).With().
			Str(log.FieldUserID, identity.UserID).
			Str(log.FieldUsername, identity.Username).
			Logger()
		ctx = log.WithLogger(ctx, l)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	header := r.Header.Get(authHeaderKey)
	if strings.HasPrefix(header, bearerPrefix) {
		return strings.TrimPrefix(header, bearerPrefix)
	}
	return r.URL.Query().Get(tokenParam)
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
