package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nextlevelbuilder/agentgate/internal/directory"
	"github.com/nextlevelbuilder/agentgate/internal/rbac"
)

type contextKey int

const userContextKey contextKey = iota

// WithUser attaches the resolved authorization context to ctx.
func WithUser(ctx context.Context, u *rbac.UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext returns the authorization context, or nil on
// unauthenticated requests.
func UserFromContext(ctx context.Context) *rbac.UserContext {
	u, _ := ctx.Value(userContextKey).(*rbac.UserContext)
	return u
}

// principalClaims are the JWT claims the gateway consumes.
type principalClaims struct {
	Email    string `json:"email"`
	TenantID string `json:"tid,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies bearer JWTs and builds the per-request
// authorization context: token → identity, directory → groups,
// rbac → role. Group resolution degrades to the fallback group when
// the directory is unreachable; authentication itself never does.
type Authenticator struct {
	secret []byte
	issuer string
	dir    directory.Directory
	rbac   *rbac.Service
}

// NewAuthenticator creates the auth middleware dependencies bundle.
func NewAuthenticator(secret, issuer string, dir directory.Directory, svc *rbac.Service) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, dir: dir, rbac: svc}
}

// Middleware authenticates the request and injects the resolved
// rbac.UserContext before calling next.
func (a *Authenticator) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}

		claims, err := a.parseToken(raw)
		if err != nil {
			slog.Warn("auth.token_rejected", "error", err)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}

		groups := directory.GroupsOrFallback(r.Context(), a.dir, claims.Subject)

		user, err := a.rbac.Resolve(r.Context(), claims.Subject, claims.Email, claims.TenantID, groups)
		if err != nil {
			slog.Error("auth.rbac_resolve_failed", "user", claims.Subject, "error", err)
			writeError(w, err)
			return
		}

		next(w, r.WithContext(WithUser(r.Context(), user)))
	}
}

func (a *Authenticator) parseToken(raw string) (*principalClaims, error) {
	claims := &principalClaims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("token missing sub or email claim")
	}
	return claims, nil
}
