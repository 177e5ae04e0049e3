// Package api exposes the staking engine's operations as a chi-routed JSON
// HTTP surface, grounded on services/escrow-gateway's router construction
// and gateway/middleware/auth.go's JWT-claims-to-principal extraction.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	contextKeyPrincipal contextKey = "staking.principal"
	contextKeyAdmin      contextKey = "staking.admin"
)

// Authenticator validates bearer tokens and extracts the caller principal
// and admin-scope claim, the same HMAC-signed-claims shape
// gateway/middleware/auth.go validates.
type Authenticator struct {
	secret    []byte
	clockSkew time.Duration
}

// NewAuthenticator constructs an Authenticator over an HMAC signing key.
func NewAuthenticator(signingKey string) *Authenticator {
	return &Authenticator{secret: []byte(strings.TrimSpace(signingKey)), clockSkew: 2 * time.Minute}
}

// Middleware rejects anonymous callers per §7's ErrAnonymousCaller, and
// when requireAdmin is set, also rejects a caller without the "admin"
// scope claim.
func (a *Authenticator) Middleware(requireAdmin bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearer(r.Header.Get("Authorization"))
			if tokenString == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := a.parseToken(tokenString)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			principal, _ := claims["sub"].(string)
			if strings.TrimSpace(principal) == "" {
				http.Error(w, "anonymous caller", http.StatusUnauthorized)
				return
			}
			admin := hasAdminScope(claims)
			if requireAdmin && !admin {
				http.Error(w, "insufficient scope", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), contextKeyPrincipal, principal)
			ctx = context.WithValue(ctx, contextKeyAdmin, admin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.clockSkew))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not a map")
	}
	return claims, nil
}

func hasAdminScope(claims jwt.MapClaims) bool {
	raw, ok := claims["scope"]
	if !ok {
		return false
	}
	switch v := raw.(type) {
	case string:
		for _, field := range strings.Fields(v) {
			if field == "admin" {
				return true
			}
		}
	case []interface{}:
		for _, entry := range v {
			if s, ok := entry.(string); ok && s == "admin" {
				return true
			}
		}
	}
	return false
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func principalFromContext(ctx context.Context) string {
	principal, _ := ctx.Value(contextKeyPrincipal).(string)
	return principal
}
