package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/cyberguard/aegis/internal/models"
	"github.com/cyberguard/aegis/internal/rbac"
	pkghttp "github.com/cyberguard/aegis/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing session claims in context
	UserContextKey contextKey = "user"
)

// SessionReporter receives session token violations so tampered or misused
// tokens land in the security alert stream. A bare missing token is not a
// violation; presenting a token that fails verification is.
type SessionReporter interface {
	ReportSessionViolation(ctx context.Context, ip, path string)
}

// SessionAuth validates the session token and injects claims into context.
// The token is read from the Authorization header first, then from the
// access-token cookie. Verification failures are 401; nothing from the
// token layer propagates uncaught. reporter may be nil.
func SessionAuth(tm *TokenManager, reporter SessionReporter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				if cookieToken, err := GetAccessTokenCookie(r); err == nil {
					tokenString = cookieToken
				}
			}
			if tokenString == "" {
				pkghttp.WriteUnauthorized(w, "missing session token")
				return
			}

			claims, err := tm.Verify(tokenString)
			if err != nil {
				reportSession(r, reporter)
				pkghttp.WriteUnauthorized(w, "invalid or expired session")
				return
			}

			// Refresh tokens are only honored by /auth/refresh.
			if claims.Type == models.TokenTypeRefresh {
				reportSession(r, reporter)
				pkghttp.WriteUnauthorized(w, "refresh tokens cannot be used for API access")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func reportSession(r *http.Request, reporter SessionReporter) {
	if reporter == nil {
		return
	}
	reporter.ReportSessionViolation(r.Context(), pkghttp.ExtractClientIP(r, nil), r.URL.Path)
}

// RequirePermission enforces a capability from the RBAC matrix. Must run
// after SessionAuth.
func RequirePermission(capability rbac.Capability) func(next http.Handler) http.Handler {
	guard := rbac.RequirePermission(capability)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}

			role := claims.Role
			if !guard(&role) {
				pkghttp.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole enforces exact role membership. Must run after SessionAuth.
func RequireRole(roles ...models.Role) func(next http.Handler) http.Handler {
	guard := rbac.RequireRole(roles...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}

			role := claims.Role
			if !guard(&role) {
				pkghttp.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts session claims from the request context.
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
