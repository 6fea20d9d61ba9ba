package middleware

import (
	"net/http"
	"time"

	"github.com/cyberguard/aegis/internal/auth"
	pkghttp "github.com/cyberguard/aegis/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAuthRateLimit returns default rate limit config for auth endpoints (5 requests per minute)
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 5,
	}
}

// AuthenticatedRateLimitConfig holds per-user limits by operation class.
type AuthenticatedRateLimitConfig struct {
	ReadOperationsPerMinute  int
	WriteOperationsPerMinute int
	AdminOperationsPerMinute int
}

// DefaultAuthenticatedRateLimit returns the standard per-user limits.
func DefaultAuthenticatedRateLimit() AuthenticatedRateLimitConfig {
	return AuthenticatedRateLimitConfig{
		ReadOperationsPerMinute:  100,
		WriteOperationsPerMinute: 30,
		AdminOperationsPerMinute: 60,
	}
}

func rateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests")
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(rateLimitExceeded),
	)
}

// RateLimitByUserID rate limits authenticated requests per user, falling
// back to the client IP when no session claims are present. operation
// selects which limit from the config applies ("read", "write", "admin").
func RateLimitByUserID(config AuthenticatedRateLimitConfig, operation string) func(next http.Handler) http.Handler {
	var limit int
	switch operation {
	case "write":
		limit = config.WriteOperationsPerMinute
	case "admin":
		limit = config.AdminOperationsPerMinute
	default:
		limit = config.ReadOperationsPerMinute
	}

	return httprate.Limit(
		limit,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetUserFromContext(r); claims != nil && claims.UserID != "" {
				return "user:" + claims.UserID, nil
			}
			return httprate.KeyByRealIP(r)
		}),
		httprate.WithLimitHandler(rateLimitExceeded),
	)
}
