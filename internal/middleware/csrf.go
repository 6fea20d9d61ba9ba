package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cyberguard/aegis/internal/auth"
	pkghttp "github.com/cyberguard/aegis/pkg/http"
)

// CSRFReporter receives double-submit violations so they land in the
// security alert stream alongside the reputation engine's findings.
type CSRFReporter interface {
	ReportCSRFViolation(ctx context.Context, ip, path string)
}

// CSRFProtection enforces the double-submit cookie pattern. Safe methods
// pass through and get a cookie attached when missing; state-changing
// methods must present matching cookie and header/body copies or the
// request fails with 403.
func CSRFProtection(guard *auth.CSRFGuard, reporter CSRFReporter, ipConfig *pkghttp.IPConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				if _, err := guard.Attach(w, r); err != nil {
					logger.Error("failed to attach csrf cookie",
						slog.String("path", r.URL.Path),
						slog.Any("error", err),
					)
				}
				next.ServeHTTP(w, r)
				return
			}

			if !guard.Verify(r) {
				ip := pkghttp.ExtractClientIP(r, ipConfig)
				logger.Warn("csrf verification failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("ip_address", ip),
				)
				if reporter != nil {
					reporter.ReportCSRFViolation(r.Context(), ip, r.URL.Path)
				}
				pkghttp.WriteForbidden(w, "CSRF token missing or invalid")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
