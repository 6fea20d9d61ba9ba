package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cyberguard/aegis/internal/models"
	"github.com/cyberguard/aegis/internal/reputation"
	pkghttp "github.com/cyberguard/aegis/pkg/http"
)

// TrafficAnalyzer is the slice of the reputation engine the middleware
// needs.
type TrafficAnalyzer interface {
	Analyze(ctx context.Context, ip string) reputation.Assessment
}

// ReputationCheck runs every request through the reputation engine before
// anything else sees it. Blocked verdicts answer 429; the engine itself
// fails open on storage trouble, so this middleware never takes the API
// down with it.
func ReputationCheck(analyzer TrafficAnalyzer, ipConfig *pkghttp.IPConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := pkghttp.ExtractClientIP(r, ipConfig)

			verdict := analyzer.Analyze(r.Context(), ip)
			if verdict.ShouldBlock {
				if verdict.Severity.AtLeast(models.SeverityHigh) {
					logger.Warn("request denied by reputation engine",
						slog.String("ip_address", ip),
						slog.String("path", r.URL.Path),
						slog.String("severity", string(verdict.Severity)),
						slog.String("reason", verdict.Reason),
					)
				}
				pkghttp.WriteTooManyRequests(w, "request rejected")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
