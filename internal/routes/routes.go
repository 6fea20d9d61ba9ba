package routes

import (
	"github.com/cyberguard/aegis/internal/auth"
	"github.com/cyberguard/aegis/internal/handlers"
	"github.com/cyberguard/aegis/internal/middleware"
	"github.com/cyberguard/aegis/internal/rbac"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes. Global middleware (the
// reputation gate, CSRF protection, security headers) is mounted by the
// caller ahead of this; everything here is per-route policy.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	mfaHandler *handlers.MFAHandler,
	adminHandler *handlers.AdminHandler,
	tokenManager *auth.TokenManager,
	sessionReporter auth.SessionReporter,
) {
	// Rate limiting config for unauthenticated auth endpoints
	rateLimitConfig := middleware.DefaultAuthRateLimit()
	authenticatedLimit := middleware.DefaultAuthenticatedRateLimit()

	// Public routes - no authentication required
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/register", authHandler.Register)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/refresh", authHandler.RefreshToken)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.SessionAuth(tokenManager, sessionReporter))

		r.With(middleware.RateLimitByUserID(authenticatedLimit, "read")).Get("/auth/me", authHandler.Me)
		r.Post("/auth/logout", authHandler.Logout)

		// MFA enrollment. A nil handler means the deployment has MFA
		// switched off entirely.
		if mfaHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimitByUserID(authenticatedLimit, "write"))
				r.Post("/mfa/enroll", mfaHandler.Enroll)
				r.Post("/mfa/confirm", mfaHandler.Confirm)
				r.Post("/mfa/disable", mfaHandler.Disable)
			})
		}

		// Admin surface, guarded per capability rather than per role so the
		// analyst role keeps its triage powers without rule or user access.
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RateLimitByUserID(authenticatedLimit, "admin"))

			r.Group(func(r chi.Router) {
				r.Use(auth.RequirePermission(rbac.CanBlockIPs))
				r.Post("/ips/block", adminHandler.BlockIP)
				r.Delete("/ips/{ip}/block", adminHandler.UnblockIP)
				r.Get("/ips/blocked", adminHandler.ListBlockedIPs)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequirePermission(rbac.CanConfigureRules))
				r.Post("/whitelist", adminHandler.WhitelistIP)
				r.Delete("/whitelist/{ip}", adminHandler.RemoveWhitelist)
				r.Get("/whitelist", adminHandler.ListWhitelist)
				r.Post("/countries", adminHandler.BlockCountry)
				r.Delete("/countries/{code}", adminHandler.UnblockCountry)
				r.Get("/countries", adminHandler.ListCountryRules)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequirePermission(rbac.CanManageAlerts))
				r.Get("/alerts", adminHandler.ListAlerts)
				r.Post("/alerts/{id}/resolve", adminHandler.ResolveAlert)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequirePermission(rbac.CanManageUsers))
				r.Get("/users", adminHandler.ListUsers)
				r.Put("/users/{id}/role", adminHandler.UpdateUserRole)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequirePermission(rbac.CanViewAuditLogs))
				r.Get("/audit", adminHandler.ListAuditLogs)
			})
		})
	})
}
