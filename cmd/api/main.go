package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyberguard/aegis/internal/auth"
	"github.com/cyberguard/aegis/internal/background"
	"github.com/cyberguard/aegis/internal/config"
	"github.com/cyberguard/aegis/internal/database"
	"github.com/cyberguard/aegis/internal/geoip"
	"github.com/cyberguard/aegis/internal/handlers"
	middlewareCustom "github.com/cyberguard/aegis/internal/middleware"
	"github.com/cyberguard/aegis/internal/models"
	"github.com/cyberguard/aegis/internal/reputation"
	"github.com/cyberguard/aegis/internal/repositories"
	"github.com/cyberguard/aegis/internal/routes"
	"github.com/cyberguard/aegis/internal/services"
	pkgauth "github.com/cyberguard/aegis/pkg/auth"
	pkglogger "github.com/cyberguard/aegis/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), time.Minute)
	if err := db.RunMigrations(migrateCtx); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Optional Redis for the geo lookup cache
	var rdb *database.Redis
	if cfg.Redis.Enabled {
		rdb, err = database.NewRedis(cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer rdb.Close()
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	ipRecordRepo := repositories.NewIPRecordRepository(db)
	alertRepo := repositories.NewSecurityAlertRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)

	// Alert notification channel
	var emailService services.EmailService
	if cfg.Email.Enabled {
		sesService, err := services.NewAWSSESEmailService(cfg.Email.Region, cfg.Email.FromAddress, cfg.Email.AlertAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		emailService = sesService
	} else {
		logger.Info("email alerts disabled, alert emails will be dropped")
		emailService = services.NoopEmailService{}
	}

	alertService := services.NewAlertService(
		alertRepo,
		emailService,
		models.ParseSeverity(cfg.Email.MinSeverity),
		cfg.Email.SendTimeout,
		logger,
	)

	// Reputation engine: rule state, geo classification, thresholds
	ruleStore := reputation.NewRuleStore()

	var geoResolver reputation.GeoResolver
	if cfg.Security.GeoBlockingEnabled {
		resolver := geoip.NewHTTPResolver(cfg.Security.GeoAPIBaseURL, logger)
		if rdb != nil {
			geoResolver = geoip.NewCachedResolver(resolver, rdb.Client, cfg.Security.GeoCacheTTL, logger)
		} else {
			geoResolver = resolver
		}
	}

	engine := reputation.NewEngine(ipRecordRepo, alertService, ruleStore, geoResolver, reputation.Config{
		RateWindow:         cfg.Security.RateWindow,
		RequestThreshold:   cfg.Security.RequestThreshold,
		SpikeWindow:        cfg.Security.SpikeWindow,
		AnomalyThreshold:   cfg.Security.AnomalyThreshold,
		RateAlertThreshold: cfg.Security.RateAlertThreshold,
		BlockDuration:      cfg.Security.BlockDuration,
		GeoBlockingEnabled: cfg.Security.GeoBlockingEnabled,
		StoreTimeout:       cfg.Security.StoreTimeout,
	}, logger)

	// Session and identity security
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	lockout := auth.NewLockout(auth.LockoutConfig{
		Threshold:    cfg.Auth.LockoutThreshold,
		Window:       cfg.Auth.LockoutWindow,
		LockDuration: cfg.Auth.LockoutDuration,
	})
	mfaManager := auth.NewMFAManager(cfg.Auth.MFAIssuer)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 100, RandomDelayMs: 150})
	csrfGuard := auth.NewCSRFGuard(cfg.Auth.CSRFTokenTTL, cfg.Auth.SecureCookies)
	auditLogger := pkglogger.NewAuditLogger(logger)

	// Initialize services
	authService := services.NewAuthService(userRepo, auditRepo, tokenManager, lockout, mfaManager, timingDelay, alertService, logger, auditLogger)
	mfaService := services.NewMFAService(userRepo, auditRepo, mfaManager, logger)

	// Initialize handlers
	cookieConfig := auth.CookieConfig{Secure: cfg.Auth.SecureCookies}
	authHandler := handlers.NewAuthHandler(authService, csrfGuard, cookieConfig, cfg.Auth.AccessTokenExpiry, cfg.Auth.RefreshTokenExpiry, nil)
	var mfaHandler *handlers.MFAHandler
	if cfg.Auth.MFAEnabled {
		mfaHandler = handlers.NewMFAHandler(mfaService)
	}
	adminHandler := handlers.NewAdminHandler(engine, ipRecordRepo, ruleStore, alertService, userRepo, auditRepo, nil)

	// Background cleanup: lockouts, expired whitelist entries, stale IP
	// records, aged audit rows
	cleanupManager := background.NewCleanupManager(lockout, ruleStore, ipRecordRepo, auditRepo, logger, cfg.Security.CleanupInterval)

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.Env)
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// The reputation gate runs ahead of everything application-level, so a
	// blocked IP never reaches a handler; CSRF protection covers every
	// unsafe method after it.
	router.Use(middlewareCustom.ReputationCheck(engine, nil, logger))
	router.Use(middlewareCustom.CSRFProtection(csrfGuard, alertService, nil, logger))

	// Register routes
	routes.RegisterRoutes(router, authHandler, mfaHandler, adminHandler, tokenManager, alertService)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	// Check if admin already exists
	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	// Hash password
	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	// Create admin user
	admin := &models.User{
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		Name:         "Admin",
		Role:         models.RoleAdmin,
	}

	_, err = userRepo.Create(ctx, admin)
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
