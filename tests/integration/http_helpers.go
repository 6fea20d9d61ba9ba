package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/cyberguard/aegis/internal/auth"
	"github.com/cyberguard/aegis/internal/database"
	"github.com/cyberguard/aegis/internal/handlers"
	middlewareCustom "github.com/cyberguard/aegis/internal/middleware"
	"github.com/cyberguard/aegis/internal/models"
	"github.com/cyberguard/aegis/internal/reputation"
	"github.com/cyberguard/aegis/internal/repositories"
	"github.com/cyberguard/aegis/internal/routes"
	"github.com/cyberguard/aegis/internal/services"
	pkghttp "github.com/cyberguard/aegis/pkg/http"
	pkglogger "github.com/cyberguard/aegis/pkg/logger"
)

const (
	testJWTSecret = "integration-secret-32-characters!"
	testMFAIssuer = "AegisTest"

	// Low enough that a flood test stays quick, high enough that ordinary
	// multi-request flows never trip it.
	testRequestThreshold = 50
)

// MockEmailService captures dispatched alert notifications for assertions.
type MockEmailService struct {
	mu   sync.Mutex
	sent []models.SecurityAlert
}

// SendAlertEmail records the alert instead of delivering it.
func (m *MockEmailService) SendAlertEmail(_ context.Context, alert *models.SecurityAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, *alert)
	return nil
}

// SentCount returns how many alerts have been dispatched so far.
func (m *MockEmailService) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// TestServer runs the full HTTP stack against a real database: repositories,
// reputation engine, auth services, handlers, and the production middleware
// chain. Email delivery is mocked; geo resolution is disabled.
type TestServer struct {
	Server  *httptest.Server
	DB      *database.DB
	Email   *MockEmailService
	Rules   *reputation.RuleStore
	Engine  *reputation.Engine
	Lockout *auth.Lockout
	MFA     *auth.MFAManager
}

// NewTestServer builds the complete application wired to db. The server is
// shut down automatically when the test finishes.
func NewTestServer(t *testing.T, db *database.DB) *TestServer {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	userRepo := repositories.NewUserRepository(db)
	ipRecordRepo := repositories.NewIPRecordRepository(db)
	alertRepo := repositories.NewSecurityAlertRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)

	mockEmail := &MockEmailService{}
	alertService := services.NewAlertService(alertRepo, mockEmail, models.SeverityHigh, 2*time.Second, logger)

	ruleStore := reputation.NewRuleStore()
	engine := reputation.NewEngine(ipRecordRepo, alertService, ruleStore, nil, reputation.Config{
		RateWindow:         time.Minute,
		RequestThreshold:   testRequestThreshold,
		SpikeWindow:        5 * time.Minute,
		AnomalyThreshold:   10,
		RateAlertThreshold: 5,
		BlockDuration:      15 * time.Minute,
		StoreTimeout:       5 * time.Second,
	}, logger)

	tokenManager := auth.NewTokenManager(testJWTSecret, 15*time.Minute, 7*24*time.Hour)
	lockout := auth.NewLockout(auth.LockoutConfig{
		Threshold:    5,
		LockDuration: 15 * time.Minute,
	})
	mfaManager := auth.NewMFAManager(testMFAIssuer)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})
	csrfGuard := auth.NewCSRFGuard(time.Hour, false)
	auditLogger := pkglogger.NewAuditLogger(logger)

	authService := services.NewAuthService(userRepo, auditRepo, tokenManager, lockout, mfaManager, timingDelay, alertService, logger, auditLogger)
	mfaService := services.NewMFAService(userRepo, auditRepo, mfaManager, logger)

	cookieConfig := auth.CookieConfig{Secure: false}
	authHandler := handlers.NewAuthHandler(authService, csrfGuard, cookieConfig, 15*time.Minute, 7*24*time.Hour, nil)
	mfaHandler := handlers.NewMFAHandler(mfaService)
	adminHandler := handlers.NewAdminHandler(engine, ipRecordRepo, ruleStore, alertService, userRepo, auditRepo, nil)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Recoverer)
	router.Use(chiMiddleware.Timeout(30 * time.Second))
	router.Use(middlewareCustom.ReputationCheck(engine, nil, logger))
	router.Use(middlewareCustom.CSRFProtection(csrfGuard, alertService, nil, logger))

	routes.RegisterRoutes(router, authHandler, mfaHandler, adminHandler, tokenManager, alertService)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	server := httptest.NewServer(router)
	ts := &TestServer{
		Server:  server,
		DB:      db,
		Email:   mockEmail,
		Rules:   ruleStore,
		Engine:  engine,
		Lockout: lockout,
		MFA:     mfaManager,
	}
	t.Cleanup(server.Close)
	return ts
}

// TestClient is one simulated client: its own cookie jar and a fixed source
// IP presented via X-Forwarded-For (the router runs chi's RealIP, so both
// the rate limiter and the reputation engine key on it).
type TestClient struct {
	ts   *TestServer
	http *http.Client
	ip   string
}

// NewClient creates a client with an isolated session for the given IP.
func (ts *TestServer) NewClient(t *testing.T, ip string) *TestClient {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &TestClient{
		ts:   ts,
		http: &http.Client{Jar: jar, Timeout: 10 * time.Second},
		ip:   ip,
	}
}

// Get performs a GET request.
func (c *TestClient) Get(t *testing.T, path string) *http.Response {
	t.Helper()
	return c.Do(t, http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *TestClient) Post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	return c.Do(t, http.MethodPost, path, body)
}

// Do performs an arbitrary request. Unsafe methods carry the double-submit
// CSRF header automatically, priming the cookie with a GET when needed.
func (c *TestClient) Do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.ts.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", c.ip)

	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
	default:
		req.Header.Set(auth.CSRFHeaderName, c.csrfToken(t))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// csrfToken returns the client's CSRF cookie value, obtaining one first if
// the jar does not have it yet.
func (c *TestClient) csrfToken(t *testing.T) string {
	t.Helper()

	serverURL, err := url.Parse(c.ts.Server.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}

	find := func() string {
		for _, cookie := range c.http.Jar.Cookies(serverURL) {
			if cookie.Name == auth.CSRFCookieName {
				return cookie.Value
			}
		}
		return ""
	}

	if token := find(); token != "" {
		return token
	}

	resp := c.Get(t, "/health")
	_ = resp.Body.Close()

	token := find()
	if token == "" {
		t.Fatal("csrf cookie was not issued")
	}
	return token
}

// DecodeJSON parses a JSON response body into target and closes the body.
func DecodeJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ReadErrorCode returns the machine-readable error code of an error
// response.
func ReadErrorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var errResp pkghttp.ErrorResponse
	DecodeJSON(t, resp, &errResp)
	return errResp.Error
}

// DrainAndClose discards the response body; use for responses whose body is
// irrelevant to the assertion.
func DrainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
