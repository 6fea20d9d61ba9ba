package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cyberguard/aegis/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSessionReporter captures reported session violations.
type recordingSessionReporter struct {
	ips   []string
	paths []string
}

func (r *recordingSessionReporter) ReportSessionViolation(ctx context.Context, ip, path string) {
	r.ips = append(r.ips, ip)
	r.paths = append(r.paths, path)
}

func sessionAuthFixture(t *testing.T) (*TokenManager, *recordingSessionReporter, http.Handler) {
	t.Helper()

	tm := NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour)
	reporter := &recordingSessionReporter{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetUserFromContext(r)
		require.NotNil(t, claims)
		w.WriteHeader(http.StatusOK)
	})
	return tm, reporter, SessionAuth(tm, reporter)(next)
}

func TestSessionAuth_ValidTokenPassesClaims(t *testing.T) {
	tm, reporter, handler := sessionAuthFixture(t)

	pair, err := tm.CreateTokens("user-1", "user@example.com", models.RoleUser)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, reporter.ips)
}

func TestSessionAuth_MissingTokenIsNotAViolation(t *testing.T) {
	_, reporter, handler := sessionAuthFixture(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))

	// A client without a session gets a plain 401; only presented tokens
	// that fail verification feed the alert stream.
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, reporter.ips)
}

func TestSessionAuth_TamperedTokenIsReported(t *testing.T) {
	_, reporter, handler := sessionAuthFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.RemoteAddr = "198.51.100.7:4433"
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Len(t, reporter.ips, 1)
	assert.Equal(t, "198.51.100.7", reporter.ips[0])
	assert.Equal(t, "/api/v1/auth/me", reporter.paths[0])
}

func TestSessionAuth_RefreshTokenMisuseIsReported(t *testing.T) {
	tm, reporter, handler := sessionAuthFixture(t)

	pair, err := tm.CreateTokens("user-1", "user@example.com", models.RoleUser)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Len(t, reporter.ips, 1)
}

func TestSessionAuth_NilReporterStillRejects(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := SessionAuth(tm, nil)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
