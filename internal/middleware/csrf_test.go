package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cyberguard/aegis/internal/auth"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordedViolation struct {
	ip   string
	path string
}

// recordingReporter captures CSRF violation reports for assertions.
type recordingReporter struct {
	mu         sync.Mutex
	violations []recordedViolation
}

func (r *recordingReporter) ReportCSRFViolation(_ context.Context, ip, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations = append(r.violations, recordedViolation{ip: ip, path: path})
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.violations)
}

func csrfTestHandler(guard *auth.CSRFGuard, reporter CSRFReporter) http.Handler {
	mw := CSRFProtection(guard, reporter, nil, discardLogger())
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCSRFProtection_AttachesCookieOnGet(t *testing.T) {
	guard := auth.NewCSRFGuard(time.Hour, false)
	handler := csrfTestHandler(guard, nil)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest("GET", "/dashboard", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	var issued *http.Cookie
	for _, c := range recorder.Result().Cookies() {
		if c.Name == auth.CSRFCookieName {
			issued = c
		}
	}
	if issued == nil {
		t.Fatal("expected csrf cookie to be set on GET")
	}
	if issued.Value == "" {
		t.Error("csrf cookie value is empty")
	}
	if !issued.HttpOnly {
		t.Error("csrf cookie should be HttpOnly")
	}
	if issued.SameSite != http.SameSiteStrictMode {
		t.Error("csrf cookie should be SameSite=Strict")
	}
}

func TestCSRFProtection_GetKeepsExistingCookie(t *testing.T) {
	guard := auth.NewCSRFGuard(time.Hour, false)
	handler := csrfTestHandler(guard, nil)

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: auth.CSRFCookieName, Value: "existing-token"})
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	for _, c := range recorder.Result().Cookies() {
		if c.Name == auth.CSRFCookieName {
			t.Errorf("cookie should not be reissued, got Set-Cookie %q", c.Value)
		}
	}
}

func TestCSRFProtection_RejectsPostWithoutToken(t *testing.T) {
	guard := auth.NewCSRFGuard(time.Hour, false)
	reporter := &recordingReporter{}
	handler := csrfTestHandler(guard, reporter)

	req := httptest.NewRequest("POST", "/admin/ips/block", nil)
	req.RemoteAddr = "203.0.113.7:41234"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}
	if reporter.count() != 1 {
		t.Fatalf("expected 1 violation report, got %d", reporter.count())
	}
	v := reporter.violations[0]
	if v.ip != "203.0.113.7" {
		t.Errorf("reported ip: got %q, want 203.0.113.7", v.ip)
	}
	if v.path != "/admin/ips/block" {
		t.Errorf("reported path: got %q, want /admin/ips/block", v.path)
	}
}

func TestCSRFProtection_RejectsMismatchedPair(t *testing.T) {
	guard := auth.NewCSRFGuard(time.Hour, false)
	reporter := &recordingReporter{}
	handler := csrfTestHandler(guard, reporter)

	req := httptest.NewRequest("POST", "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: auth.CSRFCookieName, Value: "cookie-copy"})
	req.Header.Set(auth.CSRFHeaderName, "header-copy")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}
	if reporter.count() != 1 {
		t.Errorf("expected 1 violation report, got %d", reporter.count())
	}
}

func TestCSRFProtection_AllowsMatchingPair(t *testing.T) {
	guard := auth.NewCSRFGuard(time.Hour, false)
	reporter := &recordingReporter{}
	handler := csrfTestHandler(guard, reporter)

	token, err := guard.Issue()
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest("POST", "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: auth.CSRFCookieName, Value: token})
	req.Header.Set(auth.CSRFHeaderName, token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if reporter.count() != 0 {
		t.Errorf("no violation should be reported, got %d", reporter.count())
	}
}

func TestCSRFProtection_FormFieldFallback(t *testing.T) {
	guard := auth.NewCSRFGuard(time.Hour, false)
	handler := csrfTestHandler(guard, nil)

	token, err := guard.Issue()
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	form := auth.CSRFFormField + "=" + token
	req := httptest.NewRequest("POST", "/auth/logout", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: auth.CSRFCookieName, Value: token})
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

// A nil reporter must not panic; the middleware is wired before the alert
// service exists in some test setups.
func TestCSRFProtection_NilReporter(t *testing.T) {
	guard := auth.NewCSRFGuard(time.Hour, false)
	handler := csrfTestHandler(guard, nil)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest("DELETE", "/admin/whitelist/1.2.3.4", nil))

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}
}
