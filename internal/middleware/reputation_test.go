package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cyberguard/aegis/internal/models"
	"github.com/cyberguard/aegis/internal/reputation"
	pkghttp "github.com/cyberguard/aegis/pkg/http"
)

type stubAnalyzer struct {
	verdict reputation.Assessment
	gotIP   string
}

func (s *stubAnalyzer) Analyze(_ context.Context, ip string) reputation.Assessment {
	s.gotIP = ip
	return s.verdict
}

func reputationTestHandler(analyzer TrafficAnalyzer) http.Handler {
	mw := ReputationCheck(analyzer, nil, discardLogger())
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestReputationCheck_AllowsNormalTraffic(t *testing.T) {
	analyzer := &stubAnalyzer{verdict: reputation.Assessment{
		Severity: models.SeverityLow,
		Reason:   "normal traffic",
	}}
	handler := reputationTestHandler(analyzer)

	req := httptest.NewRequest("GET", "/auth/me", nil)
	req.RemoteAddr = "198.51.100.20:55000"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if analyzer.gotIP != "198.51.100.20" {
		t.Errorf("analyzer got ip %q, want 198.51.100.20", analyzer.gotIP)
	}
}

func TestReputationCheck_BlocksOnVerdict(t *testing.T) {
	analyzer := &stubAnalyzer{verdict: reputation.Assessment{
		IsAttack:    true,
		Severity:    models.SeverityHigh,
		Reason:      "request rate exceeded",
		ShouldBlock: true,
	}}
	handler := reputationTestHandler(analyzer)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest("POST", "/auth/login", nil))

	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", recorder.Code)
	}

	var resp pkghttp.ErrorResponse
	if err := json.NewDecoder(recorder.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "rate_limit_exceeded" {
		t.Errorf("error code: got %q, want rate_limit_exceeded", resp.Error)
	}
}

// The response never leaks the block reason; clients only see a generic
// rejection regardless of severity.
func TestReputationCheck_ResponseHidesReason(t *testing.T) {
	analyzer := &stubAnalyzer{verdict: reputation.Assessment{
		IsAttack:    true,
		Severity:    models.SeverityCritical,
		Reason:      "anomaly spike: 42 alerts in trailing window",
		ShouldBlock: true,
	}}
	handler := reputationTestHandler(analyzer)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest("GET", "/health", nil))

	var resp pkghttp.ErrorResponse
	if err := json.NewDecoder(recorder.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Message != "request rejected" {
		t.Errorf("message: got %q, want a generic rejection", resp.Message)
	}
}

// Attack verdicts that do not request a block still pass through; the
// engine records the alert but the request proceeds.
func TestReputationCheck_AttackWithoutBlockPasses(t *testing.T) {
	analyzer := &stubAnalyzer{verdict: reputation.Assessment{
		IsAttack:    true,
		Severity:    models.SeverityMedium,
		Reason:      "suspicious but below block threshold",
		ShouldBlock: false,
	}}
	handler := reputationTestHandler(analyzer)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest("GET", "/auth/me", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}
