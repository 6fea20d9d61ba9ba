package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cyberguard/aegis/internal/auth"
	"github.com/cyberguard/aegis/internal/models"
	"github.com/stretchr/testify/assert"
)

type stubMFAService struct {
	enrollFn  func(ctx context.Context, userID string) (*auth.Enrollment, error)
	confirmFn func(ctx context.Context, userID, code string) error
	disableFn func(ctx context.Context, userID, password, code string) error
}

func (s *stubMFAService) Enroll(ctx context.Context, userID string) (*auth.Enrollment, error) {
	return s.enrollFn(ctx, userID)
}

func (s *stubMFAService) ConfirmEnrollment(ctx context.Context, userID, code string) error {
	return s.confirmFn(ctx, userID, code)
}

func (s *stubMFAService) Disable(ctx context.Context, userID, password, code string) error {
	return s.disableFn(ctx, userID, password, code)
}

func mfaClaims() *models.TokenClaims {
	return &models.TokenClaims{Type: models.TokenTypeAccess, UserID: "user-1"}
}

func TestMFAHandler_Enroll(t *testing.T) {
	handler := NewMFAHandler(&stubMFAService{
		enrollFn: func(ctx context.Context, userID string) (*auth.Enrollment, error) {
			assert.Equal(t, "user-1", userID)
			return &auth.Enrollment{
				Secret:          "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ",
				ProvisioningURI: "otpauth://totp/Aegis:user@example.com",
				BackupCodes:     []string{"a1b2c3d4"},
			}, nil
		},
	})

	req := withClaims(httptest.NewRequest(http.MethodPost, "/mfa/enroll", nil), mfaClaims())
	rec := httptest.NewRecorder()
	handler.Enroll(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "provisioning_uri")
	assert.Contains(t, rec.Body.String(), "backup_codes")
}

func TestMFAHandler_Enroll_AlreadyEnabled(t *testing.T) {
	handler := NewMFAHandler(&stubMFAService{
		enrollFn: func(ctx context.Context, userID string) (*auth.Enrollment, error) {
			return nil, models.ErrConflict
		},
	})

	req := withClaims(httptest.NewRequest(http.MethodPost, "/mfa/enroll", nil), mfaClaims())
	rec := httptest.NewRecorder()
	handler.Enroll(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMFAHandler_Enroll_NoSession(t *testing.T) {
	handler := NewMFAHandler(&stubMFAService{})

	rec := httptest.NewRecorder()
	handler.Enroll(rec, httptest.NewRequest(http.MethodPost, "/mfa/enroll", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMFAHandler_Confirm(t *testing.T) {
	handler := NewMFAHandler(&stubMFAService{
		confirmFn: func(ctx context.Context, userID, code string) error {
			assert.Equal(t, "123456", code)
			return nil
		},
	})

	req := withClaims(postJSON(t, "/mfa/confirm", ConfirmMFARequest{Code: "123456"}), mfaClaims())
	rec := httptest.NewRecorder()
	handler.Confirm(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMFAHandler_Confirm_InvalidCode(t *testing.T) {
	handler := NewMFAHandler(&stubMFAService{
		confirmFn: func(ctx context.Context, userID, code string) error {
			return models.ErrInvalidMFACode
		},
	})

	req := withClaims(postJSON(t, "/mfa/confirm", ConfirmMFARequest{Code: "000000"}), mfaClaims())
	rec := httptest.NewRecorder()
	handler.Confirm(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMFAHandler_Confirm_NothingStaged(t *testing.T) {
	handler := NewMFAHandler(&stubMFAService{
		confirmFn: func(ctx context.Context, userID, code string) error {
			return models.ErrBadRequest
		},
	})

	req := withClaims(postJSON(t, "/mfa/confirm", ConfirmMFARequest{Code: "123456"}), mfaClaims())
	rec := httptest.NewRecorder()
	handler.Confirm(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMFAHandler_Confirm_ValidationRejectsShortCode(t *testing.T) {
	handler := NewMFAHandler(&stubMFAService{})

	req := withClaims(postJSON(t, "/mfa/confirm", ConfirmMFARequest{Code: "123"}), mfaClaims())
	rec := httptest.NewRecorder()
	handler.Confirm(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMFAHandler_Disable(t *testing.T) {
	handler := NewMFAHandler(&stubMFAService{
		disableFn: func(ctx context.Context, userID, password, code string) error {
			assert.Equal(t, "user-1", userID)
			assert.Equal(t, "pw", password)
			return nil
		},
	})

	req := withClaims(postJSON(t, "/mfa/disable", DisableMFARequest{Password: "pw", Code: "123456"}), mfaClaims())
	rec := httptest.NewRecorder()
	handler.Disable(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMFAHandler_Disable_WrongPassword(t *testing.T) {
	handler := NewMFAHandler(&stubMFAService{
		disableFn: func(ctx context.Context, userID, password, code string) error {
			return models.ErrUnauthorized
		},
	})

	req := withClaims(postJSON(t, "/mfa/disable", DisableMFARequest{Password: "wrong", Code: "123456"}), mfaClaims())
	rec := httptest.NewRecorder()
	handler.Disable(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
