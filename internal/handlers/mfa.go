package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cyberguard/aegis/internal/auth"
	"github.com/cyberguard/aegis/internal/models"
	pkghttp "github.com/cyberguard/aegis/pkg/http"
)

// MFAServiceInterface defines the interface for MFA enrollment logic
type MFAServiceInterface interface {
	Enroll(ctx context.Context, userID string) (*auth.Enrollment, error)
	ConfirmEnrollment(ctx context.Context, userID, code string) error
	Disable(ctx context.Context, userID, password, code string) error
}

// MFAHandler handles MFA enrollment HTTP requests
type MFAHandler struct {
	service MFAServiceInterface
}

// NewMFAHandler creates a new MFAHandler
func NewMFAHandler(service MFAServiceInterface) *MFAHandler {
	return &MFAHandler{service: service}
}

// ConfirmMFARequest represents the request body for confirming enrollment
type ConfirmMFARequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// DisableMFARequest represents the request body for disabling MFA. Both the
// password and a current code are required.
type DisableMFARequest struct {
	Password string `json:"password" validate:"required"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
}

// Enroll stages a fresh TOTP secret and returns the provisioning package:
// the base32 secret, the otpauth:// URI, a QR rendering, and the backup
// codes. MFA is not enforced until the enrollment is confirmed.
func (h *MFAHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	enrollment, err := h.service.Enroll(r.Context(), claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "MFA is already enabled for this account")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "unauthorized")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, enrollment)
}

// Confirm verifies a code against the staged secret and activates MFA.
func (h *MFAHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ConfirmMFARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ConfirmEnrollment(r.Context(), claims.UserID, req.Code); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidMFACode):
			pkghttp.WriteUnauthorized(w, "Invalid MFA code")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "MFA is already enabled for this account")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "No pending MFA enrollment; start enrollment first")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "unauthorized")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "MFA enabled",
	})
}

// Disable turns MFA off. Requires the current password and a valid code so
// a hijacked session alone cannot strip the account's second factor.
func (h *MFAHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req DisableMFARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.Disable(r.Context(), claims.UserID, req.Password, req.Code); err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		case errors.Is(err, models.ErrInvalidMFACode):
			pkghttp.WriteUnauthorized(w, "Invalid MFA code")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "MFA is not enabled for this account")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "unauthorized")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteNoContent(w)
}
