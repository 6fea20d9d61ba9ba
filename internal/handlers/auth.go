package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cyberguard/aegis/internal/auth"
	"github.com/cyberguard/aegis/internal/models"
	"github.com/cyberguard/aegis/internal/services"
	pkghttp "github.com/cyberguard/aegis/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password, mfaCode string, reqCtx services.LoginRequestContext) (*services.AuthResponse, error)
	Register(ctx context.Context, email, password, name string, reqCtx services.LoginRequestContext) (*services.UserResponse, error)
	RefreshToken(ctx context.Context, refreshToken string, reqCtx services.LoginRequestContext) (*services.AuthResponse, error)
	CurrentUser(ctx context.Context, userID string) (*services.UserResponse, error)
	Logout(ctx context.Context, userID string, reqCtx services.LoginRequestContext)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service    AuthServiceInterface
	guard      *auth.CSRFGuard
	cookies    auth.CookieConfig
	accessTTL  time.Duration
	refreshTTL time.Duration
	ipConfig   *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, guard *auth.CSRFGuard, cookies auth.CookieConfig, accessTTL, refreshTTL time.Duration, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:    service,
		guard:      guard,
		cookies:    cookies,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		ipConfig:   ipConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	MFACode  string `json:"mfa_code,omitempty" validate:"omitempty,min=6,max=8"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
}

// RefreshTokenRequest represents the request body for token refresh. The
// token may instead arrive via the refresh cookie, so the body is optional.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) requestContext(r *http.Request) services.LoginRequestContext {
	return services.LoginRequestContext{
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

// Login handles user login. When the account has MFA enabled the request
// must carry mfa_code; a correct password without one returns 401 with the
// mfa_required code so clients can prompt for the second factor.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	authResp, err := h.service.Login(r.Context(), req.Email, req.Password, req.MFACode, h.requestContext(r))
	if err != nil {
		var locked *models.AccountLockedError
		switch {
		case errors.Is(err, models.ErrMFARequired):
			pkghttp.WriteError(w, http.StatusUnauthorized, "mfa_required", "MFA code required")
		case errors.As(err, &locked):
			// Surface the remaining lock time so clients can back off
			// rather than guess.
			pkghttp.WriteRateLimited(w, "account_locked",
				"Too many failed login attempts. Please try again later.", locked.Remaining)
		case errors.Is(err, models.ErrAccountLocked):
			pkghttp.WriteError(w, http.StatusTooManyRequests, "account_locked",
				"Too many failed login attempts. Please try again later.")
		case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrInvalidMFACode):
			// One message for bad email, bad password, and bad code so the
			// response cannot be used to enumerate accounts.
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	auth.SetSessionCookies(w, authResp.AccessToken, authResp.RefreshToken, h.accessTTL, h.refreshTTL, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, authResp)
}

// Register handles user registration
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	user, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name, h.requestContext(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Password does not meet the security requirements")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "An account with this email already exists")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, user)
}

// RefreshToken handles token rotation. The refresh token is read from the
// body first, then from the scoped refresh cookie.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	// An empty body is fine when the cookie carries the token.
	_ = json.NewDecoder(r.Body).Decode(&req)

	tokenString := strings.TrimSpace(req.RefreshToken)
	if tokenString == "" {
		if cookieToken, err := auth.GetRefreshTokenCookie(r); err == nil {
			tokenString = cookieToken
		}
	}
	if tokenString == "" {
		pkghttp.WriteBadRequest(w, "Missing refresh token")
		return
	}

	authResp, err := h.service.RefreshToken(r.Context(), tokenString, h.requestContext(r))
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Invalid or expired refresh token")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.SetSessionCookies(w, authResp.AccessToken, authResp.RefreshToken, h.accessTTL, h.refreshTTL, h.cookies)
	pkghttp.WriteJSON(w, http.StatusOK, authResp)
}

// Logout tears down the session at the transport: both token cookies and
// the CSRF cookie are cleared. Tokens are stateless, so there is nothing to
// revoke server-side beyond the audit record.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	h.service.Logout(r.Context(), claims.UserID, h.requestContext(r))

	auth.ClearSessionCookies(w, h.cookies)
	if h.guard != nil {
		h.guard.Clear(w)
	}
	pkghttp.WriteNoContent(w)
}

// Me returns the fresh profile for the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	user, err := h.service.CurrentUser(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// A valid token for a deleted account is a dead session.
			pkghttp.WriteUnauthorized(w, "unauthorized")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, user)
}
