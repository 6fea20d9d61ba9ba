package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cyberguard/aegis/internal/auth"
	"github.com/cyberguard/aegis/internal/models"
	pkgauth "github.com/cyberguard/aegis/pkg/auth"
	pkglogger "github.com/cyberguard/aegis/pkg/logger"
)

// UserRepository is the slice of user persistence the auth service needs.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	ConsumeBackupCode(ctx context.Context, id, code string) error
}

// AuditRepository persists immutable identity events alongside the
// structured audit log stream.
type AuditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
}

// LockoutReporter records lockout trips in the security alert stream, so
// credential stuffing shows up next to the traffic anomalies.
type LockoutReporter interface {
	ReportLockout(ctx context.Context, ip string)
}

// AuthService handles authentication business logic: credential checks,
// login lockout, the MFA step, and token issuance.
type AuthService struct {
	repo        UserRepository
	auditRepo   AuditRepository
	tm          *auth.TokenManager
	lockout     *auth.Lockout
	mfa         *auth.MFAManager
	timing      *auth.TimingDelay
	alerts      LockoutReporter
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService. alerts may be nil when no alert
// stream is wired.
func NewAuthService(
	repo UserRepository,
	auditRepo AuditRepository,
	tm *auth.TokenManager,
	lockout *auth.Lockout,
	mfa *auth.MFAManager,
	timing *auth.TimingDelay,
	alerts LockoutReporter,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		repo:        repo,
		auditRepo:   auditRepo,
		tm:          tm,
		lockout:     lockout,
		mfa:         mfa,
		timing:      timing,
		alerts:      alerts,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	MFAEnabled bool   `json:"mfa_enabled"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// AuthResponse represents the response from auth operations
type AuthResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         *UserResponse `json:"user"`
}

// LoginRequestContext carries the request metadata audited with every
// attempt.
type LoginRequestContext struct {
	IPAddress string
	UserAgent string
}

// Login authenticates a user and returns tokens. The lockout check runs
// before credentials are examined, so a locked identity learns nothing
// about password validity. mfaCode is required (TOTP or backup code) when
// the account has MFA enabled; an empty code on an enrolled account
// returns models.ErrMFARequired.
func (s *AuthService) Login(ctx context.Context, email, password, mfaCode string, reqCtx LoginRequestContext) (*AuthResponse, error) {
	start := time.Now()

	if email = strings.ToLower(strings.TrimSpace(email)); email == "" {
		s.logger.Warn("login attempt with empty email")
		return nil, models.ErrUnauthorized
	}

	if locked, remaining := s.lockout.Check(email); locked {
		s.logger.Info("login blocked: account locked",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Duration("remaining", remaining))
		s.audit(ctx, models.AuditEventLoginFailed, nil, false, "account_locked", reqCtx)
		return nil, &models.AccountLockedError{Remaining: remaining}
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Unknown accounts consume a lockout slot too, so account
			// existence cannot be guessed indefinitely.
			s.recordFailure(ctx, email, nil, "invalid_credentials", reqCtx)
			s.timing.WaitFrom(start, false)
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.recordFailure(ctx, email, &user.ID, "invalid_credentials", reqCtx)
		s.timing.WaitFrom(start, false)
		return nil, models.ErrUnauthorized
	}

	if user.MFAEnabled {
		if mfaCode == "" {
			return nil, models.ErrMFARequired
		}
		if !s.verifyMFA(ctx, user, mfaCode) {
			s.recordFailure(ctx, email, &user.ID, "invalid_mfa_code", reqCtx)
			s.audit(ctx, models.AuditEventMFAFailed, &user.ID, false, "invalid_mfa_code", reqCtx)
			s.timing.WaitFrom(start, false)
			return nil, models.ErrInvalidMFACode
		}
		s.audit(ctx, models.AuditEventMFAVerify, &user.ID, true, "", reqCtx)
	}

	s.lockout.RecordSuccess(email)

	pair, err := s.tm.CreateTokens(user.ID, user.Email, user.Role)
	if err != nil {
		s.logger.Error("failed to create tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.audit(ctx, models.AuditEventLogin, &user.ID, true, "", reqCtx)

	return &AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         userModelToResponse(user),
	}, nil
}

// verifyMFA accepts a current TOTP code (one step of skew) or an unused
// backup code. Backup code consumption is atomic in the store, so replays
// lose the race.
func (s *AuthService) verifyMFA(ctx context.Context, user *models.User, code string) bool {
	if user.MFASecret != nil && s.mfa.VerifyCode(*user.MFASecret, code, 1) {
		return true
	}

	// Backup codes are 8 hex digits; anything else cannot be one.
	if len(code) != 8 {
		return false
	}
	if err := s.repo.ConsumeBackupCode(ctx, user.ID, strings.ToLower(code)); err != nil {
		return false
	}
	s.logger.Info("backup code consumed", slog.String("user_id", user.ID))
	return true
}

// RefreshToken mints a fresh pair from a valid refresh token. The user is
// re-fetched so role changes and deletions take effect at rotation time.
func (s *AuthService) RefreshToken(ctx context.Context, refreshTokenString string, reqCtx LoginRequestContext) (*AuthResponse, error) {
	if refreshTokenString = strings.TrimSpace(refreshTokenString); refreshTokenString == "" {
		return nil, models.ErrUnauthorized
	}

	claims, err := s.tm.VerifyRefresh(refreshTokenString)
	if err != nil {
		s.logger.Info("refresh token validation failed", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found for token refresh", slog.String("user_id", claims.UserID))
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for token refresh",
			slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	pair, err := s.tm.CreateTokens(user.ID, user.Email, user.Role)
	if err != nil {
		s.logger.Error("failed to create tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit(ctx, models.AuditEventTokenRefresh, &user.ID, true, "", reqCtx)

	return &AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         userModelToResponse(user),
	}, nil
}

// Register creates a new account with a hashed password. Password policy
// violations surface as models.ErrBadRequest.
func (s *AuthService) Register(ctx context.Context, email, password, name string, reqCtx LoginRequestContext) (*UserResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, models.ErrBadRequest
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, models.ErrBadRequest
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.repo.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         models.RoleUser,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	return userModelToResponse(user), nil
}

// CurrentUser returns the fresh profile for an authenticated session.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get current user",
			slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return userModelToResponse(user), nil
}

// Logout records the event; session teardown itself is cookie clearing in
// the handler since tokens are stateless.
func (s *AuthService) Logout(ctx context.Context, userID string, reqCtx LoginRequestContext) {
	s.audit(ctx, models.AuditEventLogout, &userID, true, "", reqCtx)
}

// recordFailure counts a failed attempt against the lockout and audits it.
// Crossing the threshold locks the identity and emits a dedicated event.
func (s *AuthService) recordFailure(ctx context.Context, email string, userID *string, reason string, reqCtx LoginRequestContext) {
	s.audit(ctx, models.AuditEventLoginFailed, userID, false, reason, reqCtx)

	tripped, duration := s.lockout.RecordFailure(email)
	if !tripped {
		return
	}

	s.logger.Warn("account locked after repeated failures",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.Duration("duration", duration))
	s.audit(ctx, models.AuditEventLockout, userID, false, "threshold_exceeded", reqCtx)
	if s.alerts != nil {
		s.alerts.ReportLockout(ctx, reqCtx.IPAddress)
	}
}

// audit dual-writes: structured log stream plus the audit_logs table. A
// repository failure downgrades to a log line; audit persistence never
// fails the request itself.
func (s *AuthService) audit(ctx context.Context, eventType string, userID *string, success bool, reason string, reqCtx LoginRequestContext) {
	event := pkglogger.AuditEvent{
		EventType:     eventType,
		Success:       success,
		FailureReason: reason,
		IPAddress:     reqCtx.IPAddress,
		UserAgent:     reqCtx.UserAgent,
	}
	if userID != nil {
		event.UserID = *userID
	}
	s.auditLogger.LogAuthAttempt(event)

	if s.auditRepo == nil {
		return
	}
	var failureReason *string
	if reason != "" {
		failureReason = &reason
	}
	if _, err := s.auditRepo.Create(ctx, &models.AuditLog{
		EventType:     eventType,
		ActorID:       userID,
		Success:       success,
		FailureReason: failureReason,
		IPAddress:     reqCtx.IPAddress,
		UserAgent:     reqCtx.UserAgent,
	}); err != nil {
		s.logger.Error("failed to persist audit event",
			slog.String("event_type", eventType), slog.Any("error", err))
	}
}

func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		Role:       string(user.Role),
		MFAEnabled: user.MFAEnabled,
		CreatedAt:  user.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  user.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
