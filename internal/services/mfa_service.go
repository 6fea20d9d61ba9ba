package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cyberguard/aegis/internal/auth"
	"github.com/cyberguard/aegis/internal/models"
	pkgauth "github.com/cyberguard/aegis/pkg/auth"
)

// MFARepository is the slice of user persistence the MFA service needs.
type MFARepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	StageMFA(ctx context.Context, id, secret string, backupCodes []string) error
	ActivateMFA(ctx context.Context, id string) error
	DisableMFA(ctx context.Context, id string) error
}

// MFAService drives TOTP enrollment. Enrollment is two-phase: Enroll
// stages a secret and returns the provisioning package, ConfirmEnrollment
// activates it once the user proves possession by submitting a valid
// code. An account is never enforced against a secret the user has not
// demonstrated.
type MFAService struct {
	repo      MFARepository
	auditRepo AuditRepository
	mfa       *auth.MFAManager
	logger    *slog.Logger
}

// NewMFAService creates a new MFAService
func NewMFAService(repo MFARepository, auditRepo AuditRepository, mfa *auth.MFAManager, logger *slog.Logger) *MFAService {
	return &MFAService{
		repo:      repo,
		auditRepo: auditRepo,
		mfa:       mfa,
		logger:    logger,
	}
}

// Enroll generates and stages a fresh secret for the user. Re-enrolling
// before confirmation replaces the staged secret; re-enrolling an account
// that already has MFA active is rejected.
func (s *MFAService) Enroll(ctx context.Context, userID string) (*auth.Enrollment, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user for mfa enrollment",
			slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user.MFAEnabled {
		return nil, models.ErrConflict
	}

	enrollment, err := s.mfa.Enroll(user.Email)
	if err != nil {
		s.logger.Error("failed to generate mfa enrollment",
			slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.repo.StageMFA(ctx, userID, enrollment.Secret, enrollment.BackupCodes); err != nil {
		s.logger.Error("failed to stage mfa secret",
			slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("mfa enrollment staged", slog.String("user_id", userID))
	return enrollment, nil
}

// ConfirmEnrollment verifies a code against the staged secret and, on
// success, activates MFA for the account.
func (s *MFAService) ConfirmEnrollment(ctx context.Context, userID, code string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get user for mfa confirmation",
			slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if user.MFAEnabled {
		return models.ErrConflict
	}
	if user.MFASecret == nil {
		return models.ErrBadRequest
	}

	if !s.mfa.VerifyCode(*user.MFASecret, code, 1) {
		s.logger.Info("mfa confirmation code rejected", slog.String("user_id", userID))
		s.auditEvent(ctx, models.AuditEventMFAFailed, userID, false, "invalid_confirmation_code")
		return models.ErrInvalidMFACode
	}

	if err := s.repo.ActivateMFA(ctx, userID); err != nil {
		s.logger.Error("failed to activate mfa",
			slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("mfa enabled", slog.String("user_id", userID))
	s.auditEvent(ctx, models.AuditEventMFAEnroll, userID, true, "")
	return nil
}

// Disable turns MFA off after re-authenticating with the current password
// and a valid code. Both factors are required so a hijacked session alone
// cannot strip the account's protection.
func (s *MFAService) Disable(ctx context.Context, userID, password, code string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get user for mfa disable",
			slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !user.MFAEnabled || user.MFASecret == nil {
		return models.ErrBadRequest
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		return models.ErrUnauthorized
	}
	if !s.mfa.VerifyCode(*user.MFASecret, code, 1) {
		s.auditEvent(ctx, models.AuditEventMFAFailed, userID, false, "invalid_disable_code")
		return models.ErrInvalidMFACode
	}

	if err := s.repo.DisableMFA(ctx, userID); err != nil {
		s.logger.Error("failed to disable mfa",
			slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("mfa disabled", slog.String("user_id", userID))
	s.auditEvent(ctx, models.AuditEventMFADisable, userID, true, "")
	return nil
}

func (s *MFAService) auditEvent(ctx context.Context, eventType, userID string, success bool, reason string) {
	if s.auditRepo == nil {
		return
	}
	var failureReason *string
	if reason != "" {
		failureReason = &reason
	}
	if _, err := s.auditRepo.Create(ctx, &models.AuditLog{
		EventType:     eventType,
		ActorID:       &userID,
		Success:       success,
		FailureReason: failureReason,
	}); err != nil {
		s.logger.Error("failed to persist mfa audit event",
			slog.String("event_type", eventType), slog.Any("error", err))
	}
}
