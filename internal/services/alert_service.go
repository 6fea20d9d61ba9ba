package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/cyberguard/aegis/internal/models"
	"github.com/cyberguard/aegis/internal/reputation"
	"github.com/google/uuid"
)

// AlertLister extends the engine's alert store with the admin read path.
type AlertLister interface {
	reputation.AlertStore
	ListRecent(ctx context.Context, limit int, unresolvedOnly bool) ([]*models.SecurityAlert, error)
}

// AlertService decorates the alert store: every appended alert still lands
// in persistence, and anything at or above the notification threshold also
// goes out by email. It satisfies reputation.AlertStore so the engine can
// be wired straight through it.
type AlertService struct {
	store       AlertLister
	email       EmailService
	minSeverity models.Severity
	sendTimeout time.Duration
	logger      *slog.Logger
}

// NewAlertService creates a new AlertService
func NewAlertService(store AlertLister, email EmailService, minSeverity models.Severity, sendTimeout time.Duration, logger *slog.Logger) *AlertService {
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &AlertService{
		store:       store,
		email:       email,
		minSeverity: minSeverity,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

var _ reputation.AlertStore = (*AlertService)(nil)

// Append persists the alert and, for severities at or above the threshold,
// dispatches a notification. Delivery runs detached from the request path;
// a notification failure never fails detection.
func (s *AlertService) Append(ctx context.Context, alert *models.SecurityAlert) error {
	if err := s.store.Append(ctx, alert); err != nil {
		return err
	}

	if s.email == nil || !alert.Severity.AtLeast(s.minSeverity) {
		return nil
	}

	notification := *alert
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
		defer cancel()

		if err := s.email.SendAlertEmail(sendCtx, &notification); err != nil {
			s.logger.Error("failed to dispatch alert notification",
				slog.String("alert_type", notification.AlertType),
				slog.String("severity", string(notification.Severity)),
				slog.Any("error", err),
			)
		}
	}()
	return nil
}

// CountSince delegates to the underlying store.
func (s *AlertService) CountSince(ctx context.Context, ip string, since time.Time) (int, error) {
	return s.store.CountSince(ctx, ip, since)
}

// CountTypeSince delegates to the underlying store.
func (s *AlertService) CountTypeSince(ctx context.Context, ip, alertType string, since time.Time) (int, error) {
	return s.store.CountTypeSince(ctx, ip, alertType, since)
}

// Resolve delegates to the underlying store.
func (s *AlertService) Resolve(ctx context.Context, id uuid.UUID) error {
	return s.store.Resolve(ctx, id)
}

// ListRecent returns the newest alerts for the admin dashboard.
func (s *AlertService) ListRecent(ctx context.Context, limit int, unresolvedOnly bool) ([]*models.SecurityAlert, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListRecent(ctx, limit, unresolvedOnly)
}

// ReportCSRFViolation records a failed double-submit check as a medium
// severity alert. Implements the CSRF middleware's reporter hook.
func (s *AlertService) ReportCSRFViolation(ctx context.Context, ip, path string) {
	alert := &models.SecurityAlert{
		ID:          uuid.New(),
		AlertType:   models.AlertTypeCSRFViolation,
		IPAddress:   ip,
		Severity:    models.SeverityMedium,
		Description: "double-submit token mismatch on " + path,
		CreatedAt:   time.Now(),
	}
	if err := s.Append(ctx, alert); err != nil {
		s.logger.Error("failed to record csrf violation",
			slog.String("ip_address", ip),
			slog.Any("error", err),
		)
	}
}

// ReportSessionViolation records a token that was presented but failed
// verification. Low severity on its own; volume from one source escalates
// through the reputation engine's trailing alert count.
func (s *AlertService) ReportSessionViolation(ctx context.Context, ip, path string) {
	alert := &models.SecurityAlert{
		ID:          uuid.New(),
		AlertType:   models.AlertTypeSessionInvalid,
		IPAddress:   ip,
		Severity:    models.SeverityLow,
		Description: "invalid session token presented on " + path,
		CreatedAt:   time.Now(),
	}
	if err := s.Append(ctx, alert); err != nil {
		s.logger.Error("failed to record session violation",
			slog.String("ip_address", ip),
			slog.Any("error", err),
		)
	}
}

// ReportLockout records an account lockout as a high severity alert so
// credential-stuffing from one source shows up in the same stream as the
// traffic anomalies.
func (s *AlertService) ReportLockout(ctx context.Context, ip string) {
	alert := &models.SecurityAlert{
		ID:          uuid.New(),
		AlertType:   models.AlertTypeLoginLockout,
		IPAddress:   ip,
		Severity:    models.SeverityHigh,
		Description: "login lockout threshold exceeded",
		CreatedAt:   time.Now(),
	}
	if err := s.Append(ctx, alert); err != nil {
		s.logger.Error("failed to record lockout alert",
			slog.String("ip_address", ip),
			slog.Any("error", err),
		)
	}
}
