package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/cyberguard/aegis/internal/auth"
	"github.com/cyberguard/aegis/internal/reputation"
)

// StaleRecordStore removes IP counter records whose window has long lapsed.
// Blocked records are exempt regardless of age. Alerts are append-only and
// never swept.
type StaleRecordStore interface {
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditTrailStore prunes audit entries past the retention horizon.
type AuditTrailStore interface {
	Cleanup(ctx context.Context, olderThanDays int) (int64, error)
}

// Retention horizons for the periodic sweep.
const (
	staleRecordAge     = 24 * time.Hour
	auditRetentionDays = 90
	cleanupStepTimeout = 30 * time.Second
)

// CleanupManager periodically sweeps expired in-memory state (lockouts,
// whitelist entries) and prunes aged rows from the persistent stores.
type CleanupManager struct {
	lockout  *auth.Lockout
	rules    *reputation.RuleStore
	records  StaleRecordStore
	audit    AuditTrailStore
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager. Any nil store is skipped.
func NewCleanupManager(
	lockout *auth.Lockout,
	rules *reputation.RuleStore,
	records StaleRecordStore,
	audit AuditTrailStore,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupManager{
		lockout:  lockout,
		rules:    rules,
		records:  records,
		audit:    audit,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup performs one sweep across all maintained stores.
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	now := time.Now()

	if cm.lockout != nil {
		if removed := cm.lockout.Purge(); removed > 0 {
			cm.logger.Info("expired lockouts purged", slog.Int("removed", removed))
		}
	}

	if cm.rules != nil {
		if removed := cm.rules.PurgeExpired(now); removed > 0 {
			cm.logger.Info("expired whitelist entries purged", slog.Int("removed", removed))
		}
	}

	cleanupCtx, cancel := context.WithTimeout(ctx, cleanupStepTimeout)
	defer cancel()

	if cm.records != nil {
		deleted, err := cm.records.DeleteStale(cleanupCtx, now.Add(-staleRecordAge))
		if err != nil {
			cm.logger.Error("failed to delete stale ip records", slog.Any("error", err))
		} else if deleted > 0 {
			cm.logger.Info("stale ip records deleted", slog.Int64("rows_deleted", deleted))
		}
	}

	if cm.audit != nil {
		deleted, err := cm.audit.Cleanup(cleanupCtx, auditRetentionDays)
		if err != nil {
			cm.logger.Error("failed to prune audit logs", slog.Any("error", err))
		} else if deleted > 0 {
			cm.logger.Info("audit logs pruned", slog.Int64("rows_deleted", deleted))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
