package repositories

import (
	"context"
	"time"

	"github.com/cyberguard/aegis/internal/database"
	"github.com/cyberguard/aegis/internal/models"
	"github.com/google/uuid"
)

// SecurityAlertRepository handles database operations for security alerts.
// It is the persistent implementation of the reputation engine's AlertStore.
type SecurityAlertRepository struct {
	db *database.DB
}

// NewSecurityAlertRepository creates a new SecurityAlertRepository
func NewSecurityAlertRepository(db *database.DB) *SecurityAlertRepository {
	return &SecurityAlertRepository{db: db}
}

const alertColumns = `id, alert_type, ip_address, severity, description, request_count, is_resolved, created_at`

func scanAlert(scanner rowScanner) (*models.SecurityAlert, error) {
	var alert models.SecurityAlert
	err := scanner.Scan(
		&alert.ID,
		&alert.AlertType,
		&alert.IPAddress,
		&alert.Severity,
		&alert.Description,
		&alert.RequestCount,
		&alert.IsResolved,
		&alert.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &alert, nil
}

// Append inserts an alert. Alerts are append-only; nothing updates them
// except the resolved flag.
func (r *SecurityAlertRepository) Append(ctx context.Context, alert *models.SecurityAlert) error {
	query := `
		INSERT INTO security_alerts (id, alert_type, ip_address, severity, description, request_count, is_resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		alert.ID,
		alert.AlertType,
		alert.IPAddress,
		alert.Severity,
		alert.Description,
		alert.RequestCount,
		alert.IsResolved,
		alert.CreatedAt,
	)
	return database.MapPostgresError(err)
}

// CountSince returns how many alerts exist for an IP created at or after
// the given time.
func (r *SecurityAlertRepository) CountSince(ctx context.Context, ip string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM security_alerts
		WHERE ip_address = $1 AND created_at >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, ip, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// CountTypeSince is CountSince restricted to one alert type.
func (r *SecurityAlertRepository) CountTypeSince(ctx context.Context, ip, alertType string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM security_alerts
		WHERE ip_address = $1 AND alert_type = $2 AND created_at >= $3
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, ip, alertType, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// Resolve flips the resolved flag on an alert.
func (r *SecurityAlertRepository) Resolve(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE security_alerts SET is_resolved = TRUE WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListRecent returns the newest alerts, optionally filtered to unresolved
// only.
func (r *SecurityAlertRepository) ListRecent(ctx context.Context, limit int, unresolvedOnly bool) ([]*models.SecurityAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM security_alerts`
	if unresolvedOnly {
		query += ` WHERE is_resolved = FALSE`
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	alerts := make([]*models.SecurityAlert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}
