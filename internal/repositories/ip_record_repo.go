package repositories

import (
	"context"
	"time"

	"github.com/cyberguard/aegis/internal/database"
	"github.com/cyberguard/aegis/internal/models"
)

// IPRecordRepository handles database operations for per-IP counter records.
// It is the persistent implementation of the reputation engine's RecordStore.
type IPRecordRepository struct {
	db *database.DB
}

// NewIPRecordRepository creates a new IPRecordRepository
func NewIPRecordRepository(db *database.DB) *IPRecordRepository {
	return &IPRecordRepository{db: db}
}

const ipRecordColumns = `ip_address, request_count, window_start, is_blocked, block_reason, blocked_until, updated_at`

func scanIPRecord(scanner rowScanner) (*models.IPRecord, error) {
	var record models.IPRecord
	err := scanner.Scan(
		&record.IPAddress,
		&record.RequestCount,
		&record.WindowStart,
		&record.IsBlocked,
		&record.BlockReason,
		&record.BlockedUntil,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &record, nil
}

// Get returns the record for an IP, or models.ErrNotFound.
func (r *IPRecordRepository) Get(ctx context.Context, ip string) (*models.IPRecord, error) {
	query := `SELECT ` + ipRecordColumns + ` FROM ip_records WHERE ip_address = $1`

	return scanIPRecord(r.db.Pool.QueryRow(ctx, query, ip))
}

// IncrementWindow applies the fixed-window counter update as a single
// atomic upsert: insert at count 1, or reset to 1 when the window has
// lapsed, otherwise increment. Two concurrent requests can never both
// observe a stale count because the row is locked for the duration of
// the statement.
func (r *IPRecordRepository) IncrementWindow(ctx context.Context, ip string, window time.Duration) (*models.IPRecord, error) {
	query := `
		INSERT INTO ip_records (ip_address, request_count, window_start, updated_at)
		VALUES ($1, 1, NOW(), NOW())
		ON CONFLICT (ip_address) DO UPDATE SET
			request_count = CASE
				WHEN NOW() - ip_records.window_start > make_interval(secs => $2)
				THEN 1
				ELSE ip_records.request_count + 1
			END,
			window_start = CASE
				WHEN NOW() - ip_records.window_start > make_interval(secs => $2)
				THEN NOW()
				ELSE ip_records.window_start
			END,
			updated_at = NOW()
		RETURNING ` + ipRecordColumns

	return scanIPRecord(r.db.Pool.QueryRow(ctx, query, ip, window.Seconds()))
}

// SetBlock marks an IP blocked until the given time, creating the record
// if needed. Blocking an already-blocked IP refreshes the reason and
// deadline.
func (r *IPRecordRepository) SetBlock(ctx context.Context, ip, reason string, until time.Time) error {
	query := `
		INSERT INTO ip_records (ip_address, request_count, window_start, is_blocked, block_reason, blocked_until, updated_at)
		VALUES ($1, 0, NOW(), TRUE, $2, $3, NOW())
		ON CONFLICT (ip_address) DO UPDATE SET
			is_blocked = TRUE,
			block_reason = $2,
			blocked_until = $3,
			updated_at = NOW()
	`

	_, err := r.db.Pool.Exec(ctx, query, ip, reason, until)
	return database.MapPostgresError(err)
}

// ClearBlock lifts a block and resets the counter so the next evaluation
// starts from a clean window. Unblocking an unknown or unblocked IP is a
// no-op.
func (r *IPRecordRepository) ClearBlock(ctx context.Context, ip string) error {
	query := `
		UPDATE ip_records SET
			is_blocked = FALSE,
			block_reason = NULL,
			blocked_until = NULL,
			request_count = 0,
			window_start = NOW(),
			updated_at = NOW()
		WHERE ip_address = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, ip)
	return database.MapPostgresError(err)
}

// ListBlocked returns all currently blocked records.
func (r *IPRecordRepository) ListBlocked(ctx context.Context) ([]*models.IPRecord, error) {
	query := `
		SELECT ` + ipRecordColumns + ` FROM ip_records
		WHERE is_blocked = TRUE
		ORDER BY updated_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	records := make([]*models.IPRecord, 0)
	for rows.Next() {
		record, err := scanIPRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteStale removes unblocked records whose window lapsed before the
// cutoff. Called from the background cleanup task.
func (r *IPRecordRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM ip_records WHERE is_blocked = FALSE AND updated_at < $1`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
