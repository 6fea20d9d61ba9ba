package reputation

import (
	"context"
	"sync"
	"time"

	"github.com/cyberguard/aegis/internal/models"
	"github.com/google/uuid"
)

// MemStore is an in-memory implementation of RecordStore and AlertStore.
// It backs tests and store-less deployments; the Postgres repositories are
// the system of record in production. All operations hold a single lock so
// IncrementWindow is atomic per the store contract.
type MemStore struct {
	mu      sync.Mutex
	records map[string]*models.IPRecord
	alerts  []*models.SecurityAlert
	now     func() time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		records: make(map[string]*models.IPRecord),
		now:     time.Now,
	}
}

var (
	_ RecordStore = (*MemStore)(nil)
	_ AlertStore  = (*MemStore)(nil)
)

// Get returns the record for ip or models.ErrNotFound.
func (s *MemStore) Get(ctx context.Context, ip string) (*models.IPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[ip]
	if !ok {
		return nil, models.ErrNotFound
	}
	snapshot := *record
	return &snapshot, nil
}

// IncrementWindow applies the fixed-window update atomically.
func (s *MemStore) IncrementWindow(ctx context.Context, ip string, window time.Duration) (*models.IPRecord, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[ip]
	if !ok || now.Sub(record.WindowStart) > window {
		blocked := false
		var reason *string
		var until *time.Time
		if ok {
			blocked = record.IsBlocked
			reason = record.BlockReason
			until = record.BlockedUntil
		}
		record = &models.IPRecord{
			IPAddress:    ip,
			RequestCount: 1,
			WindowStart:  now,
			IsBlocked:    blocked,
			BlockReason:  reason,
			BlockedUntil: until,
			UpdatedAt:    now,
		}
		s.records[ip] = record
	} else {
		record.RequestCount++
		record.UpdatedAt = now
	}

	snapshot := *record
	return &snapshot, nil
}

// SetBlock marks ip blocked until the given time, creating the record if
// needed. Idempotent.
func (s *MemStore) SetBlock(ctx context.Context, ip, reason string, until time.Time) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[ip]
	if !ok {
		record = &models.IPRecord{IPAddress: ip, WindowStart: now}
		s.records[ip] = record
	}
	record.IsBlocked = true
	record.BlockReason = &reason
	record.BlockedUntil = &until
	record.UpdatedAt = now
	return nil
}

// ClearBlock lifts a block and resets the counter so re-evaluation starts
// clean. Idempotent.
func (s *MemStore) ClearBlock(ctx context.Context, ip string) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[ip]
	if !ok {
		return nil
	}
	record.IsBlocked = false
	record.BlockReason = nil
	record.BlockedUntil = nil
	record.RequestCount = 0
	record.WindowStart = now
	record.UpdatedAt = now
	return nil
}

// Append adds an alert. Alerts are never removed.
func (s *MemStore) Append(ctx context.Context, alert *models.SecurityAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := *alert
	s.alerts = append(s.alerts, &snapshot)
	return nil
}

// CountSince counts alerts for ip created at or after since.
func (s *MemStore) CountSince(ctx context.Context, ip string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, alert := range s.alerts {
		if alert.IPAddress == ip && !alert.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// CountTypeSince counts alerts of one type for ip created at or after since.
func (s *MemStore) CountTypeSince(ctx context.Context, ip, alertType string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, alert := range s.alerts {
		if alert.IPAddress == ip && alert.AlertType == alertType && !alert.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// Resolve flips the resolved flag on an alert.
func (s *MemStore) Resolve(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, alert := range s.alerts {
		if alert.ID == id {
			alert.IsResolved = true
			return nil
		}
	}
	return models.ErrNotFound
}

// Alerts returns a snapshot of all alerts, newest last.
func (s *MemStore) Alerts() []models.SecurityAlert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.SecurityAlert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		out = append(out, *alert)
	}
	return out
}

// SetNowFunc overrides the clock. Test hook.
func (s *MemStore) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}
