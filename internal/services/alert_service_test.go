package services

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/cyberguard/aegis/internal/models"
	"github.com/cyberguard/aegis/internal/reputation"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAlertStore adds the admin read path on top of the in-memory store.
type fakeAlertStore struct {
	*reputation.MemStore
	listLimit int
}

func (s *fakeAlertStore) ListRecent(ctx context.Context, limit int, unresolvedOnly bool) ([]*models.SecurityAlert, error) {
	s.listLimit = limit

	all := s.Alerts()
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	out := make([]*models.SecurityAlert, 0, limit)
	for i := range all {
		if len(out) == limit {
			break
		}
		if unresolvedOnly && all[i].IsResolved {
			continue
		}
		out = append(out, &all[i])
	}
	return out, nil
}

// captureEmail records dispatched alerts on a channel so tests can wait for
// the detached send goroutine.
type captureEmail struct {
	sent chan *models.SecurityAlert
	err  error
}

func newCaptureEmail() *captureEmail {
	return &captureEmail{sent: make(chan *models.SecurityAlert, 8)}
}

func (c *captureEmail) SendAlertEmail(ctx context.Context, alert *models.SecurityAlert) error {
	c.sent <- alert
	return c.err
}

func (c *captureEmail) waitForSend(t *testing.T) *models.SecurityAlert {
	t.Helper()
	select {
	case alert := <-c.sent:
		return alert
	case <-time.After(2 * time.Second):
		t.Fatal("expected an alert notification, none dispatched")
		return nil
	}
}

func (c *captureEmail) assertNoSend(t *testing.T) {
	t.Helper()
	select {
	case alert := <-c.sent:
		t.Fatalf("unexpected notification for %s alert", alert.AlertType)
	case <-time.After(50 * time.Millisecond):
	}
}

func newAlert(alertType string, severity models.Severity) *models.SecurityAlert {
	return &models.SecurityAlert{
		ID:          uuid.New(),
		AlertType:   alertType,
		IPAddress:   "203.0.113.9",
		Severity:    severity,
		Description: "test alert",
		CreatedAt:   time.Now(),
	}
}

func newAlertFixture(minSeverity models.Severity) (*AlertService, *fakeAlertStore, *captureEmail) {
	store := &fakeAlertStore{MemStore: reputation.NewMemStore()}
	email := newCaptureEmail()
	service := NewAlertService(store, email, minSeverity, time.Second, testLogger())
	return service, store, email
}

func TestAlertService_Append_NotifiesAtThreshold(t *testing.T) {
	service, store, email := newAlertFixture(models.SeverityHigh)

	alert := newAlert(models.AlertTypeDDoS, models.SeverityCritical)
	require.NoError(t, service.Append(context.Background(), alert))

	sent := email.waitForSend(t)
	assert.Equal(t, models.AlertTypeDDoS, sent.AlertType)
	assert.Len(t, store.Alerts(), 1)
}

func TestAlertService_Append_BelowThresholdPersistsOnly(t *testing.T) {
	service, store, email := newAlertFixture(models.SeverityCritical)

	alert := newAlert(models.AlertTypeRateLimit, models.SeverityHigh)
	require.NoError(t, service.Append(context.Background(), alert))

	email.assertNoSend(t)
	assert.Len(t, store.Alerts(), 1)
}

func TestAlertService_Append_SendFailureDoesNotFailAppend(t *testing.T) {
	service, store, email := newAlertFixture(models.SeverityLow)
	email.err = errors.New("ses unavailable")

	require.NoError(t, service.Append(context.Background(), newAlert(models.AlertTypeDDoS, models.SeverityCritical)))
	email.waitForSend(t)
	assert.Len(t, store.Alerts(), 1)
}

func TestAlertService_Append_NilEmailSkipsDispatch(t *testing.T) {
	store := &fakeAlertStore{MemStore: reputation.NewMemStore()}
	service := NewAlertService(store, nil, models.SeverityLow, time.Second, testLogger())

	require.NoError(t, service.Append(context.Background(), newAlert(models.AlertTypeDDoS, models.SeverityCritical)))
	assert.Len(t, store.Alerts(), 1)
}

func TestAlertService_ListRecent_ClampsLimit(t *testing.T) {
	service, store, _ := newAlertFixture(models.SeverityCritical)

	_, err := service.ListRecent(context.Background(), 0, false)
	require.NoError(t, err)
	assert.Equal(t, 100, store.listLimit)

	_, err = service.ListRecent(context.Background(), 1000, false)
	require.NoError(t, err)
	assert.Equal(t, 100, store.listLimit)

	_, err = service.ListRecent(context.Background(), 25, false)
	require.NoError(t, err)
	assert.Equal(t, 25, store.listLimit)
}

func TestAlertService_ReportCSRFViolation(t *testing.T) {
	service, store, email := newAlertFixture(models.SeverityCritical)

	service.ReportCSRFViolation(context.Background(), "198.51.100.4", "/api/v1/users")

	alerts := store.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertTypeCSRFViolation, alerts[0].AlertType)
	assert.Equal(t, models.SeverityMedium, alerts[0].Severity)
	assert.Equal(t, "198.51.100.4", alerts[0].IPAddress)
	assert.Contains(t, alerts[0].Description, "/api/v1/users")
	email.assertNoSend(t)
}

func TestAlertService_ReportSessionViolation(t *testing.T) {
	service, store, email := newAlertFixture(models.SeverityCritical)

	service.ReportSessionViolation(context.Background(), "198.51.100.4", "/api/v1/auth/me")

	alerts := store.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertTypeSessionInvalid, alerts[0].AlertType)
	assert.Equal(t, models.SeverityLow, alerts[0].Severity)
	assert.Contains(t, alerts[0].Description, "/api/v1/auth/me")
	email.assertNoSend(t)
}

func TestAlertService_ReportLockout(t *testing.T) {
	service, store, email := newAlertFixture(models.SeverityHigh)

	service.ReportLockout(context.Background(), "198.51.100.4")

	alerts := store.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertTypeLoginLockout, alerts[0].AlertType)
	assert.Equal(t, models.SeverityHigh, alerts[0].Severity)

	sent := email.waitForSend(t)
	assert.Equal(t, models.AlertTypeLoginLockout, sent.AlertType)
}

func TestAlertService_Resolve_Delegates(t *testing.T) {
	service, store, _ := newAlertFixture(models.SeverityCritical)

	alert := newAlert(models.AlertTypeRateLimit, models.SeverityMedium)
	require.NoError(t, service.Append(context.Background(), alert))

	require.NoError(t, service.Resolve(context.Background(), alert.ID))
	assert.True(t, store.Alerts()[0].IsResolved)

	assert.ErrorIs(t, service.Resolve(context.Background(), uuid.New()), models.ErrNotFound)
}
