// Package reputation classifies inbound traffic per source IP and drives
// blocking with TTL expiry and escalation.
package reputation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cyberguard/aegis/internal/models"
	"github.com/google/uuid"
)

// RecordStore is the persistent home of IPRecord state. Implementations
// must make IncrementWindow a single atomic read-modify-write so two
// concurrent requests cannot both observe a stale count.
type RecordStore interface {
	Get(ctx context.Context, ip string) (*models.IPRecord, error)
	// IncrementWindow applies the fixed-window update for ip: reset to 1
	// when the window has lapsed, otherwise increment. Returns the record
	// after the update.
	IncrementWindow(ctx context.Context, ip string, window time.Duration) (*models.IPRecord, error)
	// SetBlock marks ip blocked until the given time. Blocking an
	// already-blocked IP is a no-op refresh, never an error.
	SetBlock(ctx context.Context, ip, reason string, until time.Time) error
	// ClearBlock lifts a block. Unblocking an unblocked IP is a no-op.
	ClearBlock(ctx context.Context, ip string) error
}

// AlertStore is the append-only home of SecurityAlert records.
type AlertStore interface {
	Append(ctx context.Context, alert *models.SecurityAlert) error
	// CountSince returns how many alerts exist for ip created at or after
	// since.
	CountSince(ctx context.Context, ip string, since time.Time) (int, error)
	// CountTypeSince is CountSince restricted to one alert type.
	CountTypeSince(ctx context.Context, ip, alertType string, since time.Time) (int, error)
	Resolve(ctx context.Context, id uuid.UUID) error
}

// GeoResolver classifies an IP to an ISO country code. Implementations
// must bound their own lookups; an empty code means unknown.
type GeoResolver interface {
	Country(ctx context.Context, ip string) (string, error)
}

// Config holds the engine thresholds. The defaults mirror long-standing
// production values; they are configuration, not derived constants.
type Config struct {
	RateWindow         time.Duration // fixed counting window
	RequestThreshold   int           // max requests per window
	SpikeWindow        time.Duration // trailing window for alert counting
	AnomalyThreshold   int           // alerts within SpikeWindow before escalation
	RateAlertThreshold int           // rate-limit alerts within SpikeWindow before blocking
	BlockDuration      time.Duration // how long a triggered block lasts
	GeoBlockingEnabled bool
	StoreTimeout       time.Duration // bound on each store/geo call
}

// DefaultConfig returns the standard thresholds: 100 requests per 60s
// window, 10 alerts per 5 minute spike window, 5 rate-limit alerts,
// 15 minute blocks.
func DefaultConfig() Config {
	return Config{
		RateWindow:         time.Minute,
		RequestThreshold:   100,
		SpikeWindow:        5 * time.Minute,
		AnomalyThreshold:   10,
		RateAlertThreshold: 5,
		BlockDuration:      15 * time.Minute,
		StoreTimeout:       2 * time.Second,
	}
}

// Assessment is the engine's verdict for one request.
type Assessment struct {
	IsAttack          bool            `json:"is_attack"`
	Severity          models.Severity `json:"severity"`
	Reason            string          `json:"reason"`
	ShouldBlock       bool            `json:"should_block"`
	RequestsPerSecond float64         `json:"requests_per_second,omitempty"`
}

// Engine consumes the per-IP counter records and classifies traffic
// severity. Severity escalates monotonically within one evaluation; the
// first matching rule wins and later rules cannot downgrade it.
type Engine struct {
	records RecordStore
	alerts  AlertStore
	rules   *RuleStore
	geo     GeoResolver
	config  Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine creates a reputation engine. geo may be nil when geo blocking
// is disabled.
func NewEngine(records RecordStore, alerts AlertStore, rules *RuleStore, geo GeoResolver, config Config, logger *slog.Logger) *Engine {
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = 2 * time.Second
	}
	return &Engine{
		records: records,
		alerts:  alerts,
		rules:   rules,
		geo:     geo,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

var allowAssessment = Assessment{
	IsAttack:    false,
	Severity:    models.SeverityLow,
	Reason:      "normal traffic",
	ShouldBlock: false,
}

// Analyze evaluates one request from ip, updates the counter record, and
// returns the verdict. Every attack verdict appends a SecurityAlert; every
// block verdict transitions the IP into the blocked state. Storage errors
// are logged and fail open: availability wins when the backing store is
// down.
func (e *Engine) Analyze(ctx context.Context, ip string) Assessment {
	now := e.now()

	// Whitelisted sources bypass analysis entirely.
	if e.rules != nil && e.rules.IsWhitelisted(ip, now) {
		return allowAssessment
	}

	// Country blocking runs ahead of the counter so a blocked region never
	// consumes counter state. Lookup failures resolve to unknown/allow.
	if e.config.GeoBlockingEnabled && e.geo != nil && e.rules != nil {
		if verdict, blocked := e.checkCountry(ctx, ip, now); blocked {
			return verdict
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()

	// Step 1: an active block short-circuits; an expired one is lifted.
	record, err := e.records.Get(ctx, ip)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return e.failOpen(ip, "fetch ip record", err)
	}
	if record != nil {
		if record.BlockActive(now) {
			verdict := Assessment{
				IsAttack:    true,
				Severity:    models.SeverityCritical,
				Reason:      "IP is currently blocked",
				ShouldBlock: true,
			}
			// Access attempts during an active block are themselves part of
			// the alert stream; recording them keeps repeat attempts from a
			// blocked source visible to triage.
			e.appendAlert(ctx, ip, models.AlertTypeBlockedAccess, verdict, record.RequestCount, now)
			return verdict
		}
		if record.BlockExpired(now) {
			if err := e.records.ClearBlock(ctx, ip); err != nil {
				return e.failOpen(ip, "clear expired block", err)
			}
			e.logger.Info("ip block lifted",
				slog.String("ip_address", ip),
			)
		}
	}

	// Step 2: fixed-window counter update, atomic in the store.
	record, err = e.records.IncrementWindow(ctx, ip, e.config.RateWindow)
	if err != nil {
		return e.failOpen(ip, "increment window", err)
	}

	windowSeconds := e.config.RateWindow.Seconds()

	// Step 3: hard request-rate threshold.
	if record.RequestCount > e.config.RequestThreshold {
		verdict := Assessment{
			IsAttack: true,
			Severity: models.SeverityHigh,
			Reason: fmt.Sprintf("request rate exceeded: %d requests in window (threshold %d)",
				record.RequestCount, e.config.RequestThreshold),
			ShouldBlock:       true,
			RequestsPerSecond: float64(record.RequestCount) / windowSeconds,
		}
		e.recordVerdict(ctx, ip, models.AlertTypeRateLimit, verdict, record.RequestCount, now)
		return verdict
	}

	// Step 4: sustained anomaly signal across the trailing spike window.
	spikeStart := now.Add(-e.config.SpikeWindow)
	alertCount, err := e.alerts.CountSince(ctx, ip, spikeStart)
	if err != nil {
		return e.failOpen(ip, "count trailing alerts", err)
	}
	if alertCount > e.config.AnomalyThreshold {
		verdict := Assessment{
			IsAttack: true,
			Severity: models.SeverityCritical,
			Reason: fmt.Sprintf("anomaly spike: %d alerts in trailing window (threshold %d)",
				alertCount, e.config.AnomalyThreshold),
			ShouldBlock:       true,
			RequestsPerSecond: float64(alertCount) / e.config.SpikeWindow.Seconds(),
		}
		e.recordVerdict(ctx, ip, models.AlertTypeDDoS, verdict, record.RequestCount, now)
		return verdict
	}

	// Step 5: repeat rate-limit offenders.
	rateAlerts, err := e.alerts.CountTypeSince(ctx, ip, models.AlertTypeRateLimit, spikeStart)
	if err != nil {
		return e.failOpen(ip, "count rate-limit alerts", err)
	}
	if rateAlerts >= e.config.RateAlertThreshold {
		verdict := Assessment{
			IsAttack: true,
			Severity: models.SeverityMedium,
			Reason: fmt.Sprintf("repeated rate-limit violations: %d in trailing window (threshold %d)",
				rateAlerts, e.config.RateAlertThreshold),
			ShouldBlock: true,
		}
		e.recordVerdict(ctx, ip, models.AlertTypeDDoS, verdict, record.RequestCount, now)
		return verdict
	}

	// Step 6: nothing matched.
	return allowAssessment
}

// checkCountry applies the country block rules. Resolver errors or empty
// codes are unknown and allow the request to continue.
func (e *Engine) checkCountry(ctx context.Context, ip string, now time.Time) (Assessment, bool) {
	geoCtx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()

	code, err := e.geo.Country(geoCtx, ip)
	if err != nil {
		e.logger.Warn("geo lookup failed, treating as unknown",
			slog.String("ip_address", ip),
			slog.Any("error", err),
		)
		return Assessment{}, false
	}
	if code == "" || !e.rules.IsCountryBlocked(code) {
		return Assessment{}, false
	}

	verdict := Assessment{
		IsAttack:    true,
		Severity:    models.SeverityHigh,
		Reason:      fmt.Sprintf("traffic from blocked country %s", code),
		ShouldBlock: true,
	}
	e.recordVerdict(geoCtx, ip, models.AlertTypeCountryBlock, verdict, 0, now)
	return verdict, true
}

// appendAlert records an attack verdict in the alert stream. Failures are
// logged but never override the verdict already reached.
func (e *Engine) appendAlert(ctx context.Context, ip, alertType string, verdict Assessment, requestCount int, now time.Time) {
	alert := &models.SecurityAlert{
		ID:           uuid.New(),
		AlertType:    alertType,
		IPAddress:    ip,
		Severity:     verdict.Severity,
		Description:  verdict.Reason,
		RequestCount: requestCount,
		CreatedAt:    now,
	}
	if err := e.alerts.Append(ctx, alert); err != nil {
		e.logger.Error("failed to append security alert",
			slog.String("ip_address", ip),
			slog.String("alert_type", alertType),
			slog.Any("error", err),
		)
	}
}

// recordVerdict applies the full side effects of an attack verdict: the
// alert append plus, when blocking, the block state transition.
func (e *Engine) recordVerdict(ctx context.Context, ip, alertType string, verdict Assessment, requestCount int, now time.Time) {
	e.appendAlert(ctx, ip, alertType, verdict, requestCount, now)

	if !verdict.ShouldBlock {
		return
	}
	if err := e.records.SetBlock(ctx, ip, verdict.Reason, now.Add(e.config.BlockDuration)); err != nil {
		e.logger.Error("failed to persist ip block",
			slog.String("ip_address", ip),
			slog.Any("error", err),
		)
		return
	}
	e.logger.Warn("ip blocked",
		slog.String("ip_address", ip),
		slog.String("reason", verdict.Reason),
		slog.String("severity", string(verdict.Severity)),
		slog.Duration("duration", e.config.BlockDuration),
	)
}

// failOpen logs a storage failure and returns the permissive verdict.
func (e *Engine) failOpen(ip, op string, err error) Assessment {
	e.logger.Error("reputation analysis degraded, failing open",
		slog.String("ip_address", ip),
		slog.String("operation", op),
		slog.Any("error", err),
	)
	return allowAssessment
}

// Block sets the block fields directly, bypassing analysis. Administrative
// operation; idempotent on an already-blocked IP.
func (e *Engine) Block(ctx context.Context, ip, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()

	until := e.now().Add(e.config.BlockDuration)
	if err := e.records.SetBlock(ctx, ip, reason, until); err != nil {
		return fmt.Errorf("failed to block ip: %w", err)
	}

	alert := &models.SecurityAlert{
		ID:          uuid.New(),
		AlertType:   models.AlertTypeManualBlock,
		IPAddress:   ip,
		Severity:    models.SeverityHigh,
		Description: reason,
		CreatedAt:   e.now(),
	}
	if err := e.alerts.Append(ctx, alert); err != nil {
		e.logger.Error("failed to record manual block alert",
			slog.String("ip_address", ip),
			slog.Any("error", err),
		)
	}
	return nil
}

// Unblock clears the block fields directly. Idempotent on an unblocked IP.
func (e *Engine) Unblock(ctx context.Context, ip string) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()

	if err := e.records.ClearBlock(ctx, ip); err != nil {
		return fmt.Errorf("failed to unblock ip: %w", err)
	}
	return nil
}

// ResolveAlert flips an alert's resolved flag. Alerts are never deleted.
func (e *Engine) ResolveAlert(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()

	if err := e.alerts.Resolve(ctx, id); err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	return nil
}

// SetNowFunc overrides the clock. Test hook.
func (e *Engine) SetNowFunc(now func() time.Time) {
	e.now = now
}
