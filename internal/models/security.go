package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies the threat level of an analyzed request stream.
// Severity only escalates within a single evaluation; the engine never
// downgrades a level it has already reached.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// rank orders severities for monotonic escalation checks.
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// AtLeast reports whether s is the same or a higher level than other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// ParseSeverity maps a config string to a Severity, defaulting unknown
// values to critical so a typo never floods the notification channel.
func ParseSeverity(value string) Severity {
	s := Severity(value)
	if _, ok := severityRank[s]; !ok {
		return SeverityCritical
	}
	return s
}

// Alert types recorded by the reputation engine and the auth pipeline
const (
	AlertTypeRateLimit      = "rate_limit"
	AlertTypeDDoS           = "ddos_attack"
	AlertTypeBlockedAccess  = "blocked_access"
	AlertTypeCSRFViolation  = "csrf_violation"
	AlertTypeSessionInvalid = "session_invalid"
	AlertTypeLoginLockout   = "login_lockout"
	AlertTypeManualBlock    = "manual_block"
	AlertTypeCountryBlock   = "country_block"
)

// IPRecord tracks request volume and block state for a single observed IP.
// One record exists per IP; the persistent store is the system of record.
// The counter fields reset whenever the elapsed time since WindowStart
// exceeds the configured rate window.
type IPRecord struct {
	IPAddress    string     `db:"ip_address"`
	RequestCount int        `db:"request_count"`
	WindowStart  time.Time  `db:"window_start"`
	IsBlocked    bool       `db:"is_blocked"`
	BlockReason  *string    `db:"block_reason"`
	BlockedUntil *time.Time `db:"blocked_until"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// BlockExpired reports whether a block exists but its expiry has passed.
func (r *IPRecord) BlockExpired(now time.Time) bool {
	return r.IsBlocked && r.BlockedUntil != nil && !now.Before(*r.BlockedUntil)
}

// BlockActive reports whether the IP is currently blocked.
func (r *IPRecord) BlockActive(now time.Time) bool {
	return r.IsBlocked && r.BlockedUntil != nil && now.Before(*r.BlockedUntil)
}

// SecurityAlert is an append-only anomaly record. Alerts are never deleted;
// an administrative action may flip IsResolved.
type SecurityAlert struct {
	ID           uuid.UUID `db:"id"`
	AlertType    string    `db:"alert_type"`
	IPAddress    string    `db:"ip_address"`
	Severity     Severity  `db:"severity"`
	Description  string    `db:"description"`
	RequestCount int       `db:"request_count"`
	CreatedAt    time.Time `db:"created_at"`
	IsResolved   bool      `db:"is_resolved"`
}

// WhitelistEntry exempts an IP from reputation analysis. Entries may carry
// an expiry; expired entries are treated as absent.
type WhitelistEntry struct {
	IPAddress string
	Reason    string
	ExpiresAt *time.Time
}

// Expired reports whether the entry has an expiry in the past.
func (e *WhitelistEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// CountryBlockRule denies traffic classified to a country code. Rules do
// not expire; they persist until explicitly removed.
type CountryBlockRule struct {
	CountryCode string
	Reason      string
	CreatedAt   time.Time
}
