package reputation

import (
	"sync"
	"time"

	"github.com/cyberguard/aegis/internal/models"
)

// RuleStore owns the whitelist and country block rules. It replaces the
// previous process-global maps with an injected instance so tests can
// construct isolated copies. Whitelist entries may expire; country blocks
// persist until explicitly removed.
type RuleStore struct {
	mu        sync.RWMutex
	whitelist map[string]models.WhitelistEntry
	countries map[string]models.CountryBlockRule
}

// NewRuleStore creates an empty rule store.
func NewRuleStore() *RuleStore {
	return &RuleStore{
		whitelist: make(map[string]models.WhitelistEntry),
		countries: make(map[string]models.CountryBlockRule),
	}
}

// Whitelist exempts ip from analysis. A nil expiresAt makes the entry
// permanent.
func (s *RuleStore) Whitelist(ip, reason string, expiresAt *time.Time) {
	s.mu.Lock()
	s.whitelist[ip] = models.WhitelistEntry{
		IPAddress: ip,
		Reason:    reason,
		ExpiresAt: expiresAt,
	}
	s.mu.Unlock()
}

// RemoveWhitelist drops an entry; removing an absent entry is a no-op.
func (s *RuleStore) RemoveWhitelist(ip string) {
	s.mu.Lock()
	delete(s.whitelist, ip)
	s.mu.Unlock()
}

// IsWhitelisted reports whether ip has a live whitelist entry. Expired
// entries are treated as absent (and dropped lazily).
func (s *RuleStore) IsWhitelisted(ip string, now time.Time) bool {
	s.mu.RLock()
	entry, ok := s.whitelist[ip]
	s.mu.RUnlock()

	if !ok {
		return false
	}
	if entry.Expired(now) {
		s.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// replaced the entry in between.
		if current, ok := s.whitelist[ip]; ok && current.Expired(now) {
			delete(s.whitelist, ip)
		}
		s.mu.Unlock()
		return false
	}
	return true
}

// WhitelistEntries returns a snapshot of live entries.
func (s *RuleStore) WhitelistEntries(now time.Time) []models.WhitelistEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]models.WhitelistEntry, 0, len(s.whitelist))
	for _, entry := range s.whitelist {
		if !entry.Expired(now) {
			entries = append(entries, entry)
		}
	}
	return entries
}

// BlockCountry denies traffic classified to the country code.
func (s *RuleStore) BlockCountry(code, reason string, now time.Time) {
	s.mu.Lock()
	s.countries[code] = models.CountryBlockRule{
		CountryCode: code,
		Reason:      reason,
		CreatedAt:   now,
	}
	s.mu.Unlock()
}

// UnblockCountry removes a country rule; removing an absent rule is a no-op.
func (s *RuleStore) UnblockCountry(code string) {
	s.mu.Lock()
	delete(s.countries, code)
	s.mu.Unlock()
}

// IsCountryBlocked reports whether the country code has a block rule.
func (s *RuleStore) IsCountryBlocked(code string) bool {
	s.mu.RLock()
	_, ok := s.countries[code]
	s.mu.RUnlock()
	return ok
}

// CountryRules returns a snapshot of the country block rules.
func (s *RuleStore) CountryRules() []models.CountryBlockRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]models.CountryBlockRule, 0, len(s.countries))
	for _, rule := range s.countries {
		rules = append(rules, rule)
	}
	return rules
}

// PurgeExpired drops expired whitelist entries. Called from the background
// cleanup task.
func (s *RuleStore) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for ip, entry := range s.whitelist {
		if entry.Expired(now) {
			delete(s.whitelist, ip)
			removed++
		}
	}
	return removed
}
