package auth

import (
	"sync"
	"time"

	"github.com/cyberguard/aegis/internal/ratelimit"
)

// LockoutConfig tunes the failed-login lockout.
type LockoutConfig struct {
	Threshold    int           // consecutive failures before lockout
	Window       time.Duration // counting window for failures; 0 falls back to LockDuration
	LockDuration time.Duration // how long an identity stays locked
}

// DefaultLockoutConfig returns the standard lockout policy: 5 failures
// within 15 minutes, 15 minute lock.
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		Threshold:    5,
		Window:       15 * time.Minute,
		LockDuration: 15 * time.Minute,
	}
}

// Lockout tracks failed-login counters per identity (email or IP). A locked
// identity is rejected before credentials are even examined; one success at
// any point before the threshold resets the counter to zero.
type Lockout struct {
	config  LockoutConfig
	counter *ratelimit.Counter

	mu     sync.Mutex
	locked map[string]time.Time // identity -> lockedUntil
	now    func() time.Time
}

// NewLockout creates a lockout tracker with the given policy.
func NewLockout(config LockoutConfig) *Lockout {
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.LockDuration <= 0 {
		config.LockDuration = 15 * time.Minute
	}
	if config.Window <= 0 {
		config.Window = config.LockDuration
	}
	return &Lockout{
		config:  config,
		counter: ratelimit.NewCounter(),
		locked:  make(map[string]time.Time),
		now:     time.Now,
	}
}

// Check reports whether the identity is currently locked and, if so, the
// remaining lock time. Expired locks are cleared as a side effect.
func (l *Lockout) Check(identity string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	until, ok := l.locked[identity]
	if !ok {
		return false, 0
	}
	if !now.Before(until) {
		delete(l.locked, identity)
		l.counter.Reset(identity)
		return false, 0
	}
	return true, until.Sub(now)
}

// RecordFailure increments the identity's failure counter. On reaching the
// threshold the identity is locked for LockDuration; the returned values
// mirror Check for the post-failure state.
func (l *Lockout) RecordFailure(identity string) (bool, time.Duration) {
	// Failures count against the configured window; a quiet identity ages
	// out rather than accumulating forever. The limit is threshold-1 so the
	// threshold-th failure is the denied one.
	if l.config.Threshold > 1 {
		if l.counter.Check(identity, l.config.Threshold-1, l.config.Window) {
			return false, 0
		}
	}

	now := l.now()
	until := now.Add(l.config.LockDuration)

	l.mu.Lock()
	l.locked[identity] = until
	l.mu.Unlock()

	return true, l.config.LockDuration
}

// RecordSuccess clears all failure state for the identity.
func (l *Lockout) RecordSuccess(identity string) {
	l.mu.Lock()
	delete(l.locked, identity)
	l.mu.Unlock()
	l.counter.Reset(identity)
}

// Purge drops expired locks. Called from the background cleanup task.
func (l *Lockout) Purge() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for identity, until := range l.locked {
		if !now.Before(until) {
			delete(l.locked, identity)
			removed++
		}
	}
	return removed
}

// SetNowFunc overrides the clock for the lockout and its counter. Test hook.
func (l *Lockout) SetNowFunc(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
	l.counter.SetNowFunc(now)
}
