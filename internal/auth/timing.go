package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig tunes the login-failure delay used to mask the difference
// between "unknown account" and "wrong password" responses.
type TimingConfig struct {
	BaseDelayMs   int
	RandomDelayMs int
}

// TimingDelay equalizes authentication failure latency so an attacker
// cannot enumerate accounts by response time.
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance.
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// Wait sleeps on failure for baseDelay plus a random jitter. Successes
// return immediately.
func (td *TimingDelay) Wait(success bool) {
	if success {
		return
	}
	time.Sleep(td.delay())
}

// WaitFrom sleeps only as long as needed for the total elapsed time since
// startTime to reach the target delay.
func (td *TimingDelay) WaitFrom(startTime time.Time, success bool) {
	if success {
		return
	}
	target := td.delay()
	if elapsed := time.Since(startTime); elapsed < target {
		time.Sleep(target - elapsed)
	}
}

func (td *TimingDelay) delay() time.Duration {
	base := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs <= 0 {
		return base
	}

	// crypto/rand keeps the jitter unpredictable to the caller.
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return base
	}
	jitter := binary.BigEndian.Uint64(buf) % uint64(td.config.RandomDelayMs)
	return base + time.Duration(jitter)*time.Millisecond
}
