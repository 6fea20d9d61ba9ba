package integration

import (
	"fmt"
	"sync/atomic"
)

// TestPassword satisfies the registration policy (length, upper, lower,
// digit, symbol).
const TestPassword = "Sup3r-Secret-Pass!"

var emailSeq atomic.Int64

// UniqueEmail returns an email address no other test in this run has used.
func UniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.com", prefix, emailSeq.Add(1))
}

var ipSeq atomic.Int64

// UniqueClientIP returns a client IP from the documentation range so rate
// limit buckets and reputation records never collide across tests.
func UniqueClientIP() string {
	n := ipSeq.Add(1)
	return fmt.Sprintf("203.0.%d.%d", n/250, n%250+1)
}
