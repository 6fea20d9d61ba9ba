package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPConfig lists the proxy networks whose forwarding headers are believed.
type IPConfig struct {
	TrustedProxies []string // CIDR ranges
}

// ExtractClientIP resolves the client address the security layers key on:
// the reputation engine, the login rate limiter, and the audit trail all use
// it. X-Forwarded-For and X-Real-IP are honored only when the TCP peer is a
// configured proxy; from anyone else those headers are attacker-controlled
// and ignored.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	peer := peerAddr(r)

	if config == nil || !fromTrustedProxy(peer, config.TrustedProxies) {
		return peer
	}

	// Leftmost valid entry is the original client; later entries are the
	// proxies the request passed through.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			candidate := strings.TrimSpace(part)
			if _, err := netip.ParseAddr(candidate); err == nil {
				return candidate
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}

	return peer
}

// peerAddr returns the TCP peer's IP with the port stripped.
func peerAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// fromTrustedProxy reports whether ip falls inside any trusted CIDR. Invalid
// ranges are skipped, so a config typo narrows trust instead of widening it.
func fromTrustedProxy(ip string, trustedProxies []string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}

	for _, cidr := range trustedProxies {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
