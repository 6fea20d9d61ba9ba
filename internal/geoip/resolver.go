// Package geoip resolves source IPs to ISO 3166-1 alpha-2 country codes
// for the reputation engine's country block rules. Resolution is best
// effort: failures surface as errors and the caller decides whether to
// fail open.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Resolver classifies an IP address to a country code. An empty code with
// a nil error means the address could not be classified (private ranges,
// unknown addresses).
type Resolver interface {
	Country(ctx context.Context, ip string) (string, error)
}

const defaultLookupTimeout = 2 * time.Second

// HTTPResolver queries an external geolocation HTTP API. The endpoint is
// expected to answer GET <baseURL>/<ip> with a JSON body carrying a
// countryCode field.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPResolver creates a resolver against the given API base URL.
func NewHTTPResolver(baseURL string, logger *slog.Logger) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultLookupTimeout},
		logger:  logger,
	}
}

type lookupResponse struct {
	Status      string `json:"status"`
	CountryCode string `json:"countryCode"`
	Message     string `json:"message"`
}

// Country resolves ip to a country code. Private and loopback addresses
// resolve to the empty code without touching the network.
func (r *HTTPResolver) Country(ctx context.Context, ip string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("invalid ip address: %q", ip)
	}
	if parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() {
		return "", nil
	}

	endpoint := fmt.Sprintf("%s/%s", r.baseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build geo lookup request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("geo lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geo lookup returned status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode geo lookup response: %w", err)
	}
	if body.Status != "" && body.Status != "success" {
		r.logger.Debug("geo lookup unresolved",
			slog.String("ip_address", ip),
			slog.String("message", body.Message),
		)
		return "", nil
	}
	return body.CountryCode, nil
}
