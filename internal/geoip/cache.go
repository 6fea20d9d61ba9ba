package geoip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long a resolved country code stays cached.
// IP-to-country assignments churn slowly, so a day is safe.
const DefaultCacheTTL = 24 * time.Hour

const cacheKeyPrefix = "geoip:country:"

// unresolvedMarker caches "lookup succeeded, no country" results so private
// and unknown addresses do not hit the upstream API on every request.
const unresolvedMarker = "-"

// CachedResolver fronts another Resolver with a Redis cache. Cache failures
// degrade to a direct lookup rather than an error.
type CachedResolver struct {
	inner  Resolver
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedResolver wraps inner with a Redis cache. A non-positive ttl
// falls back to DefaultCacheTTL.
func NewCachedResolver(inner Resolver, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedResolver{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

var _ Resolver = (*CachedResolver)(nil)

// Country returns the cached country code for ip, resolving and caching on
// a miss.
func (c *CachedResolver) Country(ctx context.Context, ip string) (string, error) {
	key := cacheKeyPrefix + ip

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == unresolvedMarker {
			return "", nil
		}
		return cached, nil
	case errors.Is(err, redis.Nil):
		// Cache miss, fall through to the resolver.
	default:
		c.logger.Warn("geo cache read failed, resolving directly",
			slog.String("ip_address", ip),
			slog.Any("error", err),
		)
	}

	code, err := c.inner.Country(ctx, ip)
	if err != nil {
		return "", err
	}

	value := code
	if value == "" {
		value = unresolvedMarker
	}
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Warn("geo cache write failed",
			slog.String("ip_address", ip),
			slog.Any("error", err),
		)
	}
	return code, nil
}

// Invalidate drops the cached entry for ip.
func (c *CachedResolver) Invalidate(ctx context.Context, ip string) error {
	if err := c.client.Del(ctx, cacheKeyPrefix+ip).Err(); err != nil {
		return fmt.Errorf("failed to invalidate geo cache entry: %w", err)
	}
	return nil
}
