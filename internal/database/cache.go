package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// Cache key prefixes
	CacheKeyDashboard = "jazanet:dashboard:"
	CacheKeyPackages  = "jazanet:packages:"

	// Cache TTLs
	CacheTTLDashboard = 30 * time.Second
	CacheTTLPackages  = 2 * time.Minute
)

// ErrCacheUnavailable is returned when Redis is not connected
var ErrCacheUnavailable = errors.New("cache unavailable")

// CacheGet retrieves a value from Redis cache and unmarshals it into dest
func CacheGet(key string, dest interface{}) error {
	if Redis == nil {
		return ErrCacheUnavailable
	}
	ctx := context.Background()
	data, err := Redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// CacheSet stores a value in Redis cache with TTL
func CacheSet(key string, value interface{}, ttl time.Duration) error {
	if Redis == nil {
		return ErrCacheUnavailable
	}
	ctx := context.Background()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return Redis.Set(ctx, key, data, ttl).Err()
}

// CacheDelete removes keys from Redis cache
func CacheDelete(keys ...string) error {
	if Redis == nil || len(keys) == 0 {
		return nil
	}
	ctx := context.Background()
	return Redis.Del(ctx, keys...).Err()
}

// CacheDeletePattern deletes all keys matching a pattern (use with caution)
func CacheDeletePattern(pattern string) error {
	if Redis == nil {
		return nil
	}
	ctx := context.Background()
	iter := Redis.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return Redis.Del(ctx, keys...).Err()
	}
	return nil
}

// InvalidatePackagesCache clears cached package lists for a tenant
func InvalidatePackagesCache(tenantID uint) {
	CacheDeletePattern(fmt.Sprintf("%s%d:*", CacheKeyPackages, tenantID))
}

const jwtBlacklistPrefix = "jazanet:jwt:blacklist:"

// BlacklistToken marks a JWT as revoked until its natural expiry.
// With Redis down logout degrades to client-side token disposal.
func BlacklistToken(token string, ttl time.Duration) error {
	if Redis == nil {
		return ErrCacheUnavailable
	}
	if ttl <= 0 {
		return nil
	}
	ctx := context.Background()
	return Redis.Set(ctx, jwtBlacklistPrefix+token, "1", ttl).Err()
}

// IsTokenBlacklisted reports whether a JWT has been revoked.
func IsTokenBlacklisted(token string) bool {
	if Redis == nil {
		return false
	}
	ctx := context.Background()
	n, err := Redis.Exists(ctx, jwtBlacklistPrefix+token).Result()
	return err == nil && n > 0
}
