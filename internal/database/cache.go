package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const (
	// Cache key prefixes
	CacheKeySettings   = "wirevault:settings"
	CacheKeyPoolStats  = "wirevault:pool:stats"
	CacheKeyWGDefaults = "wirevault:wg:defaults"
	CacheKeyRateLimit  = "wirevault:ratelimit:max"
	blacklistKeyPrefix = "wirevault:token:blacklist:"
	rateLimitKeyPrefix = "wirevault:ratelimit:"

	// Cache TTLs
	CacheTTLSettings   = 5 * time.Minute
	CacheTTLPoolStats  = 30 * time.Second
	CacheTTLWGDefaults = 5 * time.Minute
	CacheTTLRateLimit  = time.Minute
)

// CacheGet retrieves a value from Redis cache and unmarshals it into dest
func CacheGet(key string, dest interface{}) error {
	ctx := context.Background()
	data, err := Redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// CacheSet stores a value in Redis cache with TTL
func CacheSet(key string, value interface{}, ttl time.Duration) error {
	ctx := context.Background()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return Redis.Set(ctx, key, data, ttl).Err()
}

// CacheDelete removes a key from Redis cache
func CacheDelete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx := context.Background()
	return Redis.Del(ctx, keys...).Err()
}

// InvalidateSettingsCache clears settings-derived cache entries
func InvalidateSettingsCache() {
	CacheDelete(CacheKeySettings, CacheKeyWGDefaults, CacheKeyRateLimit)
}

// BlacklistToken marks a JWT as revoked until it would have expired anyway
func BlacklistToken(token string, ttl time.Duration) error {
	if Redis == nil {
		return errors.New("redis unavailable, token cannot be revoked")
	}
	ctx := context.Background()
	return Redis.Set(ctx, blacklistKeyPrefix+token, "1", ttl).Err()
}

// IsTokenBlacklisted reports whether a JWT has been revoked by logout
func IsTokenBlacklisted(token string) bool {
	if Redis == nil {
		return false
	}
	ctx := context.Background()
	n, err := Redis.Exists(ctx, blacklistKeyPrefix+token).Result()
	return err == nil && n > 0
}

// RateLimitHit increments the fixed-window request counter for a principal
// and returns the count inside the current window. The counter lives in
// Redis so admission control holds across multiple API instances.
func RateLimitHit(key string, window time.Duration) (int64, error) {
	if Redis == nil {
		return 0, errors.New("redis unavailable")
	}
	ctx := context.Background()
	full := rateLimitKeyPrefix + key

	count, err := Redis.Incr(ctx, full).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		Redis.Expire(ctx, full, window)
	}
	return count, nil
}
