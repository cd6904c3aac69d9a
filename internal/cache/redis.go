package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedactionCache handles Redis-based caching of redacted documents. Entries
// are keyed by registry revision, technique, and a hash of the input text,
// so a registry change naturally invalidates prior results.
type RedactionCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	stats  *cacheStats
}

// cacheStats tracks cache performance metrics
type cacheStats struct {
	hits   int64
	misses int64
}

// NewRedactionCache creates a new Redis-based redaction cache
func NewRedactionCache(config *Config, logger *zap.Logger) (*RedactionCache, error) {
	// Parse Redis URL
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	c := &RedactionCache{
		client: client,
		config: config,
		logger: logger,
		stats:  &cacheStats{},
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redaction cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return c, nil
}

// ping tests the Redis connection
func (c *RedactionCache) ping(ctx context.Context) error {
	_, err := c.client.Ping(ctx).Result()
	return err
}

// Get returns the cached redacted text for the given input, if present.
// Lookup failures are logged and treated as misses so a Redis outage never
// fails a redaction request.
func (c *RedactionCache) Get(ctx context.Context, revision, technique, text string) (string, bool) {
	cacheKey := c.generateKey(revision, technique, text)

	cachedData, err := c.client.Get(ctx, cacheKey).Result()
	if err == redis.Nil {
		atomic.AddInt64(&c.stats.misses, 1)
		c.logger.Debug("Cache miss", zap.String("key", cacheKey))
		return "", false
	} else if err != nil {
		c.logger.Error("Cache lookup failed", zap.Error(err))
		atomic.AddInt64(&c.stats.misses, 1)
		return "", false
	}

	var entry CachedRedaction
	if err := json.Unmarshal([]byte(cachedData), &entry); err != nil {
		c.logger.Error("Failed to unmarshal cached redaction", zap.Error(err))
		// Delete corrupted cache entry
		c.client.Del(ctx, cacheKey)
		atomic.AddInt64(&c.stats.misses, 1)
		return "", false
	}

	if entry.Revision != revision || entry.Technique != technique {
		atomic.AddInt64(&c.stats.misses, 1)
		return "", false
	}

	atomic.AddInt64(&c.stats.hits, 1)
	c.logger.Debug("Cache hit",
		zap.String("key", cacheKey),
		zap.String("revision", entry.Revision))

	return entry.RedactedText, true
}

// Store caches a redacted document with the configured TTL. Errors are
// logged and swallowed; caching is best-effort.
func (c *RedactionCache) Store(ctx context.Context, revision, technique, text, redacted string) {
	cacheKey := c.generateKey(revision, technique, text)

	entry := CachedRedaction{
		RedactedText: redacted,
		Revision:     revision,
		Technique:    technique,
		CachedAt:     time.Now(),
		TTL:          int64(c.config.DefaultTTL.Seconds()),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Error("Failed to marshal redaction for caching", zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, cacheKey, data, c.config.DefaultTTL).Err(); err != nil {
		c.logger.Error("Failed to cache redaction", zap.Error(err))
		return
	}

	c.logger.Debug("Redaction cached successfully",
		zap.String("key", cacheKey),
		zap.String("revision", revision))
}

// GetStats returns cache performance statistics
func (c *RedactionCache) GetStats(ctx context.Context) (*CacheStats, error) {
	info, err := c.client.Info(ctx, "memory", "stats").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &CacheStats{
		Hits:   atomic.LoadInt64(&c.stats.hits),
		Misses: atomic.LoadInt64(&c.stats.misses),
	}

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	// Parse memory usage from Redis info
	lines := strings.Split(info, "\r\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "used_memory:") {
			if memStr := strings.TrimPrefix(line, "used_memory:"); memStr != "" {
				if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
					stats.MemoryUsage = mem
				}
			}
		}
	}

	keys, err := c.client.DBSize(ctx).Result()
	if err == nil {
		stats.TotalKeys = keys
	}

	return stats, nil
}

// Clear removes all cached redactions under the configured key prefix
func (c *RedactionCache) Clear(ctx context.Context) error {
	pattern := c.config.KeyPrefix + "*"

	// Use SCAN to find all keys with our prefix
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	// Delete keys in batches
	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}

		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			c.logger.Error("Failed to delete cache keys", zap.Error(err))
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (c *RedactionCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// generateKey builds a cache key from the registry revision, technique, and
// a hash of the input text.
func (c *RedactionCache) generateKey(revision, technique, text string) string {
	hasher := sha256.New()
	hasher.Write([]byte(revision))
	hasher.Write([]byte{0})
	hasher.Write([]byte(technique))
	hasher.Write([]byte{0})
	hasher.Write([]byte(text))

	hash := hex.EncodeToString(hasher.Sum(nil))
	return fmt.Sprintf("%s:doc:%s", c.config.KeyPrefix, hash[:32])
}

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
