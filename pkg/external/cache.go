package external

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rehabflow-backend/internal/domain"
)

// CacheClient wraps Redis with caching for video lookups and translations
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
	videoTTL   time.Duration
}

// NewCacheClient creates a new cache client
func NewCacheClient(config domain.CacheConfig) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	videoTTL := config.VideoTTL
	if videoTTL == 0 {
		videoTTL = 6 * time.Hour
	}

	return &CacheClient{
		redis:      client,
		defaultTTL: config.DefaultTTL,
		videoTTL:   videoTTL,
	}, nil
}

// CachedVideoMatch represents a cached video lookup with metadata
type CachedVideoMatch struct {
	Data      *domain.VideoMatch `json:"data"`
	CachedAt  time.Time          `json:"cached_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// CachedTranslation represents a cached translation with metadata
type CachedTranslation struct {
	Text      string    `json:"text"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GetVideoMatch retrieves a cached video lookup result
func (c *CacheClient) GetVideoMatch(ctx context.Context, query string) (*domain.VideoMatch, bool, error) {
	key := c.generateVideoKey(query)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil // Cache miss
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get video cache: %w", err)
	}

	var cached CachedVideoMatch
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	// Check if expired
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// SetVideoMatch caches a video lookup result
func (c *CacheClient) SetVideoMatch(ctx context.Context, query string, match *domain.VideoMatch, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.videoTTL
	}

	key := c.generateVideoKey(query)

	cached := CachedVideoMatch{
		Data:      match,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal video cache data: %w", err)
	}

	return c.redis.Set(ctx, key, jsonData, ttl).Err()
}

// GetTranslation retrieves a cached translation
func (c *CacheClient) GetTranslation(ctx context.Context, text, targetLang string) (string, bool, error) {
	key := c.generateTranslationKey(text, targetLang)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil // Cache miss
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get translation cache: %w", err)
	}

	var cached CachedTranslation
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return "", false, nil
	}

	// Check if expired
	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return "", false, nil
	}

	return cached.Text, true, nil
}

// SetTranslation caches a translation
func (c *CacheClient) SetTranslation(ctx context.Context, text, targetLang, translated string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	key := c.generateTranslationKey(text, targetLang)

	cached := CachedTranslation{
		Text:      translated,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal translation cache data: %w", err)
	}

	return c.redis.Set(ctx, key, jsonData, ttl).Err()
}

// generateVideoKey creates a cache key for a video search query
func (c *CacheClient) generateVideoKey(query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	hash := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("video:query:%x", hash[:8]) // Use first 8 bytes of hash
}

// generateTranslationKey creates a cache key for a translation
func (c *CacheClient) generateTranslationKey(text, targetLang string) string {
	hash := sha256.Sum256([]byte(targetLang + ":" + text))
	return fmt.Sprintf("translation:%s:%x", targetLang, hash[:8])
}

// Ping checks if Redis connection is alive
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	return c.redis.Close()
}
