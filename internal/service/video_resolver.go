package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/rehabflow-backend/internal/domain"
)

// VideoSearcher performs a live video lookup. Satisfied by the plain
// YouTube client and its circuit-breaker wrapper.
type VideoSearcher interface {
	FindBest(ctx context.Context, keywords []string) (*domain.VideoMatch, error)
}

// VideoMatchCache is the distributed cache tier for resolved videos.
type VideoMatchCache interface {
	GetVideoMatch(ctx context.Context, query string) (*domain.VideoMatch, bool, error)
	SetVideoMatch(ctx context.Context, query string, match *domain.VideoMatch, ttl time.Duration) error
}

// CachedVideoResolver resolves exercise-video embeds with multi-level
// caching: an in-process LRU for hot queries, Redis for warm ones, and the
// live search API (rate-limited, behind a circuit breaker) as the source
// of truth. When the breaker is open, cached entries keep serving.
type CachedVideoResolver struct {
	searcher    VideoSearcher
	memoryCache *lru.Cache
	redisCache  VideoMatchCache

	memoryCacheTTL time.Duration

	// Limits concurrent live searches.
	searchSemaphore chan struct{}

	logger  *logrus.Logger
	stats   *VideoCacheStats
	statsMu sync.RWMutex
}

// VideoCacheStats represents resolver cache performance statistics
type VideoCacheStats struct {
	MemoryHits    int64     `json:"memory_hits"`
	MemoryMisses  int64     `json:"memory_misses"`
	RedisHits     int64     `json:"redis_hits"`
	RedisMisses   int64     `json:"redis_misses"`
	SearchCalls   int64     `json:"search_calls"`
	TotalRequests int64     `json:"total_requests"`
	ErrorCount    int64     `json:"error_count"`
	LastReset     time.Time `json:"last_reset"`
}

// VideoResolverConfig represents configuration for the video resolver
type VideoResolverConfig struct {
	MemoryCacheTTL time.Duration `json:"memory_cache_ttl"`
	MaxMemorySize  int           `json:"max_memory_size"`
	MaxConcurrency int           `json:"max_concurrency"`
}

// NewCachedVideoResolver creates a new cached video resolver. redisCache
// may be nil, which disables the distributed tier.
func NewCachedVideoResolver(
	config VideoResolverConfig,
	searcher VideoSearcher,
	redisCache VideoMatchCache,
	logger *logrus.Logger,
) (*CachedVideoResolver, error) {
	if config.MemoryCacheTTL == 0 {
		config.MemoryCacheTTL = 15 * time.Minute
	}
	if config.MaxMemorySize == 0 {
		config.MaxMemorySize = 1000
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = 5
	}

	memoryCache, err := lru.New(config.MaxMemorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	return &CachedVideoResolver{
		searcher:        searcher,
		memoryCache:     memoryCache,
		redisCache:      redisCache,
		memoryCacheTTL:  config.MemoryCacheTTL,
		searchSemaphore: make(chan struct{}, config.MaxConcurrency),
		logger:          logger,
		stats: &VideoCacheStats{
			LastReset: time.Now(),
		},
	}, nil
}

// Resolve finds the best embeddable video for the keyword set, serving
// from cache tiers before touching the live API.
func (r *CachedVideoResolver) Resolve(ctx context.Context, keywords []string) (*domain.VideoMatch, error) {
	r.incrementStat("total_requests")

	cacheKey := normalizeQuery(keywords)
	if cacheKey == "" {
		r.incrementStat("error_count")
		return nil, fmt.Errorf("at least one non-empty keyword is required")
	}

	// Tier 1: in-process LRU.
	if match := r.getFromMemoryCache(cacheKey); match != nil {
		r.incrementStat("memory_hits")
		r.logger.WithFields(logrus.Fields{
			"query":      cacheKey,
			"cache_tier": "memory",
		}).Debug("Video cache hit")
		return match, nil
	}
	r.incrementStat("memory_misses")

	// Tier 2: Redis.
	if r.redisCache != nil {
		if match, found, err := r.redisCache.GetVideoMatch(ctx, cacheKey); err == nil && found {
			r.incrementStat("redis_hits")
			r.logger.WithFields(logrus.Fields{
				"query":      cacheKey,
				"cache_tier": "redis",
			}).Debug("Video cache hit")

			r.setInMemoryCache(cacheKey, match)
			return match, nil
		}
	}
	r.incrementStat("redis_misses")

	// Tier 3: live search.
	select {
	case r.searchSemaphore <- struct{}{}:
		defer func() { <-r.searchSemaphore }()
	case <-ctx.Done():
		r.incrementStat("error_count")
		return nil, ctx.Err()
	}

	r.incrementStat("search_calls")
	match, err := r.searcher.FindBest(ctx, keywords)
	if err != nil {
		r.incrementStat("error_count")
		return nil, err
	}

	r.setInMemoryCache(cacheKey, match)
	if r.redisCache != nil {
		if err := r.redisCache.SetVideoMatch(ctx, cacheKey, match, 0); err != nil {
			r.logger.WithError(err).Debug("Failed to cache video match in Redis")
		}
	}

	r.logger.WithFields(logrus.Fields{
		"query":     cacheKey,
		"embed_url": match.EmbedURL,
	}).Info("Video resolved from live search")

	return match, nil
}

// GetCacheStats returns cache performance statistics
func (r *CachedVideoResolver) GetCacheStats() VideoCacheStats {
	r.statsMu.RLock()
	defer r.statsMu.RUnlock()
	return *r.stats
}

func (r *CachedVideoResolver) getFromMemoryCache(key string) *domain.VideoMatch {
	if value, ok := r.memoryCache.Get(key); ok {
		if entry, ok := value.(*videoCacheEntry); ok && !entry.isExpired() {
			return entry.match
		}
		// Remove expired entry
		r.memoryCache.Remove(key)
	}
	return nil
}

func (r *CachedVideoResolver) setInMemoryCache(key string, match *domain.VideoMatch) {
	r.memoryCache.Add(key, &videoCacheEntry{
		match:  match,
		expiry: time.Now().Add(r.memoryCacheTTL),
	})
}

func (r *CachedVideoResolver) incrementStat(statName string) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	switch statName {
	case "memory_hits":
		r.stats.MemoryHits++
	case "memory_misses":
		r.stats.MemoryMisses++
	case "redis_hits":
		r.stats.RedisHits++
	case "redis_misses":
		r.stats.RedisMisses++
	case "search_calls":
		r.stats.SearchCalls++
	case "total_requests":
		r.stats.TotalRequests++
	case "error_count":
		r.stats.ErrorCount++
	}
}

type videoCacheEntry struct {
	match  *domain.VideoMatch
	expiry time.Time
}

func (e *videoCacheEntry) isExpired() bool {
	return time.Now().After(e.expiry)
}

// normalizeQuery folds the keyword set into a canonical cache key.
func normalizeQuery(keywords []string) string {
	parts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if trimmed := strings.TrimSpace(k); trimmed != "" {
			parts = append(parts, strings.ToLower(trimmed))
		}
	}
	return strings.Join(parts, " ")
}
