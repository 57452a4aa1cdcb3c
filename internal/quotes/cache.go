package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Cache stores quotes for a short TTL so repeated lookups of the same symbol
// do not hammer the provider. A miss is reported as (nil, nil).
type Cache interface {
	Get(ctx context.Context, symbol string) (*Quote, error)
	Set(ctx context.Context, symbol string, quote *Quote) error
}

// RedisCache caches quotes in redis.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache creates a quote cache on top of an existing redis client.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func cacheKey(symbol string) string {
	return fmt.Sprintf("quote:%s", symbol)
}

func (c *RedisCache) Get(ctx context.Context, symbol string) (*Quote, error) {
	data, err := c.rdb.Get(ctx, cacheKey(symbol)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var quote Quote
	if err := json.Unmarshal(data, &quote); err != nil {
		return nil, fmt.Errorf("failed to decode cached quote: %w", err)
	}
	return &quote, nil
}

func (c *RedisCache) Set(ctx context.Context, symbol string, quote *Quote) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("failed to encode quote: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKey(symbol), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

type memoryEntry struct {
	quote   Quote
	expires time.Time
}

// MemoryCache is an in-process quote cache used when no redis address is
// configured.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an in-process quote cache with the given TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, symbol string) (*Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[symbol]
	if !ok {
		return nil, nil
	}
	if c.now().After(entry.expires) {
		delete(c.entries, symbol)
		return nil, nil
	}
	quote := entry.quote
	return &quote, nil
}

func (c *MemoryCache) Set(_ context.Context, symbol string, quote *Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = memoryEntry{quote: *quote, expires: c.now().Add(c.ttl)}
	return nil
}

// CachingProvider wraps a Provider with a cache-aside layer. Cache failures
// degrade to a direct provider call and never fail the lookup.
type CachingProvider struct {
	next   Provider
	cache  Cache
	logger *zap.Logger
}

var _ Provider = (*CachingProvider)(nil)

// NewCachingProvider wraps next with the given cache.
func NewCachingProvider(next Provider, cache Cache, logger *zap.Logger) *CachingProvider {
	return &CachingProvider{next: next, cache: cache, logger: logger}
}

func (p *CachingProvider) Lookup(ctx context.Context, symbol string) (*Quote, error) {
	cached, err := p.cache.Get(ctx, symbol)
	if err != nil {
		p.logger.Warn("Quote cache read failed", zap.String("symbol", symbol), zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	quote, err := p.next.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if err := p.cache.Set(ctx, quote.Symbol, quote); err != nil {
		p.logger.Warn("Quote cache write failed", zap.String("symbol", quote.Symbol), zap.Error(err))
	}
	return quote, nil
}
