package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/voyagen/channelnav/internal/cache"
	"github.com/voyagen/channelnav/internal/models"
)

const keyChannels = "channels:all"

func channelKey(number int64) string {
	return fmt.Sprintf("channel:%d", number)
}

// CachedStore wraps a Store with a Redis caching layer.
// Catalog reads are served from cache when possible; writes invalidate the
// affected keys. Misses are never cached. The current-channel pointer is
// never cached: a read racing a swap could write the old pointer back.
type CachedStore struct {
	inner Store
	cache *cache.Redis
	ttl   time.Duration
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis, ttl time.Duration) *CachedStore {
	return &CachedStore{inner: inner, cache: c, ttl: ttl}
}

// --- cached read operations ---

func (c *CachedStore) ListChannels(ctx context.Context) ([]models.Channel, error) {
	if v, err := cache.Get[[]models.Channel](ctx, c.cache, keyChannels); err == nil {
		return v, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Printf("cache: %v", err)
	}
	channels, err := c.inner.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, keyChannels, channels)
	return channels, nil
}

func (c *CachedStore) GetChannelByNumber(ctx context.Context, number int64) (*models.Channel, error) {
	key := channelKey(number)
	if v, err := cache.Get[models.Channel](ctx, c.cache, key); err == nil {
		return &v, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Printf("cache: %v", err)
	}
	ch, err := c.inner.GetChannelByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, ch)
	return ch, nil
}

// --- write operations with cache invalidation ---

func (c *CachedStore) UpsertChannel(ctx context.Context, ch *models.Channel) error {
	if err := c.inner.UpsertChannel(ctx, ch); err != nil {
		return err
	}
	c.invalidate(ctx, keyChannels, channelKey(ch.Number))
	return nil
}

func (c *CachedStore) RemoveStaleChannels(ctx context.Context, keep []int64) (int64, error) {
	n, err := c.inner.RemoveStaleChannels(ctx, keep)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.invalidate(ctx, keyChannels)
		c.invalidatePattern(ctx, "channel:*")
	}
	return n, nil
}

// --- passthrough ---

func (c *CachedStore) GetCurrentChannel(ctx context.Context) (*models.Channel, error) {
	return c.inner.GetCurrentChannel(ctx)
}

func (c *CachedStore) SwapCurrentChannel(ctx context.Context, from int64, ch *models.Channel) error {
	return c.inner.SwapCurrentChannel(ctx, from, ch)
}

func (c *CachedStore) InitCurrentChannel(ctx context.Context, ch *models.Channel) (bool, error) {
	return c.inner.InitCurrentChannel(ctx, ch)
}

func (c *CachedStore) Ping(ctx context.Context) error {
	if err := c.inner.Ping(ctx); err != nil {
		return err
	}
	return c.cache.Ping(ctx)
}

// --- helpers ---

func (c *CachedStore) set(ctx context.Context, key string, v any) {
	if err := cache.Set(ctx, c.cache, key, v, c.ttl); err != nil {
		log.Printf("cache: %v", err)
	}
}

// invalidate deletes exact cache keys, logging any errors.
func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := cache.Del(ctx, c.cache, keys...); err != nil {
		log.Printf("cache: %v", err)
	}
}

// invalidatePattern deletes all keys matching the given glob patterns.
func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil {
			log.Printf("cache: %v", err)
		}
	}
}
