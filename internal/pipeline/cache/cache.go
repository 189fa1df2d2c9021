// Package cache provides the lookup cache shared by components: an
// in-process go-cache tier backed by an optional redis tier
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"analysis-engine/internal/common/logging"
	"analysis-engine/internal/redis"
)

// Level identifies where a value was found
type Level int

const (
	L1Cache Level = iota // in-process
	L2Cache              // redis
)

// TieredCache checks the in-process tier first, then redis. Values found in
// redis are promoted to the in-process tier. Redis stores JSON, so values
// read back from it have JSON types (numbers become float64).
type TieredCache struct {
	l1       *gocache.Cache
	l2       *redis.Client
	l2Prefix string
	ttl      time.Duration
	logger   logging.Logger
}

// NewTieredCache creates a cache; redisClient may be nil for an in-process
// only cache
func NewTieredCache(redisClient *redis.Client, l2Prefix string, defaultTTL time.Duration, logger logging.Logger) *TieredCache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &TieredCache{
		l1:       gocache.New(defaultTTL, 2*defaultTTL),
		l2:       redisClient,
		l2Prefix: l2Prefix,
		ttl:      defaultTTL,
		logger:   logger,
	}
}

// NewInMemoryCache creates an in-process only cache
func NewInMemoryCache(defaultTTL time.Duration) *TieredCache {
	return NewTieredCache(nil, "", defaultTTL, nil)
}

// Get returns the value cached under key
func (c *TieredCache) Get(ctx context.Context, key string) (interface{}, bool) {
	value, _, ok := c.Lookup(ctx, key)
	return value, ok
}

// Lookup is Get that also tells which tier answered
func (c *TieredCache) Lookup(ctx context.Context, key string) (interface{}, Level, bool) {
	if value, found := c.l1.Get(key); found {
		return value, L1Cache, true
	}
	if c.l2 == nil {
		return nil, L1Cache, false
	}

	var value interface{}
	err := c.l2.GetJSON(ctx, c.l2Prefix+key, &value)
	if err == redis.ErrMiss {
		return nil, L2Cache, false
	}
	if err != nil {
		c.logger.Warn("Lookup cache read failed", logging.String("key", key), logging.Err(err))
		return nil, L2Cache, false
	}

	c.l1.SetDefault(key, value)
	return value, L2Cache, true
}

// Set stores value in both tiers. A failing redis write is logged; the
// in-process tier still holds the value.
func (c *TieredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.l1.Set(key, value, ttl)

	if c.l2 == nil {
		return
	}
	if err := c.l2.SetJSON(ctx, c.l2Prefix+key, value, ttl); err != nil {
		c.logger.Warn("Lookup cache write failed", logging.String("key", key), logging.Err(err))
	}
}

// Delete removes key from both tiers
func (c *TieredCache) Delete(ctx context.Context, key string) error {
	c.l1.Delete(key)
	if c.l2 == nil {
		return nil
	}
	return c.l2.Delete(ctx, c.l2Prefix+key)
}

// Clear removes everything this cache stored
func (c *TieredCache) Clear(ctx context.Context) error {
	c.l1.Flush()
	if c.l2 == nil {
		return nil
	}
	_, err := c.l2.DeletePrefix(ctx, c.l2Prefix)
	return err
}

// ItemCount returns the number of values in the in-process tier
func (c *TieredCache) ItemCount() int {
	return c.l1.ItemCount()
}
