// Package cache provides the report cache: a TTL + LRU map in front of
// expensive computations, with in-flight de-duplication so concurrent
// callers with the same key share one computation.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"prorab/pkg/logger"
)

const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 40
)

// SharedStore is an optional second tier shared between processes.
// Payloads are JSON.
type SharedStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}

// Metrics observes cache behaviour. Every method is called with the cache
// namespace.
type Metrics interface {
	Hit(namespace string)
	Miss(namespace string)
	SharedHit(namespace string)
	Coalesced(namespace string)
	Evicted(namespace string)
	ObserveBuild(namespace string, elapsed time.Duration, err error)
}

type nopMetrics struct{}

func (nopMetrics) Hit(string)                                {}
func (nopMetrics) Miss(string)                               {}
func (nopMetrics) SharedHit(string)                          {}
func (nopMetrics) Coalesced(string)                          {}
func (nopMetrics) Evicted(string)                            {}
func (nopMetrics) ObserveBuild(string, time.Duration, error) {}

// Config configures a cache instance.
type Config struct {
	Namespace  string
	TTL        time.Duration
	MaxEntries int
}

// Option customizes a cache.
type Option func(*Cache)

// WithShared attaches a shared tier.
func WithShared(store SharedStore) Option {
	return func(c *Cache) { c.shared = store }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

type entry struct {
	key      string
	value    any
	storedAt time.Time
}

// Cache is safe for concurrent use. Entries expire TTL after insertion or
// their last read; above MaxEntries the least recently used entry goes.
type Cache struct {
	namespace  string
	ttl        time.Duration
	maxEntries int

	mu    sync.Mutex
	order *list.List // front = most recently used
	items map[string]*list.Element

	group   singleflight.Group
	shared  SharedStore
	metrics Metrics
	now     func() time.Time
}

// New creates a cache.
func New(cfg Config, opts ...Option) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	c := &Cache{
		namespace:  cfg.Namespace,
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		order:      list.New(),
		items:      make(map[string]*list.Element),
		metrics:    nopMetrics{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Len returns the number of stored entries, expired ones included until
// they are looked up.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Get returns a live entry and refreshes it.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	now := c.now()
	if now.Sub(e.storedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	e.storedAt = now
	c.order.MoveToFront(el)
	return e.value, true
}

// Set stores a value as most recently used, evicting the least recently
// used entries above the bound.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.storedAt = now
		c.order.MoveToFront(el)
		return
	}

	c.items[key] = c.order.PushFront(&entry{key: key, value: value, storedAt: now})
	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
		c.metrics.Evicted(c.namespace)
	}
}

// GetOrCompute returns the cached value for key or computes it. Concurrent
// calls with the same key wait for a single computation. Failures are not
// cached and reach every waiting caller. The computation is detached from
// the caller's cancellation so waiters are not failed by one caller leaving.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			c.metrics.Hit(c.namespace)
			logger.Debug(ctx, "report cache hit", "namespace", c.namespace, "key", key)
			return typed, nil
		}
	}
	c.metrics.Miss(c.namespace)
	logger.Debug(ctx, "report cache miss", "namespace", c.namespace, "key", key)

	ch := c.group.DoChan(key, func() (any, error) {
		flightCtx := context.WithoutCancel(ctx)

		if v, ok := c.Get(key); ok {
			return v, nil
		}
		if v, ok := loadShared[T](flightCtx, c, key); ok {
			c.Set(key, v)
			return v, nil
		}

		start := c.now()
		v, err := compute(flightCtx)
		c.metrics.ObserveBuild(c.namespace, c.now().Sub(start), err)
		if err != nil {
			return nil, err
		}

		c.Set(key, v)
		storeShared(flightCtx, c, key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.metrics.Coalesced(c.namespace)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cache %s: unexpected value type %T for key %q", c.namespace, res.Val, key)
		}
		return v, nil
	}
}

func loadShared[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T
	if c.shared == nil {
		return v, false
	}
	raw, ok, err := c.shared.Get(ctx, c.sharedKey(key))
	if err != nil {
		logger.Warn(ctx, "shared cache read failed", "namespace", c.namespace, "error", err)
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		logger.Warn(ctx, "shared cache payload invalid", "namespace", c.namespace, "error", err)
		return v, false
	}
	c.metrics.SharedHit(c.namespace)
	return v, true
}

func storeShared(ctx context.Context, c *Cache, key string, v any) {
	if c.shared == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		logger.Warn(ctx, "shared cache encode failed", "namespace", c.namespace, "error", err)
		return
	}
	if err := c.shared.Set(ctx, c.sharedKey(key), raw, c.ttl); err != nil {
		logger.Warn(ctx, "shared cache write failed", "namespace", c.namespace, "error", err)
	}
}

func (c *Cache) sharedKey(key string) string {
	return c.namespace + ":" + key
}
