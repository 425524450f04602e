// Package respcache is the shared (Redis) tier of the vault response cache.
package respcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vaultctx/internal/db"
	"github.com/kailas-cloud/vaultctx/internal/domain"
)

// KeyPrefix namespaces every shared cache key.
const KeyPrefix = "vaultctx:resp:"

// store is the consumer interface for the shared cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Cache stores vault responses in a key-value store. Errors are logged and treated as misses.
type Cache struct {
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// entry is the stored form of a domain.Response.
type entry struct {
	StatusCode  int      `json:"status"`
	ContentType string   `json:"content_type,omitempty"`
	Body        []byte   `json:"body,omitempty"`
	Records     [][]byte `json:"records,omitempty"`
}

// New creates a shared cache.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"/"error"), passed explicitly; nil disables it.
func New(s store, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{store: s, ttl: ttl, cacheTotal: cacheTotal, logger: logger}
}

// Get returns a cached response.
func (c *Cache) Get(ctx context.Context, kind, key string) (domain.Response, bool) {
	k := storeKey(kind, key)
	data, err := c.store.Get(ctx, k)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			c.inc("miss")
		} else {
			c.inc("error")
			c.logger.Warn("Failed to read shared cache", zap.String("key", k), zap.Error(err))
		}
		return domain.Response{}, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.inc("error")
		c.logger.Warn("Failed to decode shared cache entry", zap.String("key", k), zap.Error(err))
		return domain.Response{}, false
	}

	c.inc("hit")
	return domain.Response{
		StatusCode:  e.StatusCode,
		ContentType: e.ContentType,
		Body:        e.Body,
		Records:     e.Records,
	}, true
}

// Put stores resp with the cache TTL.
func (c *Cache) Put(ctx context.Context, kind, key string, resp domain.Response) {
	data, err := json.Marshal(entry{
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		Body:        resp.Body,
		Records:     resp.Records,
	})
	if err != nil {
		c.logger.Warn("Failed to encode shared cache entry", zap.Error(err))
		return
	}

	k := storeKey(kind, key)
	if err := c.store.SetWithTTL(ctx, k, data, c.ttl); err != nil {
		c.logger.Warn("Failed to write shared cache", zap.String("key", k), zap.Error(err))
	}
}

// Invalidate removes specific keys of one kind.
func (c *Cache) Invalidate(ctx context.Context, kind string, keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = storeKey(kind, k)
	}
	if err := c.store.Del(ctx, full...); err != nil {
		c.logger.Warn("Failed to invalidate shared cache", zap.Strings("keys", full), zap.Error(err))
	}
}

// InvalidateKind removes every key of one kind.
func (c *Cache) InvalidateKind(ctx context.Context, kind string) {
	pattern := KeyPrefix + kind + ":*"
	keys, err := c.store.Scan(ctx, pattern)
	if err != nil {
		c.logger.Warn("Failed to scan shared cache", zap.String("pattern", pattern), zap.Error(err))
		return
	}
	if err := c.store.Del(ctx, keys...); err != nil {
		c.logger.Warn("Failed to invalidate shared cache", zap.String("pattern", pattern), zap.Error(err))
	}
}

func (c *Cache) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func storeKey(kind, key string) string {
	return KeyPrefix + kind + ":" + key
}
