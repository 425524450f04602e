package vaulthttp

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/kailas-cloud/vaultctx/internal/domain"
	"github.com/kailas-cloud/vaultctx/internal/metrics"
)

// Cache kinds. A kind groups keys that are invalidated together.
const (
	kindNote   = "note"
	kindSearch = "search"
)

// CacheConfig tunes the in-process response cache. TTL <= 0 disables caching.
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// CacheStats is exposed through GetCacheStats.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       uint64  `json:"hits"`
	SharedHits uint64  `json:"shared_hits"`
	Misses     uint64  `json:"misses"`
	Evictions  uint64  `json:"evictions"`
	HitRate    float64 `json:"hit_rate"`
	TTLSeconds float64 `json:"ttl_seconds"`
	Shared     bool    `json:"shared"`
}

// SharedCache is an optional second tier behind the in-process cache, shared across replicas.
type SharedCache interface {
	Get(ctx context.Context, kind, key string) (domain.Response, bool)
	Put(ctx context.Context, kind, key string, resp domain.Response)
	Invalidate(ctx context.Context, kind string, keys ...string)
	InvalidateKind(ctx context.Context, kind string)
}

type cacheEntry struct {
	key     string
	kind    string
	resp    domain.Response
	expires time.Time
}

// responseCache is a TTL cache with LRU eviction once MaxEntries is reached.
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	now     func() time.Time
	items   map[string]*list.Element
	order   *list.List // front = most recently used
	shared  SharedCache
	hits    uint64
	sharedH uint64
	misses  uint64
	evicted uint64
}

func newResponseCache(cfg CacheConfig, now func() time.Time, shared SharedCache) *responseCache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	if now == nil {
		now = time.Now
	}
	return &responseCache{
		ttl:    cfg.TTL,
		max:    cfg.MaxEntries,
		now:    now,
		items:  make(map[string]*list.Element),
		order:  list.New(),
		shared: shared,
	}
}

func cacheKey(kind string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *responseCache) enabled() bool { return c.ttl > 0 }

func (c *responseCache) get(ctx context.Context, kind, key string) (domain.Response, bool) {
	if !c.enabled() {
		return domain.Response{}, false
	}

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*cacheEntry)
		if c.now().Before(e.expires) {
			c.order.MoveToFront(el)
			c.hits++
			c.mu.Unlock()
			metrics.ResponseCacheTotal.WithLabelValues("hit").Inc()
			return e.resp, true
		}
		c.removeElement(el)
	}
	c.mu.Unlock()

	if c.shared != nil {
		if resp, ok := c.shared.Get(ctx, kind, key); ok {
			c.store(kind, key, resp)
			c.mu.Lock()
			c.sharedH++
			c.mu.Unlock()
			metrics.ResponseCacheTotal.WithLabelValues("shared_hit").Inc()
			return resp, true
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	metrics.ResponseCacheTotal.WithLabelValues("miss").Inc()
	return domain.Response{}, false
}

func (c *responseCache) put(ctx context.Context, kind, key string, resp domain.Response) {
	if !c.enabled() {
		return
	}
	c.store(kind, key, resp)
	if c.shared != nil {
		c.shared.Put(ctx, kind, key, resp)
	}
}

func (c *responseCache) store(kind, key string, resp domain.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
	el := c.order.PushFront(&cacheEntry{key: key, kind: kind, resp: resp, expires: c.now().Add(c.ttl)})
	c.items[key] = el

	for c.order.Len() > c.max {
		c.removeElement(c.order.Back())
		c.evicted++
	}
}

func (c *responseCache) invalidate(ctx context.Context, kind string, keys ...string) {
	c.mu.Lock()
	for _, k := range keys {
		if el, ok := c.items[k]; ok {
			c.removeElement(el)
		}
	}
	c.mu.Unlock()
	if c.shared != nil {
		c.shared.Invalidate(ctx, kind, keys...)
	}
}

func (c *responseCache) invalidateKind(ctx context.Context, kind string) {
	c.mu.Lock()
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*cacheEntry).kind == kind {
			c.removeElement(el)
		}
		el = next
	}
	c.mu.Unlock()
	if c.shared != nil {
		c.shared.InvalidateKind(ctx, kind)
	}
}

// clear drops every local entry and resets counters. The shared tier is flushed per kind.
func (c *responseCache) clear(ctx context.Context) {
	c.mu.Lock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.hits, c.sharedH, c.misses, c.evicted = 0, 0, 0, 0
	c.mu.Unlock()
	if c.shared != nil {
		c.shared.InvalidateKind(ctx, kindNote)
		c.shared.InvalidateKind(ctx, kindSearch)
	}
}

func (c *responseCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := CacheStats{
		Entries:    c.order.Len(),
		MaxEntries: c.max,
		Hits:       c.hits,
		SharedHits: c.sharedH,
		Misses:     c.misses,
		Evictions:  c.evicted,
		TTLSeconds: c.ttl.Seconds(),
		Shared:     c.shared != nil,
	}
	if total := s.Hits + s.SharedHits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits+s.SharedHits) / float64(total)
	}
	return s
}

// removeElement must be called with mu held.
func (c *responseCache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*cacheEntry).key)
}
