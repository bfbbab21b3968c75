package kurirgo

import (
	"context"
	"hash/fnv"
	"net/http"
	"sync"
	"time"
)

// CacheKeyStrategy selects how a request maps to a cache key.
type CacheKeyStrategy int

const (
	// CacheKeyFullURL keys entries by method plus the full URL.
	CacheKeyFullURL CacheKeyStrategy = iota
	// CacheKeyStripQuery keys entries by method plus the URL without its
	// query string.
	CacheKeyStripQuery
)

// Entry is a cached response snapshot with its creation time and TTL.
// Expiry is evaluated lazily on read; no background sweep runs.
type Entry struct {
	Result    *Result
	CreatedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry is stale at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(e.TTL))
}

// Store maps cache keys to entries. Get must treat expired entries as absent
// and evict them.
type Store interface {
	Get(key string) (*Entry, bool)
	Set(key string, entry *Entry)
	Delete(key string)
	Clear()
}

// CacheCondition decides whether a request is eligible for caching at all.
type CacheCondition func(req *Request) bool

// DefaultCacheCondition caches GET and HEAD requests.
func DefaultCacheCondition(req *Request) bool {
	return req.Method() == http.MethodGet || req.Method() == http.MethodHead
}

// CanCache vetoes storage per response; it runs after a successful attempt.
type CanCache func(res Response) bool

// DefaultCanCache stores only successful responses.
func DefaultCanCache(res Response) bool {
	return res != nil && res.IsSuccess()
}

// MemoryStore is the default Store: a sharded in-memory map with per-shard
// read-write locks and lazy expiry.
type MemoryStore struct {
	shards    []*cacheShard
	numShards int
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*Entry
}

// NewMemoryStore returns an empty 16-shard store.
func NewMemoryStore() *MemoryStore {
	numShards := 16
	shards := make([]*cacheShard, numShards)
	for i := range shards {
		shards[i] = &cacheShard{
			store: make(map[string]*Entry),
		}
	}
	return &MemoryStore{
		shards:    shards,
		numShards: numShards,
	}
}

func (c *MemoryStore) getShard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(c.numShards)]
}

// Get returns the entry for key. An expired entry is evicted and reported as
// a miss.
func (c *MemoryStore) Get(key string) (*Entry, bool) {
	shard := c.getShard(key)

	shard.mu.RLock()
	entry, exists := shard.store[key]
	shard.mu.RUnlock()

	if !exists {
		return nil, false
	}

	if entry.Expired(time.Now()) {
		shard.mu.Lock()
		// Re-check: a writer may have refreshed the key in between.
		if cur, ok := shard.store[key]; ok && cur == entry {
			delete(shard.store, key)
		}
		shard.mu.Unlock()
		return nil, false
	}

	return entry, true
}

// Set stores an entry under key.
func (c *MemoryStore) Set(key string, entry *Entry) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	shard.store[key] = entry
}

// Delete removes the entry for key.
func (c *MemoryStore) Delete(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
}

// Clear removes every entry.
func (c *MemoryStore) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*Entry)
		shard.mu.Unlock()
	}
}

// Len returns the number of entries across all shards, including entries
// that have expired but not yet been evicted.
func (c *MemoryStore) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}

// CacheKeyFunc builds a cache key from a request.
type CacheKeyFunc func(req *Request) string

// keyFuncFor returns the key builder for a strategy.
func keyFuncFor(strategy CacheKeyStrategy) CacheKeyFunc {
	if strategy == CacheKeyStripQuery {
		return func(req *Request) string {
			u := req.URL()
			u.RawQuery = ""
			return req.Method() + ":" + u.String()
		}
	}
	return func(req *Request) string {
		return req.Method() + ":" + req.URL().String()
	}
}

// Context keys for per-call cache control
type contextKey string

const cacheControlKey contextKey = "kurirgo_cache_control"

// CacheControl overrides cache behavior for the calls made under a context.
type CacheControl struct {
	Enabled bool
	TTL     time.Duration
}

// WithContextCacheEnabled forces caching for calls under ctx even when the
// request method would not normally be cached.
func WithContextCacheEnabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, cacheControlKey, &CacheControl{Enabled: true})
}

// WithContextCacheDisabled disables caching for calls under ctx.
func WithContextCacheDisabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, cacheControlKey, &CacheControl{Enabled: false})
}

// WithContextCacheTTL enables caching with a per-call TTL.
func WithContextCacheTTL(ctx context.Context, ttl time.Duration) context.Context {
	return context.WithValue(ctx, cacheControlKey, &CacheControl{Enabled: true, TTL: ttl})
}

func cacheControlFrom(ctx context.Context) (*CacheControl, bool) {
	cc, ok := ctx.Value(cacheControlKey).(*CacheControl)
	return cc, ok
}

// cachePipeline is the built-in pipeline that serves fresh entries via a
// Skip verdict and stores snapshots of cacheable results. It always runs
// first in the chain.
type cachePipeline struct {
	BasePipeline
	c *Client
}

func (p *cachePipeline) OnRequest(ctx context.Context, req *Request) (Verdict, error) {
	c := p.c
	if !c.cacheableRequest(ctx, req) {
		return Proceed(req), nil
	}

	key := c.cacheKeyFn(req)
	endpoint := req.endpoint()
	if entry, found := c.cache.Get(key); found {
		if c.metrics != nil {
			c.metrics.RecordCacheHit(req.Method(), endpoint)
		}
		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("Cache hit", "cacheKey", key)
		}
		return Skip(entry.Result.cachedCopy(req)), nil
	}

	if c.metrics != nil {
		c.metrics.RecordCacheMiss(req.Method(), endpoint)
	}
	if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
		c.logger.Debug("Cache miss", "cacheKey", key)
	}
	return Proceed(req), nil
}

func (p *cachePipeline) OnResult(ctx context.Context, res Response) (Response, error) {
	c := p.c
	result, ok := res.(*Result)
	if !ok || result.FromCache() {
		return res, nil
	}
	req := result.Request()
	if req == nil || !c.cacheableRequest(ctx, req) {
		return res, nil
	}
	if !c.canCache(res) {
		return res, nil
	}

	snap, err := result.Snapshot()
	if err != nil {
		return res, nil
	}

	key := c.cacheKeyFn(req)
	ttl := c.cacheTTLFor(ctx)
	c.cache.Set(key, &Entry{Result: snap, CreatedAt: time.Now(), TTL: ttl})

	if c.metrics != nil {
		if ms, ok := c.cache.(*MemoryStore); ok {
			c.metrics.RecordCacheSize("default", ms.Len())
		}
	}
	if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
		c.logger.Debug("Response cached", "cacheKey", key, "ttl", ttl)
	}
	return res, nil
}

// cacheableRequest reports whether this call participates in caching:
// a store is configured, the effective TTL is non-zero, the call is not
// streaming, and either the request condition or a context override allows
// it.
func (c *Client) cacheableRequest(ctx context.Context, req *Request) bool {
	if c.cache == nil || req.Streaming() {
		return false
	}
	if c.cacheTTLFor(ctx) <= 0 {
		return false
	}
	if cc, ok := cacheControlFrom(ctx); ok {
		return cc.Enabled
	}
	return c.cacheCondition(req)
}

// cacheTTLFor resolves the effective TTL, honoring a context override.
func (c *Client) cacheTTLFor(ctx context.Context) time.Duration {
	if cc, ok := cacheControlFrom(ctx); ok && cc.TTL > 0 {
		return cc.TTL
	}
	return c.cacheTTL
}

// ClearCache drops every cached entry.
func (c *Client) ClearCache() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

// RemoveCached evicts the GET entry for rawURL, resolved against the client's
// base URL the same way the verb methods resolve endpoints.
func (c *Client) RemoveCached(rawURL string) error {
	if c.cache == nil {
		return nil
	}
	req, err := c.newRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	c.cache.Delete(c.cacheKeyFn(req))
	return nil
}
