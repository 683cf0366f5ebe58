// Package cache implements Prism Cache's bounded, TTL-based, in-process
// cache: the component spec §4.2 describes as "a sharded map with
// approximate LRU eviction and single-flight coalescing of concurrent
// fills for the same key."
//
// The shape is grounded on iiivansss84-dcache's Client.GetWithTtl: check
// the cache, and if the key is missing or expired, run exactly one
// producer per key through singleflight.Group while every other caller
// for that key waits on the same call. That teacher used a single
// flat freecache-backed store and singleflight.Group; here the store is
// a hand-rolled sharded map (freecache's ring-buffer eviction order is
// opaque and can't satisfy the deterministic eviction spec §4.2 and
// spec §8's property P1 require), and every shard gets its own
// singleflight.Group so unrelated keys never serialize behind one
// another.
package cache

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/prismcache/prismcache/internal/adapter"
)

// Options configures a Cache at construction time.
type Options struct {
	// Shards is the number of independent shards. Shards are picked by
	// masking the fingerprint, so a value that is not a power of two is
	// rounded up to the next power of two; zero or a negative value
	// means DefaultShards.
	Shards int
	// CapacityPerShard bounds the number of live entries each shard may
	// hold before it starts evicting. Zero means unbounded.
	CapacityPerShard int
	// DefaultTTL is used when a caller does not specify its own TTL.
	DefaultTTL time.Duration
}

// DefaultShards matches the teacher's implicit single-store fan-out
// widened to a sensible default shard count for a general-purpose
// proxy cache.
const DefaultShards = 32

// Cache is the process's single in-memory cache (spec §9: one of the
// two permitted singletons, the other being the provider registry).
type Cache struct {
	shards     []*shard
	shardMask  uint64
	defaultTTL time.Duration

	hits   prometheus.Counter
	misses prometheus.Counter
	fills  prometheus.Counter
}

// New returns a Cache. If reg is non-nil, hit/miss/fill counters are
// registered against it, mirroring the teacher's NewCache registering
// its MetricSet with a prometheus.Registerer.
func New(opts Options, reg prometheus.Registerer) *Cache {
	n := opts.Shards
	if n <= 0 {
		n = DefaultShards
	}
	n = nextPowerOfTwo(n)

	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = newShard(opts.CapacityPerShard)
	}

	c := &Cache{
		shards:     shards,
		shardMask:  uint64(n - 1),
		defaultTTL: opts.DefaultTTL,
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prismcache_cache_hits_total",
			Help: "Number of cache lookups served from memory.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prismcache_cache_misses_total",
			Help: "Number of cache lookups that required a fill.",
		}),
		fills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prismcache_cache_fills_total",
			Help: "Number of backend fills executed (post single-flight coalescing).",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{c.hits, c.misses, c.fills} {
			if err := reg.Register(c); err != nil {
				log.Warn().Err(err).Msg("cache: metric already registered, skipping")
			}
		}
	}

	return c
}

// Fingerprint returns the stable FNV-1a hash of key used to pick a
// shard and identify an entry within it.
func Fingerprint(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}

func (c *Cache) shardFor(fingerprint uint64) *shard {
	return c.shards[fingerprint&c.shardMask]
}

// Fill produces the EntityData for a cold key. Implementations are
// expected to be idempotent: singleflight coalescing guarantees at
// most one concurrent Fill call per fingerprint per shard, but a Fill
// that times out independently of its waiters can still run again on
// the next request.
type Fill func(ctx context.Context) (adapter.EntityData, error)

// GetOrFill returns the cached record for key if live, else runs fill
// exactly once per set of concurrent callers (singleflight) and caches
// the result for ttl (or the cache's DefaultTTL if ttl is zero).
//
// As in the teacher's GetWithTtl: if the request that is actually
// running fill is canceled or times out, every request waiting on it
// fails too, even if their own contexts are still live. Keep per-call
// context deadlines consistent across callers that share a key if this
// matters for your workload.
func (c *Cache) GetOrFill(ctx context.Context, key string, ttl time.Duration, fill Fill) (adapter.EntityData, error) {
	fp := Fingerprint(key)
	s := c.shardFor(fp)
	now := time.Now()

	if record, ok := s.get(fp, now); ok {
		c.hits.Inc()
		return record, nil
	}
	c.misses.Inc()

	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		c.fills.Inc()
		record, err := fill(ctx)
		if err != nil {
			return adapter.EntityData{}, err
		}
		effectiveTTL := ttl
		if effectiveTTL <= 0 {
			effectiveTTL = c.defaultTTL
		}
		s.put(fp, record, effectiveTTL, time.Now())
		return record, nil
	})
	if err != nil {
		return adapter.EntityData{}, err
	}
	return result.(adapter.EntityData), nil
}

// Invalidate removes key's entry, if present. The facade does not call
// it; entries otherwise leave the cache only by TTL expiry or eviction.
func (c *Cache) Invalidate(key string) {
	fp := Fingerprint(key)
	s := c.shardFor(fp)
	s.mu.Lock()
	delete(s.data, fp)
	s.mu.Unlock()
}

// Len returns the total number of live-or-expired entries held across
// all shards, for tests and diagnostics.
func (c *Cache) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.len()
	}
	return total
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
