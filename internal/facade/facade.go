// Package facade composes the cache and the provider registry into the
// single read path GET and HGET both run through (spec §4.8): parse
// the key, resolve the provider, check the cache, and on a miss let
// exactly one adapter call through per key while concurrent callers
// wait on the result.
//
// No single teacher file does exactly this three-way composition; it
// is Prism Cache's own glue, built in the shape of the teacher's
// Client.GetWithTtl ("check cache, else run one producer through
// single-flight, else publish the result to waiters").
package facade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prismcache/prismcache/internal/adapter"
	"github.com/prismcache/prismcache/internal/cache"
	"github.com/prismcache/prismcache/internal/registry"
)

// ErrUnknownProvider is returned when a key's provider prefix has no
// registered adapter.
var ErrUnknownProvider = errors.New("facade: unknown provider")

// ErrInvalidKey is returned when a key does not contain the
// "provider:id" separator required by spec §4.8.
var ErrInvalidKey = errors.New("facade: key must be of the form provider:id")

// Facade is the storage facade: cache plus registry, plus the default
// TTL applied to entries it fills and the per-request deadline each
// adapter fetch runs under.
type Facade struct {
	cache        *cache.Cache
	registry     *registry.Registry
	defaultTTL   time.Duration
	fetchTimeout time.Duration
}

// New returns a Facade backed by c and reg. Each adapter fetch is
// bounded by fetchTimeout (spec §5): on expiry, the single-flight
// producer for that key is canceled, every waiter gets the timeout
// error, and the key is left unpopulated so the next request retries.
func New(c *cache.Cache, reg *registry.Registry, defaultTTL, fetchTimeout time.Duration) *Facade {
	return &Facade{cache: c, registry: reg, defaultTTL: defaultTTL, fetchTimeout: fetchTimeout}
}

// ParseKey splits key into its provider prefix and id. Only the first
// colon is significant: everything after it belongs to the id, so ids
// that themselves contain colons (e.g. composite keys) round-trip
// correctly.
func ParseKey(key string) (provider, id string, err error) {
	i := strings.IndexByte(key, ':')
	if i <= 0 || i == len(key)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return key[:i], key[i+1:], nil
}

// Get returns the full record addressed by key ("provider:id"). The
// returned bool reports whether the id exists upstream; a false with a
// nil error is a well-formed miss, not a failure.
//
// Per the resolution of spec.md's partial-field-caching open question,
// Get always fetches and caches the adapter's full field set on a cold
// key — callers that only need a subset use HGet, which projects after
// the fact instead of asking adapters to cache partial records.
func (f *Facade) Get(ctx context.Context, key string) (adapter.EntityData, bool, error) {
	full, err := f.fetch(ctx, key)
	if err != nil {
		return adapter.EntityData{}, false, err
	}
	return full, !full.Empty(), nil
}

// HGet returns a single field's value from the record addressed by
// key. The returned bool is false both when the id doesn't exist and
// when it exists but lacks field.
func (f *Facade) HGet(ctx context.Context, key, field string) (string, bool, error) {
	full, err := f.fetch(ctx, key)
	if err != nil {
		return "", false, err
	}
	if full.Empty() {
		return "", false, nil
	}
	return full.Get(field)
}

// fetch resolves key to a provider, then returns its cached-or-filled
// full record.
func (f *Facade) fetch(ctx context.Context, key string) (adapter.EntityData, error) {
	provider, id, err := ParseKey(key)
	if err != nil {
		return adapter.EntityData{}, err
	}

	adp, ok := f.registry.Resolve(provider)
	if !ok {
		return adapter.EntityData{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	return f.cache.GetOrFill(ctx, key, f.defaultTTL, func(ctx context.Context) (adapter.EntityData, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
		defer cancel()
		return adp.FetchFields(fetchCtx, provider, id, nil)
	})
}
