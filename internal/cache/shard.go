package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/prismcache/prismcache/internal/adapter"
)

// shard holds one slice of the cache's key space behind its own lock,
// per spec §5's "sharded map with per-shard lock" instruction. Each
// shard also owns an independent singleflight.Group so a stampede on
// one key never blocks producers running in a different shard.
type shard struct {
	mu       sync.RWMutex
	data     map[uint64]*entry
	capacity int
	group    singleflight.Group
}

func newShard(capacity int) *shard {
	return &shard{
		data:     make(map[uint64]*entry),
		capacity: capacity,
	}
}

// get returns the live (non-expired) entry for fingerprint, if any.
func (s *shard) get(fingerprint uint64, now time.Time) (adapter.EntityData, bool) {
	s.mu.RLock()
	e, ok := s.data[fingerprint]
	s.mu.RUnlock()
	if !ok || e.expired(now) {
		return adapter.EntityData{}, false
	}
	return e.record, true
}

// put inserts or replaces the entry for fingerprint, evicting first if
// the shard is at capacity.
func (s *shard) put(fingerprint uint64, record adapter.EntityData, ttl time.Duration, now time.Time) {
	e := &entry{record: record, insertedAt: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[fingerprint]; !exists && s.capacity > 0 && len(s.data) >= s.capacity {
		s.evictLocked(now)
	}
	s.data[fingerprint] = e
}

// evictLocked removes one entry to make room for an insert. It prefers
// the first expired entry it finds (approximate — the caller need not
// scan the whole shard every time in the common case where nothing is
// expired yet); failing that, it evicts the entry with the oldest
// insertedAt, breaking ties deterministically by the smaller
// fingerprint so that eviction order is reproducible under test even
// when two entries are inserted in the same clock tick.
//
// Callers must hold s.mu for writing.
func (s *shard) evictLocked(now time.Time) {
	var (
		expiredKey   uint64
		foundExpired bool

		oldestKey  uint64
		oldestAt   time.Time
		haveOldest bool
	)

	for k, e := range s.data {
		if e.expired(now) {
			expiredKey = k
			foundExpired = true
			break
		}
		if !haveOldest || e.insertedAt.Before(oldestAt) || (e.insertedAt.Equal(oldestAt) && k < oldestKey) {
			oldestKey = k
			oldestAt = e.insertedAt
			haveOldest = true
		}
	}

	if foundExpired {
		delete(s.data, expiredKey)
		return
	}
	if haveOldest {
		delete(s.data, oldestKey)
	}
}

// len returns the number of entries currently held, live or expired.
func (s *shard) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
