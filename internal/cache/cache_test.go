package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismcache/prismcache/internal/adapter"
)

func record(id string) adapter.EntityData {
	e := adapter.NewEntityData()
	e.Set("id", id)
	return e
}

func TestGetOrFill_CachesAcrossCalls(t *testing.T) {
	c := New(Options{Shards: 4, DefaultTTL: time.Minute}, nil)
	var calls int32

	fill := func(ctx context.Context) (adapter.EntityData, error) {
		atomic.AddInt32(&calls, 1)
		return record("42"), nil
	}

	got, err := c.GetOrFill(context.Background(), "mock:42", 0, fill)
	require.NoError(t, err)
	v, _ := got.Get("id")
	assert.Equal(t, "42", v)

	got, err = c.GetOrFill(context.Background(), "mock:42", 0, fill)
	require.NoError(t, err)
	v, _ = got.Get("id")
	assert.Equal(t, "42", v)

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "fill should run once, second call is a hit")
}

func TestGetOrFill_CoalescesConcurrentMiss(t *testing.T) {
	c := New(Options{Shards: 4, DefaultTTL: time.Minute}, nil)
	var calls int32
	release := make(chan struct{})

	fill := func(ctx context.Context) (adapter.EntityData, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return record("7"), nil
	}

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := c.GetOrFill(context.Background(), "mock:7", 0, fill)
			assert.NoError(t, err)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "concurrent misses for the same key must coalesce")
}

func TestGetOrFill_ExpiredEntryRefills(t *testing.T) {
	c := New(Options{Shards: 4}, nil)
	var calls int32

	fill := func(ctx context.Context) (adapter.EntityData, error) {
		atomic.AddInt32(&calls, 1)
		return record("1"), nil
	}

	_, err := c.GetOrFill(context.Background(), "mock:1", 10*time.Millisecond, fill)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = c.GetOrFill(context.Background(), "mock:1", 10*time.Millisecond, fill)
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "expired entry should trigger a fresh fill")
}

func TestGetOrFill_PropagatesFillError(t *testing.T) {
	c := New(Options{Shards: 1}, nil)
	boom := errors.New("backend unavailable")

	_, err := c.GetOrFill(context.Background(), "mock:x", time.Minute, func(ctx context.Context) (adapter.EntityData, error) {
		return adapter.EntityData{}, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len(), "a failed fill must not be cached")
}

func TestShard_EvictsOldestWhenAtCapacity(t *testing.T) {
	s := newShard(2)
	now := time.Now()

	s.put(1, record("a"), time.Minute, now)
	s.put(2, record("b"), time.Minute, now.Add(time.Millisecond))
	s.put(3, record("c"), time.Minute, now.Add(2*time.Millisecond))

	assert.LessOrEqual(t, s.len(), 2)
	_, ok := s.get(1, now.Add(3*time.Millisecond))
	assert.False(t, ok, "oldest entry should have been evicted")
}

func TestInvalidate_RemovesEntry(t *testing.T) {
	c := New(Options{Shards: 4, DefaultTTL: time.Minute}, nil)
	_, err := c.GetOrFill(context.Background(), "mock:9", 0, func(ctx context.Context) (adapter.EntityData, error) {
		return record("9"), nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	c.Invalidate("mock:9")
	assert.Equal(t, 0, c.Len())
}
