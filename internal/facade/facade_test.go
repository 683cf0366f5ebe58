package facade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismcache/prismcache/internal/adapter"
	"github.com/prismcache/prismcache/internal/cache"
	"github.com/prismcache/prismcache/internal/registry"

	mockadapter "github.com/prismcache/prismcache/internal/adapter/mock"
)

// blockingAdapter never returns until its context is canceled, letting
// tests observe the facade's own fetch timeout rather than relying on
// a real backend's latency.
type blockingAdapter struct{}

func (blockingAdapter) FetchFields(ctx context.Context, _, _ string, _ []string) (adapter.EntityData, error) {
	<-ctx.Done()
	return adapter.EntityData{}, ctx.Err()
}

func (blockingAdapter) Close() error { return nil }

func newTestFacade(sampleSize int) *Facade {
	reg := registry.NewBuilder().
		Add("users", "mock", mockadapter.New(sampleSize)).
		Build()
	c := cache.New(cache.Options{Shards: 4, DefaultTTL: time.Minute}, nil)
	return New(c, reg, time.Minute, 5*time.Second)
}

func TestParseKey(t *testing.T) {
	provider, id, err := ParseKey("users:42")
	require.NoError(t, err)
	assert.Equal(t, "users", provider)
	assert.Equal(t, "42", id)
}

func TestParseKey_IDWithColon(t *testing.T) {
	provider, id, err := ParseKey("users:shard:42")
	require.NoError(t, err)
	assert.Equal(t, "users", provider)
	assert.Equal(t, "shard:42", id)
}

func TestParseKey_Invalid(t *testing.T) {
	_, _, err := ParseKey("noprovider")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestGet_Hit(t *testing.T) {
	f := newTestFacade(100)

	data, found, err := f.Get(context.Background(), "users:1")
	require.NoError(t, err)
	require.True(t, found)

	name, _ := data.Get("name")
	assert.Equal(t, "user_1", name)
}

func TestGet_Miss(t *testing.T) {
	f := newTestFacade(10)

	_, found, err := f.Get(context.Background(), "users:999")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGet_UnknownProvider(t *testing.T) {
	f := newTestFacade(10)

	_, _, err := f.Get(context.Background(), "ghosts:1")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestHGet_SingleField(t *testing.T) {
	f := newTestFacade(10)

	v, found, err := f.HGet(context.Background(), "users:3", "email")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "user_3@example.com", v)
}

func TestHGet_MissingField(t *testing.T) {
	f := newTestFacade(10)

	_, found, err := f.HGet(context.Background(), "users:3", "nonexistent")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHGet_MissingID(t *testing.T) {
	f := newTestFacade(10)

	_, found, err := f.HGet(context.Background(), "users:999", "email")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGet_AdapterFetchTimesOut(t *testing.T) {
	reg := registry.NewBuilder().
		Add("slow", "mock", blockingAdapter{}).
		Build()
	c := cache.New(cache.Options{Shards: 4, DefaultTTL: time.Minute}, nil)
	f := New(c, reg, time.Minute, 10*time.Millisecond)

	start := time.Now()
	_, _, err := f.Get(context.Background(), "slow:1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "facade must enforce its own fetch timeout, not hang on the adapter")
}
