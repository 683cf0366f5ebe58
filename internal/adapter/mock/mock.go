// Package mock implements the synthetic "mock" DatabaseAdapter kind
// (spec §4.4): a deterministic, formula-derived data set useful for
// smoke tests and the worked examples in spec §8. It never talks to a
// real backend and never fails.
package mock

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prismcache/prismcache/internal/adapter"
)

// Adapter serves records for ids in [0, SampleSize) and reports "no
// such id" for anything outside that range. Field values are pure
// functions of id, so two mock adapters with the same SampleSize always
// agree.
type Adapter struct {
	sampleSize int
}

// New returns a mock adapter covering ids 0..sampleSize-1. A
// non-positive sampleSize is treated as zero (every id misses).
func New(sampleSize int) *Adapter {
	if sampleSize < 0 {
		sampleSize = 0
	}
	return &Adapter{sampleSize: sampleSize}
}

// FetchFields implements adapter.Adapter. entity is ignored: the mock
// kind exposes exactly one synthetic collection.
func (a *Adapter) FetchFields(_ context.Context, _ string, id string, fields []string) (adapter.EntityData, error) {
	n, err := strconv.Atoi(id)
	if err != nil || n < 0 || n >= a.sampleSize {
		return adapter.NewEntityData(), nil
	}

	full := adapter.NewEntityData()
	full.Set("id", id)
	full.Set("name", fmt.Sprintf("user_%s", id))
	full.Set("email", fmt.Sprintf("user_%s@example.com", id))

	return full.Project(fields), nil
}

// Close is a no-op: the mock adapter owns no backend connections.
func (a *Adapter) Close() error {
	return nil
}
