package cache

import (
	"time"

	"github.com/prismcache/prismcache/internal/adapter"
)

// entry is one cached record. It mirrors the shape of the teacher's
// ValueBytesExpiredAt{ValueBytes []byte; ExpiredAt int64}, generalized
// from an opaque byte blob to a typed EntityData and from a unix
// timestamp to a time.Time, plus insertedAt for eviction ordering.
type entry struct {
	record     adapter.EntityData
	insertedAt time.Time
	expiresAt  time.Time
}

// expired reports whether the entry's TTL has elapsed as of now.
func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}
