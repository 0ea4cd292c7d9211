package lists

import (
	"context"

	"github.com/haukened/navguard/internal/guard/domain"
)

// Store is the durable key-value settings store holding the user-editable lists.
//   - Get returns an empty list (not an error) for a key that was never written.
//   - Set replaces the whole list and bumps Version in the same write.
//   - Marker/SetMarker keep small bookkeeping strings (e.g. the merged must-block digest).
type Store interface {
	Get(ctx context.Context, key domain.ListKey) (domain.List, error)
	Set(ctx context.Context, key domain.ListKey, list domain.List) error
	Version(ctx context.Context) (uint64, error)
	Marker(ctx context.Context, name string) (string, error)
	SetMarker(ctx context.Context, name, value string) error
	Stats() StoreStats
	Close() error
}

// BloomFilter is the minimal interface the snapshot needs from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds Bloom filters sized for capacity and target false-positive rate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}
