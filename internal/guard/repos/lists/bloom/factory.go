// Package bloom adapts bits-and-blooms Bloom filters to the lists.BloomFactory
// interface used as the snapshot pre-filter.
package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/navguard/internal/guard/repos/lists"
)

const (
	minCapacity = 16
	defaultFPR  = 0.01
)

type factory struct{}

// NewFactory returns a BloomFactory sized from capacity and false-positive rate.
func NewFactory() lists.BloomFactory { return factory{} }

// New builds a filter for capacity entries at fpRate. Out-of-range inputs
// fall back to a small filter at 1%.
func (factory) New(capacity uint64, fpRate float64) lists.BloomFilter {
	if capacity < minCapacity {
		capacity = minCapacity
	}
	if !(fpRate > 0 && fpRate < 1) {
		fpRate = defaultFPR
	}
	m, k := bitsbloom.EstimateParameters(uint(capacity), fpRate)
	return &filter{bf: bitsbloom.New(m, k)}
}
