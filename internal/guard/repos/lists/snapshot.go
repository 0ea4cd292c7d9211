package lists

import (
	"sort"
	"strings"

	"github.com/haukened/navguard/internal/guard/domain"
)

// DefaultFalsePositiveRate is the Bloom filter target used when none is configured.
const DefaultFalsePositiveRate = 0.01

// PatternSet is a compiled, read-only set of match patterns. Match has the
// same semantics as domain.Matches: case-insensitive substring containment.
//
// Every window of the lower-cased URL whose length equals some pattern length
// is tested against the Bloom filter (definitely-negative windows are skipped)
// and then confirmed against the exact set, so results never differ from a
// linear scan.
type PatternSet struct {
	exact   map[string]struct{}
	lengths []int
	bloom   BloomFilter
}

// compilePatternSet lower-cases and de-duplicates the patterns of every list.
// factory may be nil, in which case only the exact set is consulted.
func compilePatternSet(factory BloomFactory, fpRate float64, lists ...[]string) *PatternSet {
	ps := &PatternSet{exact: make(map[string]struct{})}
	seenLen := make(map[int]struct{})
	for _, l := range lists {
		for _, p := range l {
			if p == "" {
				continue
			}
			lp := strings.ToLower(p)
			if _, ok := ps.exact[lp]; ok {
				continue
			}
			ps.exact[lp] = struct{}{}
			if _, ok := seenLen[len(lp)]; !ok {
				seenLen[len(lp)] = struct{}{}
				ps.lengths = append(ps.lengths, len(lp))
			}
		}
	}
	sort.Ints(ps.lengths)
	if factory != nil && len(ps.exact) > 0 {
		bf := factory.New(uint64(len(ps.exact)), fpRate)
		for p := range ps.exact {
			bf.Add([]byte(p))
		}
		ps.bloom = bf
	}
	return ps
}

// Len returns the number of distinct patterns.
func (ps *PatternSet) Len() int {
	if ps == nil {
		return 0
	}
	return len(ps.exact)
}

// Match reports whether any pattern occurs in url.
func (ps *PatternSet) Match(url string) bool {
	if ps.Len() == 0 {
		return false
	}
	lower := strings.ToLower(url)
	for _, n := range ps.lengths {
		if n > len(lower) {
			break
		}
		for i := 0; i+n <= len(lower); i++ {
			window := lower[i : i+n]
			if ps.bloom != nil && !ps.bloom.MightContain([]byte(window)) {
				continue
			}
			if _, ok := ps.exact[window]; ok {
				return true
			}
		}
	}
	return false
}

// Snapshot is an immutable view of the lists compiled for matching.
type Snapshot struct {
	Version   uint64
	Whitelist domain.List
	Blocklist domain.List
	allow     *PatternSet
	deny      *PatternSet
}

func newSnapshot(version uint64, policy domain.Policy, white, black domain.List, factory BloomFactory, fpRate float64) *Snapshot {
	return &Snapshot{
		Version:   version,
		Whitelist: white,
		Blocklist: black,
		allow:     compilePatternSet(factory, fpRate, policy.DefaultSafe, white),
		deny:      compilePatternSet(factory, fpRate, black),
	}
}

// Allowed reports whether url matches the default-safe set or the whitelist.
func (s *Snapshot) Allowed(url string) bool { return s.allow.Match(url) }

// Denied reports whether url matches the blocklist.
func (s *Snapshot) Denied(url string) bool { return s.deny.Match(url) }
