// Package tabs remembers the most recent navigation of each tab so results for
// superseded navigations can be dropped.
package tabs

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/navguard/internal/guard/domain"
)

// DefaultSize bounds the number of tabs tracked when no size is configured.
const DefaultSize = 1024

// Tracker is an LRU-backed map of tab → latest navigation ID. Tabs beyond the
// capacity are evicted oldest-first; an evicted tab behaves like a closed one.
type Tracker struct {
	mu        sync.Mutex
	lru       *lru.Cache[domain.TabID, current]
	evictions atomic.Uint64
}

type current struct {
	navID string
	seq   uint64
}

// New creates a Tracker holding at most size tabs. size <= 0 uses DefaultSize.
func New(size int) (*Tracker, error) {
	if size <= 0 {
		size = DefaultSize
	}
	t := &Tracker{}
	cache, err := lru.NewWithEvict(size, func(_ domain.TabID, _ current) {
		t.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	t.lru = cache
	return t, nil
}

// Begin records navID as the tab's current navigation, superseding any earlier
// one. seq is the order the browser reported the navigation in: a navigation
// with a lower seq than the recorded one arrived late and is ignored. It
// reports whether navID became current.
func (t *Tracker) Begin(tab domain.TabID, navID string, seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.lru.Peek(tab); ok && seq < cur.seq {
		return false
	}
	t.lru.Add(tab, current{navID: navID, seq: seq})
	return true
}

// IsCurrent reports whether navID is still the tab's latest navigation.
// It returns false for tabs that were forgotten or evicted.
func (t *Tracker) IsCurrent(tab domain.TabID, navID string) bool {
	cur, ok := t.lru.Peek(tab)
	return ok && cur.navID == navID
}

// Forget drops a closed tab.
func (t *Tracker) Forget(tab domain.TabID) {
	t.mu.Lock()
	t.lru.Remove(tab)
	t.mu.Unlock()
}

// Len returns the number of tracked tabs.
func (t *Tracker) Len() int { return t.lru.Len() }

// Evictions returns how many tabs were dropped for capacity or by Forget.
func (t *Tracker) Evictions() uint64 { return t.evictions.Load() }
