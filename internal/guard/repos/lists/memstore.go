package lists

import (
	"context"
	"sync"

	"github.com/haukened/navguard/internal/guard/common/clock"
	"github.com/haukened/navguard/internal/guard/domain"
)

// MemoryStore is an in-process Store. Contents are lost on exit.
type MemoryStore struct {
	mu      sync.RWMutex
	lists   map[domain.ListKey]domain.List
	markers map[string]string
	version uint64
	updated int64
	clock   clock.Clock
}

// NewMemoryStore returns an empty MemoryStore. A nil clock uses the wall clock.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &MemoryStore{
		lists:   make(map[domain.ListKey]domain.List),
		markers: make(map[string]string),
		clock:   clk,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key domain.ListKey) (domain.List, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lists[key].Clone(), nil
}

func (s *MemoryStore) Set(ctx context.Context, key domain.ListKey, list domain.List) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = list.Clone()
	s.version++
	s.updated = s.clock.Now().Unix()
	return nil
}

func (s *MemoryStore) Version(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version, nil
}

func (s *MemoryStore) Marker(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.markers[name], nil
}

func (s *MemoryStore) SetMarker(ctx context.Context, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[name] = value
	return nil
}

func (s *MemoryStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StoreStats{
		Version:     s.version,
		UpdatedUnix: s.updated,
		Blocklist:   len(s.lists[domain.Blocklist]),
		Whitelist:   len(s.lists[domain.Whitelist]),
	}
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
