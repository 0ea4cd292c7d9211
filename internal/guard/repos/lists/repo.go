package lists

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/haukened/navguard/internal/guard/common/log"
	"github.com/haukened/navguard/internal/guard/domain"
)

// ErrEmptyPattern is returned when adding a blank pattern.
var ErrEmptyPattern = errors.New("pattern must not be empty")

// markerMustBlock stores the digest of the last must-block set merged into the blocklist.
const markerMustBlock = "mustblock_digest"

// Repository composes a Store with the immutable Policy. It owns must-block
// reconciliation, list editing and the compiled snapshot used for matching.
//
// Edits are read-modify-write against the store. The repository serializes its
// own editors, but concurrent writers outside this process are last-writer-wins.
type Repository struct {
	editMu  sync.Mutex
	store   Store
	policy  domain.Policy
	factory BloomFactory
	fpRate  float64
	logger  log.Logger

	snapMu   sync.RWMutex
	snap     *Snapshot
	compiles atomic.Uint64
}

// Options configures a Repository. Store is required; a nil Logger discards logs
// and a nil BloomFactory disables the Bloom pre-filter.
type Options struct {
	Store        Store
	Policy       domain.Policy
	BloomFactory BloomFactory
	FPRate       float64
	Logger       log.Logger
}

// NewRepository constructs a Repository.
func NewRepository(opts Options) (*Repository, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("list store is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if !(opts.FPRate > 0 && opts.FPRate < 1) {
		opts.FPRate = DefaultFalsePositiveRate
	}
	return &Repository{
		store:   opts.Store,
		policy:  opts.Policy,
		factory: opts.BloomFactory,
		fpRate:  opts.FPRate,
		logger:  opts.Logger,
	}, nil
}

// Reconcile merges the policy's must-block set into the persisted blocklist
// unless this exact set was merged before. The merge is a set union: existing
// entries, including user additions, are kept. It returns the number of
// entries added. Safe to call repeatedly.
func (r *Repository) Reconcile(ctx context.Context) (int, error) {
	r.editMu.Lock()
	defer r.editMu.Unlock()

	digest := r.policy.MustBlockDigest()
	merged, err := r.store.Marker(ctx, markerMustBlock)
	if err != nil {
		return 0, fmt.Errorf("read reconcile marker: %w", err)
	}
	if merged == digest {
		r.logger.Debug(map[string]any{"digest": digest}, "Must-block set already merged")
		return 0, nil
	}

	current, err := r.store.Get(ctx, domain.Blocklist)
	if err != nil {
		return 0, fmt.Errorf("read blocklist: %w", err)
	}
	union := current.Union(r.policy.MustBlock)
	added := len(union) - len(current)
	if added > 0 {
		if err := r.store.Set(ctx, domain.Blocklist, union); err != nil {
			return 0, fmt.Errorf("write blocklist: %w", err)
		}
	}
	if err := r.store.SetMarker(ctx, markerMustBlock, digest); err != nil {
		return added, fmt.Errorf("write reconcile marker: %w", err)
	}

	r.logger.Info(map[string]any{
		"added":     added,
		"blocklist": len(union),
		"digest":    digest,
	}, "Must-block set merged into blocklist")
	return added, nil
}

// List returns the current contents of a list. Keys are parsed with
// domain.ParseListKey, so "Whitelist" and "whitelist" name the same list.
func (r *Repository) List(ctx context.Context, key domain.ListKey) (domain.List, error) {
	key, err := domain.ParseListKey(string(key))
	if err != nil {
		return nil, err
	}
	return r.store.Get(ctx, key)
}

// Add appends site to the list unless it is already present and returns the
// resulting list. Surrounding whitespace is trimmed first.
func (r *Repository) Add(ctx context.Context, key domain.ListKey, site string) (domain.List, error) {
	key, err := domain.ParseListKey(string(key))
	if err != nil {
		return nil, err
	}
	site = strings.TrimSpace(site)
	if site == "" {
		return nil, ErrEmptyPattern
	}

	r.editMu.Lock()
	defer r.editMu.Unlock()

	current, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	next, changed := current.With(site)
	if !changed {
		r.logger.Debug(map[string]any{"list": key, "site": site}, "Pattern already present")
		return next, nil
	}
	if err := r.store.Set(ctx, key, next); err != nil {
		return nil, fmt.Errorf("write %s: %w", key, err)
	}
	r.logger.Info(map[string]any{"list": key, "site": site, "size": len(next)}, "Pattern added")
	return next, nil
}

// Remove deletes the entry at index and returns the resulting list.
func (r *Repository) Remove(ctx context.Context, key domain.ListKey, index int) (domain.List, error) {
	key, err := domain.ParseListKey(string(key))
	if err != nil {
		return nil, err
	}

	r.editMu.Lock()
	defer r.editMu.Unlock()

	current, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	next, err := current.Without(index)
	if err != nil {
		return nil, err
	}
	if err := r.store.Set(ctx, key, next); err != nil {
		return nil, fmt.Errorf("write %s: %w", key, err)
	}
	r.logger.Info(map[string]any{"list": key, "removed": current[index], "size": len(next)}, "Pattern removed")
	return next, nil
}

// RequestWhitelist handles an unblock request from the interstitial page: the
// site is appended to the whitelist if absent. It returns once the write is
// durable and never triggers a navigation itself.
func (r *Repository) RequestWhitelist(ctx context.Context, site string) (domain.List, error) {
	return r.Add(ctx, domain.Whitelist, site)
}

// Snapshot returns the compiled lists for matching. The store version is read
// on every call and the snapshot is recompiled only when it moved. Store
// errors are returned unchanged so the caller can choose its failure policy.
func (r *Repository) Snapshot(ctx context.Context) (*Snapshot, error) {
	version, err := r.store.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("read list version: %w", err)
	}

	r.snapMu.RLock()
	cached := r.snap
	r.snapMu.RUnlock()
	if cached != nil && cached.Version == version {
		return cached, nil
	}

	white, err := r.store.Get(ctx, domain.Whitelist)
	if err != nil {
		return nil, fmt.Errorf("read whitelist: %w", err)
	}
	black, err := r.store.Get(ctx, domain.Blocklist)
	if err != nil {
		return nil, fmt.Errorf("read blocklist: %w", err)
	}
	snap := newSnapshot(version, r.policy, white, black, r.factory, r.fpRate)
	r.compiles.Add(1)

	r.snapMu.Lock()
	if r.snap == nil || r.snap.Version <= version {
		r.snap = snap
	}
	r.snapMu.Unlock()

	r.logger.Debug(map[string]any{
		"version":   version,
		"whitelist": len(white),
		"blocklist": len(black),
	}, "List snapshot compiled")
	return snap, nil
}

// RepoStats returns repository counters and store stats.
func (r *Repository) RepoStats() RepoStats {
	st := RepoStats{Store: r.store.Stats(), Compiles: r.compiles.Load()}
	r.snapMu.RLock()
	if r.snap != nil {
		st.SnapshotVersion = r.snap.Version
	}
	r.snapMu.RUnlock()
	return st
}
