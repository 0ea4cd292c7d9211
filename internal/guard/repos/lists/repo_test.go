package lists

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/navguard/internal/guard/domain"
)

// --- fakes ---

// failingStore wraps a MemoryStore and injects errors per operation.
type failingStore struct {
	*MemoryStore
	getErr, setErr, versionErr, markerErr, setMarkerErr error
	setCalls                                            int
}

func newFailingStore() *failingStore { return &failingStore{MemoryStore: NewMemoryStore(nil)} }

func (s *failingStore) Get(ctx context.Context, key domain.ListKey) (domain.List, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *failingStore) Set(ctx context.Context, key domain.ListKey, l domain.List) error {
	s.setCalls++
	if s.setErr != nil {
		return s.setErr
	}
	return s.MemoryStore.Set(ctx, key, l)
}

func (s *failingStore) Version(ctx context.Context) (uint64, error) {
	if s.versionErr != nil {
		return 0, s.versionErr
	}
	return s.MemoryStore.Version(ctx)
}

func (s *failingStore) Marker(ctx context.Context, name string) (string, error) {
	if s.markerErr != nil {
		return "", s.markerErr
	}
	return s.MemoryStore.Marker(ctx, name)
}

func (s *failingStore) SetMarker(ctx context.Context, name, value string) error {
	if s.setMarkerErr != nil {
		return s.setMarkerErr
	}
	return s.MemoryStore.SetMarker(ctx, name, value)
}

type fakeBloom struct {
	keys  map[string]bool
	tests int
}

func (b *fakeBloom) Add(key []byte) { b.keys[string(key)] = true }
func (b *fakeBloom) MightContain(key []byte) bool {
	b.tests++
	return b.keys[string(key)]
}

type fakeFactory struct {
	mu       sync.Mutex
	newCalls int
	lastCap  uint64
	lastFP   float64
	built    []*fakeBloom
}

func (f *fakeFactory) New(capacity uint64, fpRate float64) BloomFilter {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newCalls++
	f.lastCap = capacity
	f.lastFP = fpRate
	b := &fakeBloom{keys: make(map[string]bool)}
	f.built = append(f.built, b)
	return b
}

func testPolicy() domain.Policy {
	p := domain.DefaultPolicy()
	p.DefaultSafe = []string{"google.com", "wikipedia.org"}
	p.MustBlock = []string{"roblox.com", "minecraft.net"}
	return p
}

func newTestRepo(t *testing.T, store Store) *Repository {
	t.Helper()
	repo, err := NewRepository(Options{Store: store, Policy: testPolicy()})
	require.NoError(t, err)
	return repo
}

// --- tests ---

func TestNewRepository_RequiresStore(t *testing.T) {
	_, err := NewRepository(Options{})
	assert.Error(t, err)
}

func TestNewRepository_DefaultsFPRate(t *testing.T) {
	repo, err := NewRepository(Options{Store: NewMemoryStore(nil), FPRate: 3})
	require.NoError(t, err)
	assert.Equal(t, DefaultFalsePositiveRate, repo.fpRate)
}

func TestReconcile_FirstRunMergesMustBlock(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	require.NoError(t, store.Set(ctx, domain.Blocklist, domain.List{"custom.example", "roblox.com"}))
	repo := newTestRepo(t, store)

	added, err := repo.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	bl, err := store.Get(ctx, domain.Blocklist)
	require.NoError(t, err)
	assert.Equal(t, domain.List{"custom.example", "roblox.com", "minecraft.net"}, bl)
	for _, must := range testPolicy().MustBlock {
		assert.Contains(t, bl, must)
	}
}

func TestReconcile_RunsOncePerRevision(t *testing.T) {
	ctx := context.Background()
	store := newFailingStore()
	repo := newTestRepo(t, store)

	_, err := repo.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, store.setCalls)

	// user removes a must-block entry; a restart with the same policy keeps it removed
	_, err = repo.Remove(ctx, domain.Blocklist, 0)
	require.NoError(t, err)
	added, err := repo.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, 2, store.setCalls)

	// a new policy revision merges again
	p := testPolicy()
	p.MustBlock = append(p.MustBlock, "discord.com")
	updated, err := NewRepository(Options{Store: store, Policy: p})
	require.NoError(t, err)
	added, err = updated.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	bl, _ := store.Get(ctx, domain.Blocklist)
	assert.ElementsMatch(t, []string{"roblox.com", "minecraft.net", "discord.com"}, bl)
}

func TestReconcile_NothingToAddStillRecordsMarker(t *testing.T) {
	ctx := context.Background()
	store := newFailingStore()
	require.NoError(t, store.MemoryStore.Set(ctx, domain.Blocklist, domain.List{"minecraft.net", "roblox.com"}))
	repo := newTestRepo(t, store)

	added, err := repo.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, 0, store.setCalls)

	marker, _ := store.Marker(ctx, markerMustBlock)
	assert.Equal(t, testPolicy().MustBlockDigest(), marker)
}

func TestReconcile_Errors(t *testing.T) {
	boom := errors.New("disk on fire")
	tests := []struct {
		name   string
		mutate func(*failingStore)
	}{
		{"marker read", func(s *failingStore) { s.markerErr = boom }},
		{"blocklist read", func(s *failingStore) { s.getErr = boom }},
		{"blocklist write", func(s *failingStore) { s.setErr = boom }},
		{"marker write", func(s *failingStore) { s.setMarkerErr = boom }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFailingStore()
			tt.mutate(store)
			repo := newTestRepo(t, store)
			_, err := repo.Reconcile(context.Background())
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestAdd_IdempotentAndTrimmed(t *testing.T) {
	ctx := context.Background()
	store := newFailingStore()
	repo := newTestRepo(t, store)

	l, err := repo.Add(ctx, domain.Blocklist, "  example.com ")
	require.NoError(t, err)
	assert.Equal(t, domain.List{"example.com"}, l)

	l, err = repo.Add(ctx, domain.Blocklist, "example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.List{"example.com"}, l)
	assert.Equal(t, 1, store.setCalls, "duplicate add must not write")
}

func TestAdd_Validation(t *testing.T) {
	repo := newTestRepo(t, NewMemoryStore(nil))

	_, err := repo.Add(context.Background(), domain.Whitelist, "   ")
	assert.ErrorIs(t, err, ErrEmptyPattern)

	_, err = repo.Add(context.Background(), "greylist", "x.com")
	assert.ErrorIs(t, err, domain.ErrUnknownList)
}

func TestAdd_StoreErrors(t *testing.T) {
	boom := errors.New("boom")

	store := newFailingStore()
	store.getErr = boom
	_, err := newTestRepo(t, store).Add(context.Background(), domain.Blocklist, "x.com")
	assert.ErrorIs(t, err, boom)

	store = newFailingStore()
	store.setErr = boom
	_, err = newTestRepo(t, store).Add(context.Background(), domain.Blocklist, "x.com")
	assert.ErrorIs(t, err, boom)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, NewMemoryStore(nil))
	for _, s := range []string{"a.com", "b.com", "c.com"} {
		_, err := repo.Add(ctx, domain.Whitelist, s)
		require.NoError(t, err)
	}

	l, err := repo.Remove(ctx, domain.Whitelist, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.List{"a.com", "c.com"}, l)

	_, err = repo.Remove(ctx, domain.Whitelist, 5)
	assert.ErrorIs(t, err, domain.ErrIndexOutOfRange)

	_, err = repo.Remove(ctx, "other", 0)
	assert.ErrorIs(t, err, domain.ErrUnknownList)
}

func TestRequestWhitelist(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, NewMemoryStore(nil))

	got, err := repo.RequestWhitelist(ctx, "https://randomsite.biz/")
	require.NoError(t, err)
	assert.Equal(t, domain.List{"https://randomsite.biz/"}, got)
	_, err = repo.RequestWhitelist(ctx, "https://randomsite.biz/")
	require.NoError(t, err)

	wl, err := repo.List(ctx, domain.Whitelist)
	require.NoError(t, err)
	assert.Equal(t, domain.List{"https://randomsite.biz/"}, wl)

	_, err = repo.RequestWhitelist(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyPattern)
}

func TestListKeys_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, NewMemoryStore(nil))

	got, err := repo.Add(ctx, "Whitelist", "randomsite.biz")
	require.NoError(t, err)
	assert.Equal(t, domain.List{"randomsite.biz"}, got)

	wl, err := repo.List(ctx, domain.Whitelist)
	require.NoError(t, err)
	assert.Equal(t, domain.List{"randomsite.biz"}, wl)

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Allowed("https://randomsite.biz/"))

	_, err = repo.Add(ctx, " BLOCKLIST ", "coolmathgames.com")
	require.NoError(t, err)
	bl, err := repo.List(ctx, "blocklist")
	require.NoError(t, err)
	assert.Contains(t, bl, "coolmathgames.com")

	got, err = repo.Remove(ctx, "WHITELIST", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestList_UnknownKey(t *testing.T) {
	_, err := newTestRepo(t, NewMemoryStore(nil)).List(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrUnknownList)
}

func TestSnapshot_CachedUntilVersionMoves(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, NewMemoryStore(nil))

	s1, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	s2, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, uint64(1), repo.RepoStats().Compiles)

	_, err = repo.Add(ctx, domain.Blocklist, "roblox.com")
	require.NoError(t, err)

	s3, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotSame(t, s1, s3)
	assert.True(t, s3.Denied("https://roblox.com/play"))
	assert.False(t, s1.Denied("https://roblox.com/play"), "old snapshot is immutable")

	st := repo.RepoStats()
	assert.Equal(t, uint64(2), st.Compiles)
	assert.Equal(t, s3.Version, st.SnapshotVersion)
	assert.Equal(t, 1, st.Store.Blocklist)
}

func TestSnapshot_AllowIncludesDefaultSafe(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, NewMemoryStore(nil))
	_, err := repo.Add(ctx, domain.Whitelist, "khanacademy.org")
	require.NoError(t, err)
	_, err = repo.Add(ctx, domain.Blocklist, "docs.google.com")
	require.NoError(t, err)

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Allowed("https://docs.google.com/doc1"))
	assert.True(t, snap.Allowed("https://www.khanacademy.org/math"))
	assert.True(t, snap.Denied("https://docs.google.com/doc1"))
	assert.False(t, snap.Allowed("https://roblox.com"))
}

func TestSnapshot_StoreErrors(t *testing.T) {
	boom := errors.New("store offline")

	store := newFailingStore()
	store.versionErr = boom
	_, err := newTestRepo(t, store).Snapshot(context.Background())
	assert.ErrorIs(t, err, boom)

	store = newFailingStore()
	store.getErr = boom
	_, err = newTestRepo(t, store).Snapshot(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSnapshot_UsesBloomFactory(t *testing.T) {
	ctx := context.Background()
	factory := &fakeFactory{}
	store := NewMemoryStore(nil)
	require.NoError(t, store.Set(ctx, domain.Blocklist, domain.List{"roblox.com", "ROBLOX.com", "discord.com"}))
	repo, err := NewRepository(Options{Store: store, Policy: testPolicy(), BloomFactory: factory, FPRate: 0.05})
	require.NoError(t, err)

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, factory.newCalls, "one filter for allow, one for deny")
	assert.Equal(t, 0.05, factory.lastFP)
	assert.Equal(t, uint64(2), factory.lastCap, "duplicates collapse case-insensitively")

	assert.True(t, snap.Denied("https://www.Roblox.com/games"))
	assert.False(t, snap.Denied("https://example.com"))
	assert.Positive(t, factory.built[1].tests)
}
