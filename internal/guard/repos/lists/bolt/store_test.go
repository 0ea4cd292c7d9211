package bolt

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/navguard/internal/guard/common/clock"
	"github.com/haukened/navguard/internal/guard/domain"
	"github.com/haukened/navguard/internal/guard/repos/lists"
)

func openTemp(t *testing.T, clk clock.Clock) (lists.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lists.db")
	s, err := New(path, clk)
	require.NoError(t, err)
	return s, path
}

func TestStore_EmptyReads(t *testing.T) {
	s, _ := openTemp(t, nil)
	defer s.Close()
	ctx := context.Background()

	l, err := s.Get(ctx, domain.Blocklist)
	require.NoError(t, err)
	assert.NotNil(t, l)
	assert.Empty(t, l)

	v, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, v)

	m, err := s.Marker(ctx, "anything")
	require.NoError(t, err)
	assert.Empty(t, m)

	assert.Equal(t, lists.StoreStats{}, s.Stats())
}

func TestStore_SetGetBumpsVersion(t *testing.T) {
	clk := clock.NewMockClock(time.Unix(1_760_000_000, 0))
	s, _ := openTemp(t, clk)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, domain.Blocklist, domain.List{"roblox.com", "Casino"}))
	clk.Advance(time.Minute)
	require.NoError(t, s.Set(ctx, domain.Whitelist, domain.List{"khanacademy.org"}))

	bl, err := s.Get(ctx, domain.Blocklist)
	require.NoError(t, err)
	assert.Equal(t, domain.List{"roblox.com", "Casino"}, bl, "order and case preserved")

	v, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)

	st := s.Stats()
	assert.Equal(t, uint64(2), st.Version)
	assert.Equal(t, int64(1_760_000_060), st.UpdatedUnix)
	assert.Equal(t, 2, st.Blocklist)
	assert.Equal(t, 1, st.Whitelist)
}

func TestStore_SetNilWritesEmpty(t *testing.T) {
	s, _ := openTemp(t, nil)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, domain.Whitelist, nil))
	l, err := s.Get(ctx, domain.Whitelist)
	require.NoError(t, err)
	assert.Equal(t, domain.List{}, l)
}

func TestStore_MarkersDoNotBumpVersion(t *testing.T) {
	s, _ := openTemp(t, nil)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SetMarker(ctx, "mustblock_digest", "abc"))
	m, err := s.Marker(ctx, "mustblock_digest")
	require.NoError(t, err)
	assert.Equal(t, "abc", m)

	v, _ := s.Version(ctx)
	assert.Zero(t, v)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	s, path := openTemp(t, nil)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, domain.Blocklist, domain.List{"a.com"}))
	require.NoError(t, s.SetMarker(ctx, "m", "1"))
	require.NoError(t, s.Close())

	reopened, err := New(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	l, err := reopened.Get(ctx, domain.Blocklist)
	require.NoError(t, err)
	assert.Equal(t, domain.List{"a.com"}, l)
	m, _ := reopened.Marker(ctx, "m")
	assert.Equal(t, "1", m)
	v, _ := reopened.Version(ctx)
	assert.Equal(t, uint64(1), v)
}

func TestStore_CanceledContext(t *testing.T) {
	s, _ := openTemp(t, nil)
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, domain.Blocklist)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Set(ctx, domain.Blocklist, domain.List{"x"}), context.Canceled)
	_, err = s.Version(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Marker(ctx, "m")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.SetMarker(ctx, "m", "v"), context.Canceled)
}

func TestStore_CorruptListSurfacesError(t *testing.T) {
	s, _ := openTemp(t, nil)
	defer s.Close()
	bs := s.(*boltStore)
	require.NoError(t, bs.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLists).Put([]byte(domain.Blocklist), []byte("{not json"))
	}))

	_, err := s.Get(context.Background(), domain.Blocklist)
	assert.Error(t, err)
	assert.Equal(t, 0, s.Stats().Blocklist)
}

func TestNew_BadPath(t *testing.T) {
	dir := t.TempDir()
	// a directory cannot be opened as a database file
	_, err := New(dir, nil)
	assert.Error(t, err)
	_, statErr := os.Stat(dir)
	assert.NoError(t, statErr)
}

func TestStore_WithRepository(t *testing.T) {
	s, _ := openTemp(t, nil)
	defer s.Close()
	ctx := context.Background()
	p := domain.DefaultPolicy()

	repo, err := lists.NewRepository(lists.Options{Store: s, Policy: p})
	require.NoError(t, err)
	added, err := repo.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(p.MustBlock), added)

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Denied("https://www.roblox.com/games"))
	assert.True(t, snap.Allowed("https://docs.google.com/document/d/1"))
}
