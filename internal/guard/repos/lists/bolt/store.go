// Package bolt persists the user-editable lists in a bbolt database.
//
// Layout:
//
//	lists/<key>   JSON array of patterns, insertion order
//	meta/version  big-endian uint64, bumped on every list write
//	meta/updated  big-endian uint64 unix seconds of the last list write
//	markers/<n>   opaque bookkeeping strings
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/navguard/internal/guard/common/clock"
	"github.com/haukened/navguard/internal/guard/domain"
	"github.com/haukened/navguard/internal/guard/repos/lists"
)

var (
	bucketLists   = []byte("lists")
	bucketMeta    = []byte("meta")
	bucketMarkers = []byte("markers")

	keyVersion = []byte("version")
	keyUpdated = []byte("updated")
)

// boltStore implements lists.Store using bbolt.
type boltStore struct {
	db    *bbolt.DB
	clock clock.Clock
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
// A nil clock uses the wall clock.
func New(path string, clk clock.Clock) (lists.Store, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open list store %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketLists, bucketMeta, bucketMarkers} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init list store: %w", err)
	}
	return &boltStore{db: db, clock: clk}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func (s *boltStore) Get(ctx context.Context, key domain.ListKey) (domain.List, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := domain.List{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketLists).Get([]byte(key))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return out, nil
}

func (s *boltStore) Set(ctx context.Context, key domain.ListKey, list domain.List) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if list == nil {
		list = domain.List{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	now := s.clock.Now().Unix()
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketLists).Put([]byte(key), raw); err != nil {
			return err
		}
		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(keyVersion, encodeUint(readUint(meta, keyVersion)+1)); err != nil {
			return err
		}
		return meta.Put(keyUpdated, encodeUint(uint64(now)))
	})
}

func (s *boltStore) Version(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var v uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		v = readUint(tx.Bucket(bucketMeta), keyVersion)
		return nil
	})
	return v, err
}

func (s *boltStore) Marker(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var out string
	err := s.db.View(func(tx *bbolt.Tx) error {
		out = string(tx.Bucket(bucketMarkers).Get([]byte(name)))
		return nil
	})
	return out, err
}

func (s *boltStore) SetMarker(ctx context.Context, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMarkers).Put([]byte(name), []byte(value))
	})
}

func (s *boltStore) Stats() lists.StoreStats {
	st := lists.StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		st.Version = readUint(meta, keyVersion)
		st.UpdatedUnix = int64(readUint(meta, keyUpdated))
		b := tx.Bucket(bucketLists)
		st.Blocklist = countEntries(b.Get([]byte(domain.Blocklist)))
		st.Whitelist = countEntries(b.Get([]byte(domain.Whitelist)))
		return nil
	})
	return st
}

func readUint(b *bbolt.Bucket, key []byte) uint64 {
	if v := b.Get(key); len(v) == 8 {
		return binary.BigEndian.Uint64(v)
	}
	return 0
}

func encodeUint(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func countEntries(raw []byte) int {
	if raw == nil {
		return 0
	}
	var l []string
	if err := json.Unmarshal(raw, &l); err != nil {
		return 0
	}
	return len(l)
}

var _ lists.Store = (*boltStore)(nil)
