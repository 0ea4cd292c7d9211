package lists

// StoreStats reports lightweight store metrics and metadata.
type StoreStats struct {
	Version     uint64 // write counter, bumped by every Set
	UpdatedUnix int64  // last write, unix seconds (0 if never written)
	Blocklist   int    // number of blocklist entries
	Whitelist   int    // number of whitelist entries
}

// RepoStats exposes repository-level counters and the underlying store stats.
type RepoStats struct {
	Store           StoreStats
	SnapshotVersion uint64 // store version the cached snapshot was compiled from
	Compiles        uint64 // number of snapshot (re)compilations since start
}
