package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fileguard/fileguard/types"
)

// L1 is the durable cache tier: a sqlite table with the same key schema
// as L2 plus a secondary index on ruleset_version and last_access_ns,
// per the spec's §6 layout.
type L1 struct {
	db *sql.DB
}

// OpenL1 opens (creating if needed) the sqlite cache file at path and
// installs its schema. Mirrors the teacher's NewDB: MkdirAll, open,
// enable WAL, then create tables and indexes.
func OpenL1(path string) (*L1, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}

	return &L1{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		dev             INTEGER NOT NULL,
		ino             INTEGER NOT NULL,
		mtime_ns        INTEGER NOT NULL,
		ctime_ns        INTEGER NOT NULL,
		size            INTEGER NOT NULL,
		ruleset_version INTEGER NOT NULL,
		decision        INTEGER NOT NULL,
		last_access_ns  INTEGER NOT NULL,
		hit_count       INTEGER NOT NULL,
		PRIMARY KEY (dev, ino)
	);
	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_ruleset_version ON cache_entries(ruleset_version);",
		"CREATE INDEX IF NOT EXISTS idx_last_access_ns ON cache_entries(last_access_ns);",
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Get returns the row for key if present, regardless of ruleset version
// — callers are responsible for the version check (the L2 promote path
// needs the raw row to compare against the current version).
func (l *L1) Get(key types.FileKey) (*types.CacheEntry, error) {
	row := l.db.QueryRow(
		`SELECT mtime_ns, ctime_ns, size, ruleset_version, decision, last_access_ns, hit_count
		 FROM cache_entries WHERE dev = ? AND ino = ?`,
		int64(key.Device), int64(key.Inode),
	)

	var e types.CacheEntry
	e.Key = key
	var decision int
	if err := row.Scan(&e.Metadata.ModTimeNs, &e.Metadata.ChangeTimeNs, &e.Metadata.SizeBytes,
		&e.RulesetVersion, &decision, &e.LastAccessNs, &e.HitCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query cache entry: %w", err)
	}
	e.Decision = types.Decision(decision)
	return &e, nil
}

// Upsert idempotently installs entry, overwriting any existing row for
// the same key.
func (l *L1) Upsert(e types.CacheEntry) error {
	_, err := l.db.Exec(
		`INSERT INTO cache_entries (dev, ino, mtime_ns, ctime_ns, size, ruleset_version, decision, last_access_ns, hit_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(dev, ino) DO UPDATE SET
			mtime_ns = excluded.mtime_ns,
			ctime_ns = excluded.ctime_ns,
			size = excluded.size,
			ruleset_version = excluded.ruleset_version,
			decision = excluded.decision,
			last_access_ns = excluded.last_access_ns,
			hit_count = excluded.hit_count`,
		int64(e.Key.Device), int64(e.Key.Inode),
		e.Metadata.ModTimeNs, e.Metadata.ChangeTimeNs, e.Metadata.SizeBytes,
		e.RulesetVersion, int(e.Decision), e.LastAccessNs, e.HitCount,
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// Touch bumps hit_count and last_access_ns for an L1 hit that was
// promoted into L2, without rewriting the rest of the row.
func (l *L1) Touch(key types.FileKey, nowNs int64) error {
	_, err := l.db.Exec(
		`UPDATE cache_entries SET hit_count = hit_count + 1, last_access_ns = ? WHERE dev = ? AND ino = ?`,
		nowNs, int64(key.Device), int64(key.Inode),
	)
	return err
}

// DeleteStaleVersion deletes every row whose ruleset_version differs
// from current, in a single transactional DELETE (per §4.5 step 5).
func (l *L1) DeleteStaleVersion(current uint64) (int64, error) {
	res, err := l.db.Exec(`DELETE FROM cache_entries WHERE ruleset_version != ?`, current)
	if err != nil {
		return 0, fmt.Errorf("delete stale ruleset rows: %w", err)
	}
	return res.RowsAffected()
}

// TopScored returns up to limit rows ranked by (hit_count*size desc,
// last_access_ns desc), used by pattern-mode warmup's composite score.
func (l *L1) TopScored(limit int) ([]types.CacheEntry, error) {
	rows, err := l.db.Query(
		`SELECT dev, ino, mtime_ns, ctime_ns, size, ruleset_version, decision, last_access_ns, hit_count
		 FROM cache_entries
		 ORDER BY (hit_count * size) DESC, last_access_ns DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query top-scored entries: %w", err)
	}
	defer rows.Close()

	var out []types.CacheEntry
	for rows.Next() {
		var e types.CacheEntry
		var dev, ino int64
		var decision int
		if err := rows.Scan(&dev, &ino, &e.Metadata.ModTimeNs, &e.Metadata.ChangeTimeNs, &e.Metadata.SizeBytes,
			&e.RulesetVersion, &decision, &e.LastAccessNs, &e.HitCount); err != nil {
			return nil, fmt.Errorf("scan top-scored entry: %w", err)
		}
		e.Key = types.FileKey{Device: uint64(dev), Inode: uint64(ino)}
		e.Decision = types.Decision(decision)
		out = append(out, e)
	}
	return out, rows.Err()
}

// EvictBatch deletes the n lowest-scoring rows under policy. LRU scores
// by last_access_ns ascending; the LFU variants need the full row set
// scored in process, since sqlite has no hit-decay function.
func (l *L1) EvictBatch(n int, policy Policy) error {
	if policy == PolicyLRU {
		_, err := l.db.Exec(
			`DELETE FROM cache_entries WHERE (dev, ino) IN (
				SELECT dev, ino FROM cache_entries ORDER BY last_access_ns ASC LIMIT ?
			)`, n,
		)
		return err
	}

	rows, err := l.db.Query(
		`SELECT dev, ino, mtime_ns, ctime_ns, size, ruleset_version, decision, last_access_ns, hit_count FROM cache_entries`,
	)
	if err != nil {
		return fmt.Errorf("query entries for eviction: %w", err)
	}
	var all []*types.CacheEntry
	for rows.Next() {
		var e types.CacheEntry
		var dev, ino int64
		var decision int
		if err := rows.Scan(&dev, &ino, &e.Metadata.ModTimeNs, &e.Metadata.ChangeTimeNs, &e.Metadata.SizeBytes,
			&e.RulesetVersion, &decision, &e.LastAccessNs, &e.HitCount); err != nil {
			rows.Close()
			return fmt.Errorf("scan entry for eviction: %w", err)
		}
		e.Key = types.FileKey{Device: uint64(dev), Inode: uint64(ino)}
		e.Decision = types.Decision(decision)
		all = append(all, &e)
	}
	rows.Close()

	victims := selectEvictions(policy, all, nowNanos(), n)
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin eviction transaction: %w", err)
	}
	for _, v := range victims {
		if _, err := tx.Exec(`DELETE FROM cache_entries WHERE dev = ? AND ino = ?`, int64(v.Key.Device), int64(v.Key.Inode)); err != nil {
			tx.Rollback()
			return fmt.Errorf("delete evicted entry: %w", err)
		}
	}
	return tx.Commit()
}

// PageFootprintBytes estimates the live footprint of the database as
// page_count * page_size, per §4.2's "capacity is measured by live-page
// bytes."
func (l *L1) PageFootprintBytes() (int64, error) {
	var pageCount, pageSize int64
	if err := l.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("read page_count: %w", err)
	}
	if err := l.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("read page_size: %w", err)
	}
	return pageCount * pageSize, nil
}

// LoadMeta reads the persisted ruleset metadata, if any.
func (l *L1) LoadMeta() (types.RulesetMeta, bool, error) {
	var meta types.RulesetMeta
	var scopeHex, patternsHex string
	var version int64
	var found int

	for _, kv := range []struct {
		key string
		dst *string
	}{{"scope_hash", &scopeHex}, {"patterns_hash", &patternsHex}} {
		var v string
		err := l.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, kv.key).Scan(&v)
		if err == sql.ErrNoRows {
			return types.RulesetMeta{}, false, nil
		}
		if err != nil {
			return types.RulesetMeta{}, false, fmt.Errorf("read meta %s: %w", kv.key, err)
		}
		*kv.dst = v
		found++
	}
	err := l.db.QueryRow(`SELECT value FROM meta WHERE key = 'ruleset_version'`).Scan(&version)
	if err == sql.ErrNoRows {
		return types.RulesetMeta{}, false, nil
	}
	if err != nil {
		return types.RulesetMeta{}, false, fmt.Errorf("read meta ruleset_version: %w", err)
	}

	if n := copy(meta.ScopeHash[:], hexDecode(scopeHex)); n != 32 {
		return types.RulesetMeta{}, false, fmt.Errorf("corrupt scope_hash meta row")
	}
	if n := copy(meta.PatternsHash[:], hexDecode(patternsHex)); n != 32 {
		return types.RulesetMeta{}, false, fmt.Errorf("corrupt patterns_hash meta row")
	}
	meta.RulesetVersion = uint64(version)
	return meta, true, nil
}

// SaveMeta overwrites the persisted ruleset metadata.
func (l *L1) SaveMeta(meta types.RulesetMeta) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin meta transaction: %w", err)
	}
	rows := map[string]string{
		"scope_hash":      hexEncode(meta.ScopeHash[:]),
		"patterns_hash":   hexEncode(meta.PatternsHash[:]),
		"ruleset_version": fmt.Sprintf("%d", meta.RulesetVersion),
	}
	for k, v := range rows {
		if _, err := tx.Exec(
			`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			k, v,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("write meta %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// Close closes the underlying database handle.
func (l *L1) Close() error {
	return l.db.Close()
}
