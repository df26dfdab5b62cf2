package warmup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fileguard/fileguard/cache"
	"github.com/fileguard/fileguard/extractor"
	"github.com/fileguard/fileguard/filestat"
	"github.com/fileguard/fileguard/matcher"
	"github.com/fileguard/fileguard/scanpool"
	"github.com/fileguard/fileguard/types"
)

func newTestPool(t *testing.T) *scanpool.Pool {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.sqlite")
	c, err := cache.Open(path, 1<<20, cache.PolicyLRU)
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	m, err := matcher.New(nil)
	if err != nil {
		t.Fatalf("matcher.New: %v", err)
	}
	pool := scanpool.New(2, c, m, extractor.PlainText{}, func() uint64 { return 1 }, nil)
	pool.Start()
	t.Cleanup(pool.Shutdown)
	return pool
}

func waitForQueueDrain(t *testing.T, pool *scanpool.Pool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pool.QueueLen() == 0 {
			time.Sleep(20 * time.Millisecond) // let the last dequeued task finish processing
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for the pool queue to drain")
}

func TestScopeTrackerObservesEachDirectoryOnce(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(filepath.Join(dir, "f"+string(rune('a'+i))), []byte("data"), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	pool := newTestPool(t)
	tracker := NewScopeTracker(pool, 0, 0, 0, nil)

	tracker.Observe(filepath.Join(dir, "fa"))
	tracker.Observe(filepath.Join(dir, "fb")) // same directory, should not re-list
	waitForQueueDrain(t, pool)

	tracker.mu.Lock()
	seen := len(tracker.seenDirs)
	enqueued := tracker.filesEnqueued
	tracker.mu.Unlock()

	if seen != 1 {
		t.Errorf("seenDirs = %d, want 1 (same directory observed twice)", seen)
	}
	if enqueued != 3 {
		t.Errorf("filesEnqueued = %d, want 3 (all files in the directory)", enqueued)
	}
}

func TestScopeTrackerRespectsMaxDirectories(t *testing.T) {
	base := t.TempDir()
	dirA := filepath.Join(base, "a")
	dirB := filepath.Join(base, "b")
	for _, d := range []string{dirA, dirB} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(filepath.Join(d, "f"), []byte("x"), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	pool := newTestPool(t)
	tracker := NewScopeTracker(pool, 1, 0, 0, nil)
	tracker.Observe(filepath.Join(dirA, "f"))
	tracker.Observe(filepath.Join(dirB, "f"))
	waitForQueueDrain(t, pool)

	tracker.mu.Lock()
	seen := len(tracker.seenDirs)
	tracker.mu.Unlock()
	if seen != 1 {
		t.Errorf("seenDirs = %d, want 1 (maxDirectories=1 should reject the second)", seen)
	}
}

func TestScopeTrackerRespectsMaxFilesPerDir(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(filepath.Join(dir, "f"+string(rune('a'+i))), []byte("x"), 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	pool := newTestPool(t)
	tracker := NewScopeTracker(pool, 0, 0, 2, nil)
	tracker.Observe(filepath.Join(dir, "fa"))
	waitForQueueDrain(t, pool)

	tracker.mu.Lock()
	enqueued := tracker.filesEnqueued
	tracker.mu.Unlock()
	if enqueued != 2 {
		t.Errorf("filesEnqueued = %d, want 2 (maxFilesPerDir bound)", enqueued)
	}
}

func TestRunPatternModeEnqueuesTopScoredFiles(t *testing.T) {
	dir := t.TempDir()
	hotPath := filepath.Join(dir, "hot")
	coldPath := filepath.Join(dir, "cold")
	if err := os.WriteFile(hotPath, []byte("hot contents"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(coldPath, []byte("cold contents"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cachePath := filepath.Join(t.TempDir(), "cache.sqlite")
	c, err := cache.Open(cachePath, 1<<20, cache.PolicyLRU)
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	defer c.Close()

	seedEntry(t, cachePath, c, hotPath, 6)
	seedEntry(t, cachePath, c, coldPath, 1)

	hotKey, _, err := filestat.SnapshotPath(hotPath)
	if err != nil {
		t.Fatalf("SnapshotPath: %v", err)
	}
	seeded, err := c.TopScoredForWarmup(10)
	if err != nil {
		t.Fatalf("TopScoredForWarmup: %v", err)
	}
	if len(seeded) != 2 || seeded[0].Key != hotKey {
		t.Fatalf("seeded rows = %+v, want the hot file ranked first", seeded)
	}

	m, err := matcher.New(nil)
	if err != nil {
		t.Fatalf("matcher.New: %v", err)
	}
	pool := scanpool.New(1, c, m, extractor.PlainText{}, func() uint64 { return 1 }, nil)
	pool.Start()
	defer pool.Shutdown()

	if err := RunPatternMode(c, pool, dir, 10, 1<<20, nil); err != nil {
		t.Fatalf("RunPatternMode: %v", err)
	}
	waitForQueueDrain(t, pool)

	rows, err := c.TopScoredForWarmup(10)
	if err != nil {
		t.Fatalf("TopScoredForWarmup: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected both files to have L1 rows, got %d", len(rows))
	}
	if rows[0].HitCount < rows[1].HitCount {
		t.Errorf("TopScoredForWarmup() not ordered by score: %+v", rows)
	}
	// A warmup scan re-inserts the row, so an enqueued file's
	// last_access_ns moves past the value it had after seeding.
	for _, row := range rows {
		if row.Key == hotKey && row.LastAccessNs <= seeded[0].LastAccessNs {
			t.Errorf("hot file was not enqueued and rescanned by pattern mode: %+v", row)
		}
	}
}

// seedEntry installs an ALLOW decision for path and re-looks it up
// hitCount-1 extra times so its L1 row carries a realistic hit count for
// pattern-mode's top-scored ranking. A lookup against the passed-in cache
// only ever hits L2 once an entry is resident there, and an L2 hit never
// writes its bumped hit count through to L1 (a hot decision path has no
// business doing a synchronous sqlite write on every lookup) — so each
// repeat lookup here opens a fresh Cache handle against the same sqlite
// file, guaranteeing an empty L2 and forcing the L1-promotion path, which
// does persist the bump via L1.Touch.
func seedEntry(t *testing.T, cachePath string, c *cache.Cache, path string, hitCount int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	key, meta, err := filestat.Snapshot(f)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := c.Insert(key, meta, 1, types.Allow); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	for i := 1; i < hitCount; i++ {
		fresh, err := cache.Open(cachePath, 1<<20, cache.PolicyLRU)
		if err != nil {
			t.Fatalf("cache.Open: %v", err)
		}
		fresh.Lookup(key, meta, 1)
		fresh.Close()
	}
}
