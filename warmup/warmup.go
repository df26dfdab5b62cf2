// Package warmup implements the two pre-population modes of §4.4:
// scope mode, which opportunistically lists a newly-seen directory the
// first time a real access lands in it, and pattern mode, which
// replays the highest-scored L1 rows at startup. Both feed the same
// scan pool queue warmup shares with on-demand misses.
package warmup

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fileguard/fileguard/filestat"
	"github.com/fileguard/fileguard/scanpool"
	"github.com/fileguard/fileguard/types"
	"golang.org/x/sys/unix"
)

// Default bounds from §4.4: distinct directories seen, files enqueued
// total, and per-directory files.
const (
	DefaultMaxDirectories  = 256
	DefaultMaxFilesTotal   = 10000
	DefaultMaxFilesPerDir  = 10
)

// Logf mirrors scanpool.Logf so warmup failures can be reported through
// the same sink without taking a hard dependency on any logger type.
type Logf func(format string, args ...interface{})

// ScopeTracker runs scope-mode warmup: the first time a real access
// names a directory it has not seen before, it detachedly lists and
// enqueues a bounded slice of that directory's files. It owns its dedup
// set as a single mutex-guarded map, per §9's note against ambient
// global state.
type ScopeTracker struct {
	mu              sync.Mutex
	seenDirs        map[string]struct{}
	filesEnqueued   int
	maxDirectories  int
	maxFilesTotal   int
	maxFilesPerDir  int

	pool *scanpool.Pool
	logf Logf
}

// NewScopeTracker constructs a tracker with the given bounds. A zero
// value for any bound falls back to its §4.4 default.
func NewScopeTracker(pool *scanpool.Pool, maxDirectories, maxFilesTotal, maxFilesPerDir int, logf Logf) *ScopeTracker {
	if maxDirectories <= 0 {
		maxDirectories = DefaultMaxDirectories
	}
	if maxFilesTotal <= 0 {
		maxFilesTotal = DefaultMaxFilesTotal
	}
	if maxFilesPerDir <= 0 {
		maxFilesPerDir = DefaultMaxFilesPerDir
	}
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &ScopeTracker{
		seenDirs:       make(map[string]struct{}),
		maxDirectories: maxDirectories,
		maxFilesTotal:  maxFilesTotal,
		maxFilesPerDir: maxFilesPerDir,
		pool:           pool,
		logf:           logf,
	}
}

// Observe is called on every real access. It is a no-op unless path's
// directory is new and the directory bound has not been exhausted, in
// which case it kicks off a detached listing task.
func (t *ScopeTracker) Observe(path string) {
	dir := filepath.Dir(path)

	t.mu.Lock()
	if _, ok := t.seenDirs[dir]; ok {
		t.mu.Unlock()
		return
	}
	if len(t.seenDirs) >= t.maxDirectories {
		t.mu.Unlock()
		return
	}
	t.seenDirs[dir] = struct{}{}
	t.mu.Unlock()

	go t.listAndEnqueue(dir)
}

func (t *ScopeTracker) listAndEnqueue(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	enqueuedHere := 0
	for _, entry := range entries {
		if enqueuedHere >= t.maxFilesPerDir {
			break
		}
		if entry.IsDir() {
			continue
		}

		t.mu.Lock()
		if t.filesEnqueued >= t.maxFilesTotal {
			t.mu.Unlock()
			return
		}
		t.filesEnqueued++
		t.mu.Unlock()

		full := filepath.Join(dir, entry.Name())
		if enqueueFile(t.pool, full, t.logf) {
			enqueuedHere++
		}
	}
}

// enqueueFile opens path, dups it into a ScanTask, and enqueues it. It
// reports whether the file was actually handed to the pool.
func enqueueFile(pool *scanpool.Pool, path string, logf Logf) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	key, meta, err := filestat.Snapshot(f)
	if err != nil {
		return false
	}

	dupFd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		logf("warmup: dup failed for %s: %v", path, err)
		return false
	}

	pool.Enqueue(types.ScanTask{
		FdDup:      dupFd,
		Key:        key,
		SizeBytes:  meta.SizeBytes,
		EnqueuedAt: time.Now(),
	})
	return true
}
