package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/fileguard/fileguard/cache"
	"github.com/fileguard/fileguard/extractor"
	"github.com/fileguard/fileguard/filestat"
	"github.com/fileguard/fileguard/kernel"
	"github.com/fileguard/fileguard/matcher"
	"github.com/fileguard/fileguard/scanpool"
	"github.com/fileguard/fileguard/types"
)

// newTestLoop builds a Loop wired to a fresh sqlite-backed cache and a
// running scan pool, mirroring how main.go assembles one for blocking
// mode, minus scope-mode warmup.
func newTestLoop(t *testing.T, patterns []string, maxSyncScanBytes int64) (*Loop, *kernel.FakeSource, *cache.Cache, *scanpool.Pool) {
	t.Helper()
	m, err := matcher.New(patterns)
	if err != nil {
		t.Fatalf("matcher.New: %v", err)
	}
	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.sqlite"), 1<<20, cache.PolicyLRU)
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	var rulesetVersion uint64 = 1
	pool := scanpool.New(2, c, m, extractor.PlainText{}, func() uint64 { return rulesetVersion }, nil)
	pool.Start()
	t.Cleanup(pool.Shutdown)

	source := kernel.NewFakeSource()
	internal := newInternalPIDs(int32(os.Getpid()))
	loop := NewLoop(source, c, m, extractor.PlainText{}, pool, nil, internal, func() uint64 { return rulesetVersion }, maxSyncScanBytes, nil)
	return loop, source, c, pool
}

// eventForFile opens path, dups its fd (so the loop's own close of the
// wrapped fd never touches the test's file handle), and returns a ready
// Event whose Fd is the dup'd fd, used for response bookkeeping.
func eventForFile(t *testing.T, path string, originatingPID int32) kernel.Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	dup, err := unix.Dup(int(f.Fd()))
	if err != nil {
		t.Fatalf("Dup: %v", err)
	}
	return kernel.Event{Version: 1, Mask: kernel.MaskOpenPermission, Fd: dup, OriginatingPID: originatingPID}
}

func dispatch(loop *Loop, ev kernel.Event) {
	loop.sem <- struct{}{}
	loop.handle(ev)
}

func TestLoopColdBlockThenCacheHit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "target")
	if err := os.WriteFile(path, []byte("contains SECRET_TOKEN"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	loop, source, _, _ := newTestLoop(t, []string{"SECRET_TOKEN"}, 1<<20)

	first := eventForFile(t, path, 999)
	dispatch(loop, first)
	resp, ok := source.ResponseFor(first.Fd)
	if !ok || resp != kernel.ResponseDeny {
		t.Fatalf("first response = %v, %v, want ResponseDeny", resp, ok)
	}

	second := eventForFile(t, path, 999)
	dispatch(loop, second)
	resp, ok = source.ResponseFor(second.Fd)
	if !ok || resp != kernel.ResponseDeny {
		t.Fatalf("second response = %v, %v, want ResponseDeny (from cache)", resp, ok)
	}
	if loop.Metrics().Hits != 1 {
		t.Errorf("Hits = %d, want 1 for the second, cached lookup", loop.Metrics().Hits)
	}
}

func TestLoopColdAllowThenCacheHit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "target")
	if err := os.WriteFile(path, []byte("nothing interesting"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	loop, source, _, _ := newTestLoop(t, []string{"SECRET_TOKEN"}, 1<<20)

	first := eventForFile(t, path, 999)
	dispatch(loop, first)
	if resp, ok := source.ResponseFor(first.Fd); !ok || resp != kernel.ResponseAllow {
		t.Fatalf("first response = %v, %v, want ResponseAllow", resp, ok)
	}

	second := eventForFile(t, path, 999)
	dispatch(loop, second)
	if resp, ok := source.ResponseFor(second.Fd); !ok || resp != kernel.ResponseAllow {
		t.Fatalf("second response = %v, %v, want ResponseAllow", resp, ok)
	}
	if loop.Metrics().Hits != 1 {
		t.Errorf("Hits = %d, want 1", loop.Metrics().Hits)
	}
}

func TestLoopSelfEventAlwaysAllows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "target")
	if err := os.WriteFile(path, []byte("contains SECRET_TOKEN"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	loop, source, c, _ := newTestLoop(t, []string{"SECRET_TOKEN"}, 1<<20)

	ev := eventForFile(t, path, int32(os.Getpid()))
	dispatch(loop, ev)
	if resp, ok := source.ResponseFor(ev.Fd); !ok || resp != kernel.ResponseAllow {
		t.Fatalf("self-event response = %v, %v, want ResponseAllow", resp, ok)
	}
	if c.L2Len() != 0 {
		t.Error("a self-event must never reach the cache or scan path")
	}
}

func TestLoopLargeFileDeferredThenBlocked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "target")
	content := "prefix " + string(make([]byte, 64)) + " SECRET_TOKEN suffix"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// maxSyncScanBytes smaller than the file forces the async path.
	loop, source, c, pool := newTestLoop(t, []string{"SECRET_TOKEN"}, 4)

	first := eventForFile(t, path, 999)
	dispatch(loop, first)
	if resp, ok := source.ResponseFor(first.Fd); !ok || resp != kernel.ResponseAllow {
		t.Fatalf("provisional response = %v, %v, want ResponseAllow", resp, ok)
	}

	deadline := time.Now().Add(2 * time.Second)
	for pool.QueueLen() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond) // let the last dequeued task finish installing

	key, snapshot, err := statPath(path)
	if err != nil {
		t.Fatalf("statPath: %v", err)
	}
	result, decision := c.Lookup(key, snapshot, 1)
	if !result.Hit() || decision != types.Block {
		t.Fatalf("Lookup() after async scan = %v, %v, want a hit with BLOCK", result, decision)
	}

	second := eventForFile(t, path, 999)
	dispatch(loop, second)
	if resp, ok := source.ResponseFor(second.Fd); !ok || resp != kernel.ResponseDeny {
		t.Fatalf("second response = %v, %v, want ResponseDeny once the async decision lands", resp, ok)
	}
}

func statPath(path string) (types.FileKey, types.FileMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.FileKey{}, types.FileMetadata{}, err
	}
	defer f.Close()
	return filestat.Snapshot(f)
}
