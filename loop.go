package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/fileguard/fileguard/cache"
	"github.com/fileguard/fileguard/extractor"
	"github.com/fileguard/fileguard/filestat"
	"github.com/fileguard/fileguard/kernel"
	"github.com/fileguard/fileguard/matcher"
	"github.com/fileguard/fileguard/scanpool"
	"github.com/fileguard/fileguard/types"
	"github.com/fileguard/fileguard/warmup"
)

// Loop owns the kernel permission-event source and drives one decision
// per event, per §4.1. The batch-read goroutine never blocks on disk
// I/O itself: each event is dispatched to a short-lived goroutine bound
// by a semaphore sized max(2*hardware_parallelism, 8), matching §5's
// "may spawn short-lived scan threads" and §4.1's concurrency bound.
type Loop struct {
	source kernel.Source
	cache  *cache.Cache
	match  matcher.Matcher
	ex     extractor.Extractor
	pool   *scanpool.Pool
	scope  *warmup.ScopeTracker

	internal         *internalPIDs
	metrics          *metrics
	logf             func(format string, args ...interface{})
	rulesetVersion   func() uint64
	maxSyncScanBytes int64

	sem chan struct{}
}

// NewLoop constructs a Loop ready to Run. scope may be nil to disable
// scope-mode warmup (e.g. in tests).
func NewLoop(
	source kernel.Source,
	c *cache.Cache,
	m matcher.Matcher,
	ex extractor.Extractor,
	pool *scanpool.Pool,
	scope *warmup.ScopeTracker,
	internal *internalPIDs,
	rulesetVersion func() uint64,
	maxSyncScanBytes int64,
	logf func(string, ...interface{}),
) *Loop {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	bound := 2 * runtime.NumCPU()
	if bound < 8 {
		bound = 8
	}
	return &Loop{
		source:           source,
		cache:            c,
		match:            m,
		ex:               ex,
		pool:             pool,
		scope:            scope,
		internal:         internal,
		metrics:          &metrics{},
		logf:             logf,
		rulesetVersion:   rulesetVersion,
		maxSyncScanBytes: maxSyncScanBytes,
		sem:              make(chan struct{}, bound),
	}
}

// Metrics returns a snapshot of the loop's decision counters.
func (l *Loop) Metrics() metricsSnapshot {
	return l.metrics.snapshot()
}

// Run drains the kernel source until it returns an error. A kernel
// event version mismatch is always fatal (§4.1 step 3, §6); any other
// read error is treated as fatal too, since there is no event left to
// answer ALLOW on. A clean shutdown is driven by closing the source
// from another goroutine, which unblocks ReadBatch with an error Run
// simply propagates to its caller.
func (l *Loop) Run() error {
	for {
		events, err := l.source.ReadBatch()
		if err != nil {
			if mismatch, ok := err.(*kernel.ErrVersionMismatch); ok {
				return fmt.Errorf("loop: fatal kernel event version mismatch: %w", mismatch)
			}
			return fmt.Errorf("loop: read batch: %w", err)
		}

		for _, ev := range events {
			if ev.Mask&kernel.MaskOpenPermission == 0 {
				continue
			}
			l.sem <- struct{}{}
			go l.handle(ev)
		}
	}
}

// handle implements §4.1 step 2 for one event: self-event short-circuit,
// stat, cache consult, and either an inline scan or a hand-off to the
// async pool, followed by exactly one response and fd close.
func (l *Loop) handle(ev kernel.Event) {
	defer func() { <-l.sem }()

	f := os.NewFile(uintptr(ev.Fd), "fileguard-event")

	if l.internal.isInternal(ev.OriginatingPID) {
		l.respondAndClose(f, kernel.ResponseAllow)
		return
	}

	start := time.Now()

	key, snapshot, err := filestat.Snapshot(f)
	if err != nil {
		l.logf("loop: stat failed for pid=%d: %v", ev.OriginatingPID, err)
		l.respondAndClose(f, kernel.ResponseAllow)
		return
	}

	if snapshot.SizeBytes == 0 {
		l.install(key, snapshot, types.Allow)
		l.respondAndClose(f, kernel.ResponseAllow)
		l.metrics.recordDecision(false, 0, time.Since(start).Nanoseconds())
		return
	}

	version := l.rulesetVersion()

	if result, decision := l.cache.Lookup(key, snapshot, version); result.Hit() {
		path := resolvePath(f)
		l.respondAndClose(f, responseFor(decision))
		l.metrics.recordDecision(true, snapshot.SizeBytes, time.Since(start).Nanoseconds())
		l.observeScopePath(path)
		return
	}

	if snapshot.SizeBytes <= l.maxSyncScanBytes {
		decision := decideSync(f, snapshot.SizeBytes, l.ex, l.match, l.logf)
		l.install(key, snapshot, decision)
		path := resolvePath(f)
		l.respondAndClose(f, responseFor(decision))
		l.metrics.recordDecision(false, snapshot.SizeBytes, time.Since(start).Nanoseconds())
		l.observeScopePath(path)
		return
	}

	// Large file: respond ALLOW provisionally — UNDECIDED must never be
	// persisted (§4.2, §9 open question) — then transfer fd ownership to
	// the async pool, which installs the real decision later.
	dupFd, dupErr := kernel.DupCloseOnExec(int(f.Fd()))
	l.respondAndClose(f, kernel.ResponseAllow)
	l.metrics.recordDecision(false, snapshot.SizeBytes, time.Since(start).Nanoseconds())
	if dupErr != nil {
		l.logf("loop: dup failed for key=%+v: %v", key, dupErr)
		return
	}
	l.pool.Enqueue(types.ScanTask{
		FdDup:          dupFd,
		OriginatingPID: ev.OriginatingPID,
		Key:            key,
		SizeBytes:      snapshot.SizeBytes,
		EnqueuedAt:     time.Now(),
	})
}

func responseFor(d types.Decision) kernel.Response {
	if d == types.Block {
		return kernel.ResponseDeny
	}
	return kernel.ResponseAllow
}

func (l *Loop) install(key types.FileKey, snapshot types.FileMetadata, decision types.Decision) {
	if err := l.cache.Insert(key, snapshot, l.rulesetVersion(), decision); err != nil {
		l.logf("loop: cache insert failed for key=%+v: %v", key, err)
	}
}

// respondAndClose issues exactly one response for f's fd and closes it,
// satisfying invariant 1 of §8 for every path through handle.
func (l *Loop) respondAndClose(f *os.File, response kernel.Response) {
	if err := l.source.Respond(int(f.Fd()), response); err != nil {
		l.logf("loop: respond failed: %v", err)
	}
	f.Close()
}

// resolvePath best-effort resolves f's path via /proc/self/fd while f is
// still open, for feeding scope-mode warmup. It must run before the fd
// is closed; callers compute it just before respondAndClose.
func resolvePath(f *os.File) string {
	path, err := os.Readlink(fmt.Sprintf("/proc/self/fd/%d", int(f.Fd())))
	if err != nil {
		return ""
	}
	return path
}

func (l *Loop) observeScopePath(path string) {
	if l.scope == nil || path == "" {
		return
	}
	l.scope.Observe(path)
}
