// Package scanpool implements the bounded off-loop worker pool that
// services large-file scans, per §4.3. Workers never respond to the
// kernel — the event loop already answered ALLOW provisionally before
// enqueuing — they only install the real decision into the cache.
package scanpool

import (
	"os"
	"sync"

	"github.com/fileguard/fileguard/cache"
	"github.com/fileguard/fileguard/extractor"
	"github.com/fileguard/fileguard/filestat"
	"github.com/fileguard/fileguard/matcher"
	"github.com/fileguard/fileguard/types"
)

// Logf is the logging hook workers use for reported-non-fatal errors
// (extractor failures per §7). Kept as a plain function value rather
// than an interface so tests can pass nil (logs are then dropped).
type Logf func(format string, args ...interface{})

// Pool is a fixed-size worker set draining a shared queue at idle
// scheduling/IO priority (set best-effort per worker thread).
type Pool struct {
	q          *queue
	numWorkers int
	wg         sync.WaitGroup

	cache          *cache.Cache
	matcher        matcher.Matcher
	extractor      extractor.Extractor
	rulesetVersion func() uint64
	logf           Logf
}

// New constructs a Pool. rulesetVersion is called fresh for every task,
// so a ruleset reload mid-run is observed by workers without restarting
// the pool.
func New(numWorkers int, c *cache.Cache, m matcher.Matcher, ex extractor.Extractor, rulesetVersion func() uint64, logf Logf) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Pool{
		q:              newQueue(),
		numWorkers:     numWorkers,
		cache:          c,
		matcher:        m,
		extractor:      ex,
		rulesetVersion: rulesetVersion,
		logf:           logf,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}
}

// Enqueue is non-blocking: the queue has no artificial capacity, only
// the fixed worker count bounds how fast it drains.
func (p *Pool) Enqueue(task types.ScanTask) {
	p.q.push(task)
}

// QueueLen reports backlog depth, for metrics/tests.
func (p *Pool) QueueLen() int {
	return p.q.len()
}

// Shutdown is cooperative: it stops accepting new progress signals,
// lets in-flight tasks finish, drains remaining queued tasks, and joins
// every worker.
func (p *Pool) Shutdown() {
	p.q.closeAndDrain()
	p.wg.Wait()
}

func (p *Pool) runWorker() {
	defer p.wg.Done()
	setIdlePriority() // best-effort, silent on failure per §7
	for {
		task, ok := p.q.pop()
		if !ok {
			return
		}
		p.process(task)
	}
}

// process implements the per-task protocol of §4.3 steps 1-6.
func (p *Pool) process(task types.ScanTask) {
	f := os.NewFile(uintptr(task.FdDup), "fileguard-scan")
	defer f.Close()

	key, snapshot, err := filestat.Snapshot(f)
	if err != nil || snapshot.SizeBytes == 0 {
		p.install(task.Key, snapshot, types.Allow)
		return
	}
	key = task.Key // dup'd fd must resolve to the same (dev,ino); trust the original key

	blocked, err := Decide(f, snapshot.SizeBytes, p.extractor, p.matcher)
	if err != nil {
		p.logf("scanpool: scan failed for key=%+v: %v", key, err)
		p.install(key, snapshot, types.Allow)
		return
	}

	decision := types.Allow
	if blocked {
		decision = types.Block
	}
	p.install(key, snapshot, decision)
}

func (p *Pool) install(key types.FileKey, snapshot types.FileMetadata, decision types.Decision) {
	if err := p.cache.Insert(key, snapshot, p.rulesetVersion(), decision); err != nil {
		p.logf("scanpool: cache insert failed for key=%+v: %v", key, err)
	}
}
