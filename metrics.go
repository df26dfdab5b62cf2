package main

import "sync/atomic"

// metrics is the atomic counter quartet §4.1.d requires — decisions,
// hits, total decision time, and total bytes — plus the hit-byte
// counter needed to report hit rate by volume as well as by count.
// Counters are process-wide atomics, not behind the cache's lock,
// matching §5's "metrics counters are atomic".
type metrics struct {
	decisions       uint64
	hits            uint64
	totalDecisionNs uint64
	totalBytes      uint64
	hitBytes        uint64
}

func (m *metrics) recordDecision(hit bool, sizeBytes int64, elapsedNs int64) {
	atomic.AddUint64(&m.decisions, 1)
	atomic.AddUint64(&m.totalDecisionNs, uint64(elapsedNs))
	atomic.AddUint64(&m.totalBytes, uint64(sizeBytes))
	if hit {
		atomic.AddUint64(&m.hits, 1)
		atomic.AddUint64(&m.hitBytes, uint64(sizeBytes))
	}
}

// metricsSnapshot is a point-in-time copy safe to log or hand to the
// statistic harness's live-mode sibling.
type metricsSnapshot struct {
	Decisions       uint64
	Hits            uint64
	TotalDecisionNs uint64
	TotalBytes      uint64
	HitBytes        uint64
}

func (m *metrics) snapshot() metricsSnapshot {
	return metricsSnapshot{
		Decisions:       atomic.LoadUint64(&m.decisions),
		Hits:            atomic.LoadUint64(&m.hits),
		TotalDecisionNs: atomic.LoadUint64(&m.totalDecisionNs),
		TotalBytes:      atomic.LoadUint64(&m.totalBytes),
		HitBytes:        atomic.LoadUint64(&m.hitBytes),
	}
}
