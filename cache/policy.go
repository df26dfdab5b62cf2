package cache

import (
	"sort"
	"time"

	"github.com/fileguard/fileguard/types"
)

// Policy is the eviction strategy a cache is built with. Modeled as a sum
// type with one dispatch per eviction call (per the "polymorphism over
// eviction policies" design note), not as an interface hierarchy.
type Policy int

const (
	PolicyLRU Policy = iota
	PolicyLFU
	PolicyLFUSize
)

func (p Policy) String() string {
	switch p {
	case PolicyLFU:
		return "lfu"
	case PolicyLFUSize:
		return "lfu-size"
	default:
		return "lru"
	}
}

// decayTau is the age-decay time constant used by the LFU policies.
const decayTau = 3600 * time.Second

// score computes an entry's retention value under the given policy as of
// now. Higher score means more worth keeping.
func score(p Policy, e *types.CacheEntry, now int64) float64 {
	switch p {
	case PolicyLFU:
		return lfuScore(e, now)
	case PolicyLFUSize:
		return lfuScore(e, now) * float64(e.Metadata.SizeBytes)
	default:
		// LRU has no numeric score; last-access order is used directly.
		return float64(e.LastAccessNs)
	}
}

func lfuScore(e *types.CacheEntry, now int64) float64 {
	ageSeconds := float64(now-e.LastAccessNs) / float64(time.Second)
	if ageSeconds < 0 {
		ageSeconds = 0
	}
	return float64(e.HitCount) / (1 + ageSeconds/decayTau.Seconds())
}

// selectEvictions picks the batchSize lowest-scoring entries under the
// given policy (oldest last-access first, for LRU), breaking ties by
// older last_access_ns. It never mutates entries; it only ranks.
func selectEvictions(p Policy, entries []*types.CacheEntry, now int64, batchSize int) []*types.CacheEntry {
	if batchSize > len(entries) {
		batchSize = len(entries)
	}
	ranked := make([]*types.CacheEntry, len(entries))
	copy(ranked, entries)

	sort.Slice(ranked, func(i, j int) bool {
		si, sj := score(p, ranked[i], now), score(p, ranked[j], now)
		if si != sj {
			return si < sj
		}
		return ranked[i].LastAccessNs < ranked[j].LastAccessNs
	})

	return ranked[:batchSize]
}
