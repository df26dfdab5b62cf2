package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/fileguard/fileguard/types"
)

// estimatedNodeOverheadBytes approximates the map bucket + node cost of
// one resident entry. The byte quota governs the cache's own memory
// footprint, not the collective size of the files it remembers
// decisions for (see spec's open question on L2 byte-footprint
// semantics) — so this is a fixed per-node constant, not entry.Metadata.SizeBytes.
const estimatedNodeOverheadBytes = 96

// evictionBatch is the number of entries removed per eviction pass, to
// amortize the cost of scanning for eviction candidates.
const evictionBatch = 16

// L2 is the in-memory decision cache tier. Readers take a shared lock;
// writers take an exclusive lock.
type L2 struct {
	mu            sync.RWMutex
	entries       map[types.FileKey]*types.CacheEntry
	policy        Policy
	capacityBytes int64

	// recency tracks LRU order cheaply for PolicyLRU; it holds no values
	// of its own, only recency-ordered keys, so evicting from it never
	// needs to touch entries directly until RemoveOldest.
	recency *lru.Cache
}

// NewL2 constructs an empty L2 tier with the given byte capacity and
// eviction policy. Policy is fixed for the lifetime of the cache, chosen
// at construction per the design note on avoiding policy inheritance.
func NewL2(capacityBytes int64, policy Policy) *L2 {
	maxEntries := int(capacityBytes / estimatedNodeOverheadBytes)
	if maxEntries < evictionBatch {
		maxEntries = evictionBatch
	}
	// recency is sized generously; real eviction is driven by the byte
	// quota below, not by golang-lru's own internal capacity.
	recency, _ := lru.New(maxEntries * 2)
	return &L2{
		entries:       make(map[types.FileKey]*types.CacheEntry, maxEntries),
		policy:        policy,
		capacityBytes: capacityBytes,
		recency:       recency,
	}
}

// Get looks up key and returns the cached decision only if the witnessed
// metadata and ruleset version match exactly. A mismatch is treated as
// absence (invariant 3): the stale entry is left in place to be
// overwritten by the next Put, not deleted eagerly.
func (c *L2) Get(key types.FileKey, snapshot types.FileMetadata, rulesetVersion uint64) (types.LookupResult, types.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.Matches(snapshot, rulesetVersion) {
		return types.LookupNone, types.Undecided
	}

	e.HitCount++
	e.LastAccessNs = time.Now().UnixNano()
	if c.policy == PolicyLRU {
		c.recency.Add(key, struct{}{})
	}
	return types.LookupHitL2, e.Decision
}

// Put installs or overwrites the entry for key, then evicts if the
// estimated footprint now exceeds capacity.
func (c *L2) Put(entry types.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[entry.Key] = &entry
	if c.policy == PolicyLRU {
		c.recency.Add(entry.Key, struct{}{})
	}
	c.evictIfOverCapacityLocked()
}

// Delete removes key unconditionally (used on eviction and explicit
// invalidation).
func (c *L2) Delete(key types.FileKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	if c.policy == PolicyLRU {
		c.recency.Remove(key)
	}
}

// InvalidateVersion deletes every entry whose ruleset version differs
// from current. L2 starts empty on every process start, so this is only
// ever used for mid-run ruleset reloads, not startup.
func (c *L2) InvalidateVersion(current uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if e.RulesetVersion != current {
			delete(c.entries, key)
			if c.policy == PolicyLRU {
				c.recency.Remove(key)
			}
		}
	}
}

// ByteFootprintBytes returns the current estimated memory footprint.
func (c *L2) ByteFootprintBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.entries)) * estimatedNodeOverheadBytes
}

func (c *L2) evictIfOverCapacityLocked() {
	for int64(len(c.entries))*estimatedNodeOverheadBytes > c.capacityBytes && len(c.entries) > 0 {
		if c.policy == PolicyLRU {
			c.evictLRUBatchLocked()
			continue
		}
		c.evictScoredBatchLocked()
	}
}

func (c *L2) evictLRUBatchLocked() {
	for i := 0; i < evictionBatch && len(c.entries) > 0; i++ {
		k, _, ok := c.recency.RemoveOldest()
		if !ok {
			return
		}
		delete(c.entries, k.(types.FileKey))
	}
}

func (c *L2) evictScoredBatchLocked() {
	all := make([]*types.CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		all = append(all, e)
	}
	now := time.Now().UnixNano()
	for _, victim := range selectEvictions(c.policy, all, now, evictionBatch) {
		delete(c.entries, victim.Key)
	}
}

// Len reports the number of resident entries, for tests and metrics.
func (c *L2) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
