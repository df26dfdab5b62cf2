// Package cache implements the two-tier decision cache described in the
// spec: an in-memory L2 tier backed by a durable sqlite L1 tier, sharing
// a common (device, inode) key schema and validated against a witnessed
// file-metadata snapshot plus the active ruleset version.
package cache

import (
	"fmt"
	"time"

	"github.com/fileguard/fileguard/types"
)

// Cache is the facade the event loop, scan pool, and warmup subsystem
// use. Cache owns both tiers and performs the promote-on-miss path
// itself; L2 holds no reference to L1, so there is no cyclic or joint
// ownership between the tiers.
type Cache struct {
	l2     *L2
	l1     *L1
	policy Policy
}

// Open constructs a Cache with the given L2 byte capacity/policy and
// opens (or creates) the L1 sqlite file at l1Path.
func Open(l1Path string, l2CapacityBytes int64, policy Policy) (*Cache, error) {
	l1, err := OpenL1(l1Path)
	if err != nil {
		return nil, fmt.Errorf("open L1 cache: %w", err)
	}
	return &Cache{
		l2:     NewL2(l2CapacityBytes, policy),
		l1:     l1,
		policy: policy,
	}, nil
}

// Lookup consults L2 first, then falls back to L1 and promotes a hit
// into L2. Both hits are reported as cache hits to callers but are
// distinguished in the LookupResult for metrics.
func (c *Cache) Lookup(key types.FileKey, snapshot types.FileMetadata, rulesetVersion uint64) (types.LookupResult, types.Decision) {
	if result, decision := c.l2.Get(key, snapshot, rulesetVersion); result.Hit() {
		return result, decision
	}

	row, err := c.l1.Get(key)
	if err != nil || row == nil {
		return types.LookupNone, types.Undecided
	}
	if !row.Matches(snapshot, rulesetVersion) {
		return types.LookupNone, types.Undecided
	}

	row.HitCount++
	row.LastAccessNs = time.Now().UnixNano()
	_ = c.l1.Touch(key, row.LastAccessNs)
	c.l2.Put(*row)
	return types.LookupHitL1Promoted, row.Decision
}

// Insert installs a freshly computed ALLOW/BLOCK decision into both
// tiers. UNDECIDED must never reach here (invariant: only ALLOW/BLOCK
// are persisted).
func (c *Cache) Insert(key types.FileKey, snapshot types.FileMetadata, rulesetVersion uint64, decision types.Decision) error {
	if decision == types.Undecided {
		return fmt.Errorf("cache: refusing to persist UNDECIDED for %+v", key)
	}
	now := time.Now().UnixNano()
	entry := types.CacheEntry{
		Key:            key,
		Metadata:       snapshot,
		Decision:       decision,
		RulesetVersion: rulesetVersion,
		LastAccessNs:   now,
		HitCount:       0,
	}
	c.l2.Put(entry)
	return c.l1.Upsert(entry)
}

// InvalidateStaleRuleset deletes every L1 row whose ruleset_version
// differs from current, in one transactional DELETE. L2 is always empty
// at the point this runs (process start), so it needs no pass (§4.5
// step 5).
func (c *Cache) InvalidateStaleRuleset(current uint64) (int64, error) {
	return c.l1.DeleteStaleVersion(current)
}

// InvalidateRuntimeReload is InvalidateStaleRuleset's counterpart for a
// ruleset change that happens mid-run rather than at startup: L2 is not
// guaranteed empty here, so its stale entries need purging too.
func (c *Cache) InvalidateRuntimeReload(current uint64) (int64, error) {
	c.l2.InvalidateVersion(current)
	return c.l1.DeleteStaleVersion(current)
}

// TopScoredForWarmup exposes L1's composite-score ranking to pattern-mode
// warmup.
func (c *Cache) TopScoredForWarmup(limit int) ([]types.CacheEntry, error) {
	return c.l1.TopScored(limit)
}

// L2Len reports the number of entries resident in the in-memory tier.
func (c *Cache) L2Len() int {
	return c.l2.Len()
}

// L1FootprintBytes reports L1's estimated live-page footprint.
func (c *Cache) L1FootprintBytes() (int64, error) {
	return c.l1.PageFootprintBytes()
}

// LoadRulesetMeta / SaveRulesetMeta delegate to L1's meta table.
func (c *Cache) LoadRulesetMeta() (types.RulesetMeta, bool, error) {
	return c.l1.LoadMeta()
}

func (c *Cache) SaveRulesetMeta(meta types.RulesetMeta) error {
	return c.l1.SaveMeta(meta)
}

// Close releases the L1 database handle.
func (c *Cache) Close() error {
	return c.l1.Close()
}
