// Package types holds the data model shared across the decision engine:
// the cache key, the staleness witness, decisions, and the records that
// flow between the event loop, the cache, the async scan pool, and the
// statistic/simulation harness.
package types

import "time"

// FileKey is the cache identity for a file: a (device, inode) pair.
// Two distinct live files on the same device never share an inode, so
// this pair is the cache key everywhere in the system.
type FileKey struct {
	Device uint64
	Inode  uint64
}

// FileMetadata is the staleness witness captured at decision time. A
// cache entry is valid only if the current file's snapshot equals this
// one exactly.
type FileMetadata struct {
	ModTimeNs    int64
	ChangeTimeNs int64
	SizeBytes    int64
}

// Decision is a tagged ALLOW/BLOCK/UNDECIDED value. UNDECIDED must never
// be persisted: it means "answer ALLOW now, a real decision is being
// computed asynchronously."
type Decision int8

const (
	Undecided Decision = iota
	Allow
	Block
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "ALLOW"
	case Block:
		return "BLOCK"
	default:
		return "UNDECIDED"
	}
}

// CacheEntry is the value side of the FileKey -> entry map, shared by
// both cache tiers.
type CacheEntry struct {
	Key            FileKey
	Metadata       FileMetadata
	Decision       Decision
	RulesetVersion uint64
	LastAccessNs   int64
	HitCount       uint64
}

// Matches reports whether the given snapshot matches the entry's
// witnessed metadata and ruleset version exactly (invariant 3, §8).
func (e *CacheEntry) Matches(snapshot FileMetadata, rulesetVersion uint64) bool {
	return e.Metadata == snapshot && e.RulesetVersion == rulesetVersion
}

// LookupResult encodes where a cache hit was satisfied from, so callers
// can record L1-promotion separately from a plain L2 hit without
// changing the decision they act on.
type LookupResult int8

const (
	LookupNone LookupResult = iota
	LookupHitL2
	LookupHitL1Promoted
)

func (r LookupResult) Hit() bool {
	return r == LookupHitL2 || r == LookupHitL1Promoted
}

// RulesetMeta identifies the currently-active ruleset: the canonical
// hashes of scope and patterns, and the monotonic version they bumped.
type RulesetMeta struct {
	ScopeHash      [32]byte
	PatternsHash   [32]byte
	RulesetVersion uint64
}

// ScanTask is queued from the event loop to the async scan pool. FdDup
// is owned by the task until the worker closes it.
type ScanTask struct {
	FdDup          int
	OriginatingPID int32
	Key            FileKey
	SizeBytes      int64
	EnqueuedAt     time.Time
}

// Op identifies the kind of access a TraceEvent records. The statistic
// harness only ever records Open today, but the type exists so a future
// mode (e.g. tracing writes) does not need a format break.
type Op uint8

const (
	OpOpen Op = iota
)

// TraceEvent is one recorded access, used only by the statistic/
// simulation harness, never by the live decision path.
type TraceEvent struct {
	TimestampNs int64
	Key         FileKey
	SizeBytes   uint64
	Op          Op
}

// AccessDistribution maps a file to how many times it was opened during
// a trace recording.
type AccessDistribution map[FileKey]uint64

// SizeDistribution maps a file to its size as observed during a trace
// recording.
type SizeDistribution map[FileKey]uint64
