// Package ruleset canonicalises the watch scope and pattern list, hashes
// them, and computes the monotonic version transitions described in
// spec §4.5.
package ruleset

import (
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/fileguard/fileguard/types"
)

// canonicalScope is the deterministic encoding input for the scope hash:
// field order is fixed by the struct, and the path is cleaned so that
// "/a/b/" and "/a/b" hash identically.
type canonicalScope struct {
	WatchMode string `yaml:"watch_mode"`
	Target    string `yaml:"watch_target"`
}

// ScopeHash digests watch_mode + the canonicalised watch_target path.
func ScopeHash(watchMode, watchTarget string) ([32]byte, error) {
	canon := canonicalScope{
		WatchMode: watchMode,
		Target:    filepath.Clean(watchTarget),
	}
	return canonicalHash(canon)
}

// PatternsHash digests the sorted list of pattern strings, so reordering
// the configured patterns never changes the hash.
func PatternsHash(patterns []string) ([32]byte, error) {
	sorted := append([]string{}, patterns...)
	sort.Strings(sorted)
	return canonicalHash(sorted)
}

func canonicalHash(v interface{}) ([32]byte, error) {
	encoded, err := yaml.Marshal(v)
	if err != nil {
		return [32]byte{}, err
	}
	hasher := blake3.New()
	hasher.Write(encoded)
	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out, nil
}

// Transition computes the next RulesetMeta given the persisted one (if
// any) and the freshly computed scope/patterns hashes, per §4.5 step 4.
// Version 0 is reserved as "uninitialised" and is never returned.
func Transition(prev types.RulesetMeta, prevFound bool, scopeHash, patternsHash [32]byte) types.RulesetMeta {
	if !prevFound {
		return types.RulesetMeta{
			ScopeHash:      scopeHash,
			PatternsHash:   patternsHash,
			RulesetVersion: 1,
		}
	}

	scopeChanged := prev.ScopeHash != scopeHash
	patternsChanged := prev.PatternsHash != patternsHash

	version := prev.RulesetVersion
	if version == 0 {
		version = 1
	}

	switch {
	case !scopeChanged && !patternsChanged:
		return types.RulesetMeta{ScopeHash: prev.ScopeHash, PatternsHash: prev.PatternsHash, RulesetVersion: version}
	case scopeChanged:
		// Scope changed, alone or together with patterns: bump and
		// overwrite both hashes.
		return types.RulesetMeta{ScopeHash: scopeHash, PatternsHash: patternsHash, RulesetVersion: version + 1}
	default:
		// Only patterns changed: bump, overwrite only the patterns hash.
		return types.RulesetMeta{ScopeHash: prev.ScopeHash, PatternsHash: patternsHash, RulesetVersion: version + 1}
	}
}
