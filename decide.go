package main

import (
	"os"

	"github.com/fileguard/fileguard/extractor"
	"github.com/fileguard/fileguard/matcher"
	"github.com/fileguard/fileguard/scanpool"
	"github.com/fileguard/fileguard/types"
)

// decideSync performs the inline scan §4.1.c specifies for a cache miss
// at or under the sync threshold, sharing scanpool.Decide's read/
// extract/match sequence with the async worker so the two paths can
// never silently diverge. Any internal failure fails open to ALLOW,
// never to BLOCK (§7).
func decideSync(f *os.File, size int64, ex extractor.Extractor, m matcher.Matcher, logf func(string, ...interface{})) types.Decision {
	blocked, err := scanpool.Decide(f, size, ex, m)
	if err != nil {
		logf("decide: inline scan failed: %v", err)
		return types.Allow
	}
	if blocked {
		return types.Block
	}
	return types.Allow
}
