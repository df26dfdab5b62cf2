// Package matcher defines the regex-matching engine's contract. The
// matcher itself is an external collaborator per the spec — a
// Hyperscan-like multi-pattern engine is assumed in production — so this
// package only specifies the boundary (construct from a pattern list,
// then ask "does anything match"), plus a default implementation built
// on the standard library's regexp since nothing in the retrieved corpus
// ships a multi-pattern regex engine (BobuSumisu/aho-corasick is plain
// substring matching, not regex, and bradleyjkemp/sigma-go evaluates a
// rule DSL, not bare patterns — neither can serve this contract).
package matcher

import (
	"fmt"
	"regexp"
)

// Matcher is the contract the event loop and scan pool hold: given
// extracted text, does any configured pattern match. Per-goroutine
// scratch state is the implementer's problem — the stdlib implementation
// below needs none, since regexp.Regexp is safe for concurrent use.
type Matcher interface {
	AnyMatch(text string) bool
}

// regexMatcher is the default Matcher, compiling each configured pattern
// independently and reporting a match if any one of them does.
type regexMatcher struct {
	patterns []*regexp.Regexp
}

// New compiles patterns into a Matcher. An empty pattern list is valid
// and produces a matcher that never matches anything (§8 boundary:
// "Empty pattern list: every file ALLOWs").
func New(patterns []string) (Matcher, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &regexMatcher{patterns: compiled}, nil
}

func (m *regexMatcher) AnyMatch(text string) bool {
	for _, re := range m.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
