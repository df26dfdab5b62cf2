package scanpool

import (
	"fmt"
	"io"
	"os"

	"github.com/fileguard/fileguard/extractor"
	"github.com/fileguard/fileguard/matcher"
)

// readFull performs the retryable short-read loop §7 specifies for the
// full-file slurp: short reads are retried, everything else fails open
// to the caller.
func readFull(f *os.File, size int64) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	read := 0
	for read < len(buf) {
		n, err := f.ReadAt(buf[read:], int64(read))
		read += n
		if err != nil {
			if err == io.EOF && read == len(buf) {
				break
			}
			if n > 0 {
				continue // short read, retry
			}
			return nil, fmt.Errorf("read file: %w", err)
		}
	}
	return buf[:read], nil
}

// Decide reads f fully, extracts text, and queries the matcher. Any
// internal failure here must fail open — callers translate a non-nil
// error into ALLOW, never into a blocked open (§7's fail-open taxonomy).
// Exported so the event loop's inline-scan path (miss, size <= sync
// threshold) shares the exact same read/extract/match sequence as the
// async worker's, rather than re-deriving it. A size of zero or less is
// never read and never blocks.
func Decide(f *os.File, size int64, ex extractor.Extractor, m matcher.Matcher) (blocked bool, err error) {
	if size <= 0 {
		return false, nil
	}
	data, err := readFull(f, size)
	if err != nil {
		return false, err
	}
	text, err := ex.Extract(data)
	if err != nil {
		return false, err
	}
	return m.AnyMatch(text), nil
}
