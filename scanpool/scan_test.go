package scanpool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fileguard/fileguard/extractor"
	"github.com/fileguard/fileguard/matcher"
)

func writeTempFile(t *testing.T, contents string) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan-target")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestDecideBlocksOnMatch(t *testing.T) {
	f := writeTempFile(t, "this file contains SECRET_TOKEN inside it")
	m, err := matcher.New([]string{"SECRET_TOKEN"})
	if err != nil {
		t.Fatalf("matcher.New: %v", err)
	}
	blocked, err := Decide(f, 41, extractor.PlainText{}, m)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !blocked {
		t.Error("expected Decide to report blocked for a matching file")
	}
}

func TestDecideAllowsOnNoMatch(t *testing.T) {
	f := writeTempFile(t, "nothing interesting here")
	m, err := matcher.New([]string{"SECRET_TOKEN"})
	if err != nil {
		t.Fatalf("matcher.New: %v", err)
	}
	blocked, err := Decide(f, 24, extractor.PlainText{}, m)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if blocked {
		t.Error("expected Decide to allow a non-matching file")
	}
}

func TestDecideZeroSizeNeverBlocks(t *testing.T) {
	f := writeTempFile(t, "")
	m, err := matcher.New([]string{".*"})
	if err != nil {
		t.Fatalf("matcher.New: %v", err)
	}
	blocked, err := Decide(f, 0, extractor.PlainText{}, m)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if blocked {
		t.Error("a zero-size read should never match anything")
	}
}
