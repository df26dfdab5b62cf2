package stats

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fileguard/fileguard/kernel"
)

// fakeNotifySource hands back events exactly once, then reports an empty
// batch for the remainder of the recording window.
type fakeNotifySource struct {
	mu     sync.Mutex
	events []kernel.NotifyEvent
	served bool
}

func (f *fakeNotifySource) ReadBatch() ([]kernel.NotifyEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.served {
		return nil, nil
	}
	f.served = true
	return f.events, nil
}

func (f *fakeNotifySource) Close() error { return nil }

func TestRecordBuildsAccessAndSizeDistributions(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "watched.txt")
	if err := os.WriteFile(target, []byte("0123456789"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	source := &fakeNotifySource{events: []kernel.NotifyEvent{
		{TimestampNs: 1, Path: target, SizeBytes: 10},
		{TimestampNs: 2, Path: target, SizeBytes: 10},
	}}

	trace, err := Record(source, dir, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	if len(trace.Events) != 2 {
		t.Fatalf("Events = %d, want 2", len(trace.Events))
	}
	var accessCount uint64
	for _, v := range trace.Access {
		accessCount += v
	}
	if accessCount != 2 {
		t.Errorf("total access count = %d, want 2", accessCount)
	}
	var sawSize bool
	for _, v := range trace.Size {
		if v == 10 {
			sawSize = true
		}
	}
	if !sawSize {
		t.Error("expected the walked size distribution to include the watched file's size")
	}
}

func TestRecordSkipsEventsOutsideTarget(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(t.TempDir(), "elsewhere.txt")

	source := &fakeNotifySource{events: []kernel.NotifyEvent{
		{TimestampNs: 1, Path: outside, SizeBytes: 5},
	}}

	trace, err := Record(source, dir, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(trace.Events) != 0 {
		t.Errorf("Events = %d, want 0 for a path outside the watch target", len(trace.Events))
	}
}
