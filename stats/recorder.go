package stats

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fileguard/fileguard/filestat"
	"github.com/fileguard/fileguard/kernel"
	"github.com/fileguard/fileguard/types"
)

// Record runs statistic mode for duration: it drains notify events from
// source, building the access distribution and a live-trace event log,
// while concurrently walking watchTarget once to build the size
// distribution, per §4.6.
func Record(source kernel.NotifySource, watchTarget string, duration time.Duration) (*Trace, error) {
	t := &Trace{
		Access: make(types.AccessDistribution),
		Size:   make(types.SizeDistribution),
	}
	var mu sync.Mutex

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sizes, err := walkSizeDistribution(watchTarget)
		if err != nil {
			return
		}
		mu.Lock()
		for k, v := range sizes {
			t.Size[k] = v
		}
		mu.Unlock()
	}()

	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		events, err := source.ReadBatch()
		if err != nil {
			return nil, fmt.Errorf("read notify batch: %w", err)
		}
		for _, ev := range events {
			if !withinTarget(ev.Path, watchTarget) {
				continue
			}
			key, _, err := filestat.SnapshotPath(ev.Path)
			if err != nil {
				continue
			}

			mu.Lock()
			t.Access[key]++
			t.Events = append(t.Events, types.TraceEvent{
				TimestampNs: ev.TimestampNs,
				Key:         key,
				SizeBytes:   ev.SizeBytes,
				Op:          types.OpOpen,
			})
			mu.Unlock()
		}
	}

	wg.Wait()
	return t, nil
}

func withinTarget(path, watchTarget string) bool {
	path = strings.TrimSuffix(path, " (deleted)")
	rel, err := filepath.Rel(watchTarget, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, "../")
}
