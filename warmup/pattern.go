package warmup

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fileguard/fileguard/cache"
	"github.com/fileguard/fileguard/filestat"
	"github.com/fileguard/fileguard/scanpool"
	"github.com/fileguard/fileguard/types"
	"golang.org/x/sys/unix"
)

// RunPatternMode implements §4.4's pattern mode: it asks the cache for
// the top-scored L1 rows, walks watchTarget once to resolve each
// FileKey back to a path by matching (dev, ino), and enqueues those
// that still exist, stopping once byteBudget bytes have been queued.
func RunPatternMode(c *cache.Cache, pool *scanpool.Pool, watchTarget string, limit int, byteBudget int64, logf Logf) error {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}

	rows, err := c.TopScoredForWarmup(limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	wanted := make(map[types.FileKey]types.CacheEntry, len(rows))
	for _, row := range rows {
		wanted[row.Key] = row
	}

	paths, err := resolvePaths(watchTarget, wanted)
	if err != nil {
		return err
	}

	// Largest-scored rows come first in rows; keep that order when
	// spending the byte budget so the highest-value files win ties.
	var spent int64
	for _, row := range rows {
		path, ok := paths[row.Key]
		if !ok {
			continue
		}
		if spent >= byteBudget {
			break
		}

		f, err := os.Open(path)
		if err != nil {
			continue
		}
		key, meta, err := filestat.Snapshot(f)
		if err != nil || key != row.Key {
			f.Close()
			continue
		}

		dupFd, err := unix.Dup(int(f.Fd()))
		f.Close()
		if err != nil {
			logf("warmup: pattern-mode dup failed for %s: %v", path, err)
			continue
		}

		pool.Enqueue(types.ScanTask{
			FdDup:      dupFd,
			Key:        key,
			SizeBytes:  meta.SizeBytes,
			EnqueuedAt: time.Now(),
		})
		spent += meta.SizeBytes
	}
	return nil
}

// resolvePaths walks target once, stating every regular file and
// keeping only those whose (dev, ino) appear in wanted.
func resolvePaths(target string, wanted map[types.FileKey]types.CacheEntry) (map[types.FileKey]string, error) {
	found := make(map[types.FileKey]string, len(wanted))
	remaining := len(wanted)

	err := filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if remaining == 0 {
			return filepath.SkipAll
		}
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		key, _, statErr := filestat.SnapshotPath(path)
		if statErr != nil {
			return nil
		}
		if _, ok := wanted[key]; !ok {
			return nil
		}
		if _, already := found[key]; already {
			return nil
		}
		found[key] = path
		remaining--
		return nil
	})
	return found, err
}
