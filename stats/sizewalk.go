package stats

import (
	"io/fs"
	"path/filepath"

	"github.com/fileguard/fileguard/filestat"
	"github.com/fileguard/fileguard/types"
)

// walkSizeDistribution pre-scans target once, collecting every regular
// file's size keyed by FileKey. Errors on individual entries are
// skipped — a single unreadable file must not abort the whole walk.
func walkSizeDistribution(target string) (types.SizeDistribution, error) {
	dist := make(types.SizeDistribution)
	err := filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		key, meta, err := filestat.SnapshotPath(path)
		if err != nil {
			return nil
		}
		dist[key] = uint64(meta.SizeBytes)
		return nil
	})
	return dist, err
}
