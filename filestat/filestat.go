// Package filestat turns an open file into the (FileKey, FileMetadata)
// pair the cache keys and validates decisions against.
package filestat

import (
	"os"

	"github.com/fileguard/fileguard/types"
)

// Snapshot stats f and returns its cache key and staleness witness.
func Snapshot(f *os.File) (types.FileKey, types.FileMetadata, error) {
	info, err := f.Stat()
	if err != nil {
		return types.FileKey{}, types.FileMetadata{}, err
	}
	return fromFileInfo(info)
}

// SnapshotPath is the path-based equivalent of Snapshot, used by warmup
// when resolving a FileKey back to a path and re-checking it still
// refers to the same file.
func SnapshotPath(path string) (types.FileKey, types.FileMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.FileKey{}, types.FileMetadata{}, err
	}
	return fromFileInfo(info)
}
