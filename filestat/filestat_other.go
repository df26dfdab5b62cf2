//go:build !linux
// +build !linux

package filestat

import (
	"os"

	"github.com/fileguard/fileguard/types"
)

// fromFileInfo is a best-effort fallback for non-Linux builds (used for
// development only — the guard itself only ever runs on Linux, since
// fanotify is Linux-only). There is no portable change-time, so ctime is
// approximated with mtime.
func fromFileInfo(info os.FileInfo) (types.FileKey, types.FileMetadata, error) {
	key := types.FileKey{
		Device: 0,
		Inode:  uint64(info.ModTime().UnixNano()), // not stable; dev build only
	}
	meta := types.FileMetadata{
		ModTimeNs:    info.ModTime().UnixNano(),
		ChangeTimeNs: info.ModTime().UnixNano(),
		SizeBytes:    info.Size(),
	}
	return key, meta, nil
}
