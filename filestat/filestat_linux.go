//go:build linux
// +build linux

package filestat

import (
	"fmt"
	"os"
	"syscall"

	"github.com/fileguard/fileguard/types"
)

func fromFileInfo(info os.FileInfo) (types.FileKey, types.FileMetadata, error) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return types.FileKey{}, types.FileMetadata{}, fmt.Errorf("filestat: unexpected Sys() type %T", info.Sys())
	}
	key := types.FileKey{
		Device: uint64(st.Dev),
		Inode:  st.Ino,
	}
	meta := types.FileMetadata{
		ModTimeNs:    st.Mtim.Sec*1e9 + st.Mtim.Nsec,
		ChangeTimeNs: st.Ctim.Sec*1e9 + st.Ctim.Nsec,
		SizeBytes:    st.Size,
	}
	return key, meta, nil
}
