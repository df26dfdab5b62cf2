//go:build linux
// +build linux

package kernel

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const notifyInitFlags = unix.FAN_CLASS_NOTIF | unix.FAN_UNLIMITED_QUEUE | unix.FAN_UNLIMITED_MARKS

type linuxNotifySource struct {
	fd int
}

// NewLinuxNotifySource arms watchTarget for FAN_OPEN notifications
// (never permission events — statistic mode must not block opens).
func NewLinuxNotifySource(watchTarget string, mount bool) (NotifySource, error) {
	fd, err := unix.FanotifyInit(notifyInitFlags, uint(unix.O_RDONLY|unix.O_LARGEFILE))
	if err != nil {
		return nil, fmt.Errorf("fanotify init (notify class, needs CAP_SYS_ADMIN): %w", err)
	}

	markFlags := uint(unix.FAN_MARK_ADD)
	if mount {
		markFlags |= unix.FAN_MARK_MOUNT
	}
	if err := unix.FanotifyMark(fd, markFlags, unix.FAN_OPEN, unix.AT_FDCWD, watchTarget); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("fanotify mark %s: %w", watchTarget, err)
	}

	return &linuxNotifySource{fd: fd}, nil
}

func (s *linuxNotifySource) ReadBatch() ([]NotifyEvent, error) {
	buf := make([]byte, eventBufferSize)
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("read fanotify notify events: %w", err)
	}

	var events []NotifyEvent
	offset := 0
	for offset+fanotifyEventMetadataSize <= n {
		meta := (*unix.FanotifyEventMetadata)(unsafe.Pointer(&buf[offset]))
		if meta.Event_len == 0 {
			break
		}

		if meta.Mask&unix.FAN_OPEN != 0 && meta.Fd >= 0 {
			if ev, ok := resolveNotifyEvent(meta.Fd); ok {
				events = append(events, ev)
			}
		}
		if meta.Fd >= 0 {
			unix.Close(int(meta.Fd))
		}

		offset += int(meta.Event_len)
	}
	return events, nil
}

// resolveNotifyEvent resolves fd to a path via /proc/self/fd and stats
// it for size. A path carrying the kernel's " (deleted)" suffix, or one
// that can no longer be stated, is reported ok=false and not recorded.
func resolveNotifyEvent(fd int32) (NotifyEvent, bool) {
	link := fmt.Sprintf("/proc/self/fd/%d", fd)
	path, err := os.Readlink(link)
	if err != nil {
		return NotifyEvent{}, false
	}
	if strings.HasSuffix(path, " (deleted)") {
		return NotifyEvent{}, false
	}

	info, err := os.Stat(path)
	if err != nil {
		return NotifyEvent{}, false
	}

	return NotifyEvent{
		TimestampNs: time.Now().UnixNano(),
		Path:        path,
		SizeBytes:   uint64(info.Size()),
	}, true
}

func (s *linuxNotifySource) Close() error {
	return unix.Close(s.fd)
}
