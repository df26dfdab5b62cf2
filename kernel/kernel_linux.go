//go:build linux
// +build linux

package kernel

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	fanotifyInitFlags  = unix.FAN_CLASS_CONTENT | unix.FAN_CLOEXEC
	fanotifyEventFlags = unix.O_RDONLY | unix.O_LARGEFILE | unix.O_CLOEXEC
	// fanotifyMarkEvents includes FAN_EVENT_ON_CHILD: without it a mark
	// on a directory only reports opens of the directory inode itself,
	// never opens of files inside it, which is the whole point of
	// watch_mode="path" (§6).
	fanotifyMarkEvents = unix.FAN_OPEN_PERM | unix.FAN_EVENT_ON_CHILD

	eventBufferSize = 4096

	// fanotifyMetadataVersion is the kernel ABI version this package was
	// written against (Linux's FANOTIFY_METADATA_VERSION). A mismatch
	// means the running kernel speaks a fanotify wire format this code
	// does not understand, which is fatal per §6.
	fanotifyMetadataVersion = 3

	// fanotifyEventMetadataSize is sizeof(struct fanotify_event_metadata)
	// on every architecture this guard targets: 4+1+1+2+8+4+4 bytes with
	// natural alignment.
	fanotifyEventMetadataSize = 24

	// fanotifyResponseSize is sizeof(struct fanotify_response): int32 fd
	// + uint32 response.
	fanotifyResponseSize = 8
)

// fanotifyResponse mirrors the kernel's struct fanotify_response, used
// to write the ALLOW/DENY verdict back.
type fanotifyResponse struct {
	Fd       int32
	Response uint32
}

// linuxSource is the real fanotify-backed Source. It arms a single mark
// on watchTarget (a path or, with FAN_MARK_MOUNT, a whole mount) for
// open-permission events. ReadBatch checks the kernel's own metadata
// version against fanotifyMetadataVersion, and additionally tags every
// event it returns with a package-local Event-record version.
type linuxSource struct {
	fd      int
	version uint32
}

const fanotifySourceVersion = 1

// NewLinuxSource initializes fanotify and marks watchTarget. mount=true
// watches the whole mount the target lives on; mount=false watches only
// the target path and, for a directory, the files directly inside it
// (FAN_EVENT_ON_CHILD); subdirectories are not marked.
func NewLinuxSource(watchTarget string, mount bool) (Source, error) {
	fd, err := unix.FanotifyInit(fanotifyInitFlags, uint(fanotifyEventFlags))
	if err != nil {
		return nil, fmt.Errorf("fanotify init (needs CAP_SYS_ADMIN): %w", err)
	}

	markFlags := uint(unix.FAN_MARK_ADD)
	if mount {
		markFlags |= unix.FAN_MARK_MOUNT
	}

	if err := unix.FanotifyMark(fd, markFlags, fanotifyMarkEvents, unix.AT_FDCWD, watchTarget); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("fanotify mark %s: %w", watchTarget, err)
	}

	return &linuxSource{fd: fd, version: fanotifySourceVersion}, nil
}

func (s *linuxSource) ReadBatch() ([]Event, error) {
	buf := make([]byte, eventBufferSize)

	n, err := unix.Read(s.fd, buf)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("read fanotify events: %w", err)
	}

	var events []Event
	offset := 0
	for offset+fanotifyEventMetadataSize <= n {
		meta := (*unix.FanotifyEventMetadata)(unsafe.Pointer(&buf[offset]))
		if meta.Event_len == 0 {
			break
		}

		if uint32(meta.Vers) != fanotifyMetadataVersion {
			return events, &ErrVersionMismatch{Got: uint32(meta.Vers), Want: fanotifyMetadataVersion}
		}

		if meta.Mask&unix.FAN_OPEN_PERM != 0 {
			events = append(events, Event{
				Version:        s.version,
				Mask:           MaskOpenPermission,
				Fd:             int(meta.Fd),
				OriginatingPID: meta.Pid,
			})
		} else if meta.Fd >= 0 {
			unix.Close(int(meta.Fd))
		}

		offset += int(meta.Event_len)
	}
	return events, nil
}

func (s *linuxSource) Respond(fd int, response Response) error {
	verdict := uint32(unix.FAN_ALLOW)
	if response == ResponseDeny {
		verdict = unix.FAN_DENY
	}
	resp := fanotifyResponse{
		Fd:       int32(fd),
		Response: verdict,
	}
	buf := (*[fanotifyResponseSize]byte)(unsafe.Pointer(&resp))[:]
	_, err := unix.Write(s.fd, buf)
	return err
}

func (s *linuxSource) Close() error {
	return unix.Close(s.fd)
}

// DupCloseOnExec duplicates fd with the close-on-exec flag set, for
// transferring ownership to an async worker without the duplicate
// leaking across an exec (§9 "fd ownership transfer").
func DupCloseOnExec(fd int) (int, error) {
	return unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
}
