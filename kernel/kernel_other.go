//go:build !linux
// +build !linux

package kernel

import "fmt"

// NewLinuxSource is unavailable off Linux; fanotify is a Linux-only
// kernel interface. Kept so callers can build on other platforms for
// development, matching the teacher's bpf_darwin.go stub.
func NewLinuxSource(watchTarget string, mount bool) (Source, error) {
	return nil, fmt.Errorf("kernel: fanotify permission events are only available on linux")
}

// DupCloseOnExec is unavailable off Linux; see kernel_linux.go.
func DupCloseOnExec(fd int) (int, error) {
	return 0, fmt.Errorf("kernel: dup close-on-exec is only available on linux")
}
