//go:build linux
// +build linux

package scanpool

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// setIdlePriority lowers this worker goroutine's OS thread to the lowest
// CPU and IO scheduling priority, so it always yields to the
// latency-sensitive event loop (§4.3, §7 "silent, best-effort").
// LockOSThread is required since priority is a per-thread property on
// Linux and the Go runtime otherwise migrates goroutines across threads.
func setIdlePriority() {
	runtime.LockOSThread()
	_ = unix.Setpriority(unix.PRIO_PROCESS, 0, 19)
	// ioprio_set(IOPRIO_WHO_PROCESS, 0, IOPRIO_CLASS_IDLE << IOPRIO_CLASS_SHIFT)
	// moves the calling thread into the idle IO scheduling class.
	const ioprioWhoProcess, ioprioClassIdle, ioprioClassShift = 1, 3, 13
	_, _, _ = unix.Syscall(unix.SYS_IOPRIO_SET, ioprioWhoProcess, 0, ioprioClassIdle<<ioprioClassShift)
}
