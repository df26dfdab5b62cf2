package main

// internalPIDs tracks the pids the event loop must never scan against:
// this process's own pid and the logsink child's pid. Without this
// filter the guard deadlocks itself the first time it reads a file
// during a scan, since that read is itself a permission event the
// kernel blocks on (§9 "feedback loops"). Recorded once at init and
// read-only thereafter, per §9's note against ambient global state.
type internalPIDs struct {
	pids map[int32]struct{}
}

func newInternalPIDs(pids ...int32) *internalPIDs {
	set := make(map[int32]struct{}, len(pids))
	for _, p := range pids {
		set[p] = struct{}{}
	}
	return &internalPIDs{pids: set}
}

func (s *internalPIDs) isInternal(pid int32) bool {
	_, ok := s.pids[pid]
	return ok
}
