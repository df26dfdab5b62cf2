package kernel

import (
	"sync"
)

// FakeSource is an in-memory Source used by tests to exercise the event
// loop without a real fanotify fd.
type FakeSource struct {
	mu        sync.Mutex
	pending   []Event
	responses map[int]Response
	closed    bool
}

func NewFakeSource(events ...Event) *FakeSource {
	return &FakeSource{
		pending:   append([]Event{}, events...),
		responses: make(map[int]Response),
	}
}

func (f *FakeSource) ReadBatch() ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := f.pending
	f.pending = nil
	return batch, nil
}

// Push appends more events for a subsequent ReadBatch call.
func (f *FakeSource) Push(events ...Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, events...)
}

func (f *FakeSource) Respond(fd int, response Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[fd] = response
	return nil
}

// ResponseFor returns the response written for fd, if any.
func (f *FakeSource) ResponseFor(fd int) (Response, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.responses[fd]
	return r, ok
}

func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
