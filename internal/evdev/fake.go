package evdev

import (
	"sync"
	"time"
)

// FakeSource is a scripted Source for tests. Each Read returns the next
// queued batch, or an empty batch when the queue is drained.
type FakeSource struct {
	path string

	mu         sync.Mutex
	batches    [][]RawEvent
	readErr    error
	readErrAt  int
	reads      int
	grabErr    error
	closeErr   error
	grabCalls  int
	closeCalls int
}

// NewFakeSource creates a fake source with the given path.
func NewFakeSource(path string) *FakeSource {
	return &FakeSource{path: path, readErrAt: -1}
}

// Push queues a batch of events.
func (f *FakeSource) Push(events ...RawEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, events)
}

// PushKey queues a single EV_KEY record followed by a SYN_REPORT, as a
// kernel would deliver it.
func (f *FakeSource) PushKey(code uint16, value int32) {
	now := time.Now()
	f.Push(
		RawEvent{Time: now, Type: EvKey, Code: code, Value: value},
		RawEvent{Time: now, Type: EvSyn, Code: SynReport},
	)
}

// FailReads makes every Read from the n-th call onwards (zero based) fail.
func (f *FakeSource) FailReads(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErrAt = n
	f.readErr = err
}

// FailGrab makes Grab return err.
func (f *FakeSource) FailGrab(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grabErr = err
}

// FailClose makes Close return err.
func (f *FakeSource) FailClose(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeErr = err
}

func (f *FakeSource) Path() string {
	return f.path
}

func (f *FakeSource) Grab() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grabCalls++
	return f.grabErr
}

func (f *FakeSource) Read() ([]RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.reads
	f.reads++
	if f.readErrAt >= 0 && n >= f.readErrAt {
		return nil, f.readErr
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return f.closeErr
}

// GrabCalls returns how many times Grab was called.
func (f *FakeSource) GrabCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grabCalls
}

// CloseCalls returns how many times Close was called.
func (f *FakeSource) CloseCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

// Pending returns the number of queued batches not yet read.
func (f *FakeSource) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}
