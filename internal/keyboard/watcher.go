package keyboard

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"razerkbd/internal/evdev"
	"razerkbd/internal/logging"
)

// Poll loop timing. The wait timeout bounds how quickly a shutdown request
// is noticed; the sleep keeps an idle loop from spinning a core.
const (
	PollTimeout = 10 * time.Millisecond
	SpinSleep   = 5 * time.Millisecond
)

// ErrStopTimeout is returned when the watcher loop does not stop in time.
var ErrStopTimeout = errors.New("key watcher did not stop in time")

// Status is the lifecycle state of a Watcher.
type Status int32

const (
	StatusIdle Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	case StatusStopped:
		return "stopped"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Handler receives each decoded key event, in the order read.
type Handler func(code uint16, action Action) error

// WaitFunc blocks until some sources are readable or the timeout passes.
type WaitFunc func(sources []evdev.Source, timeout time.Duration) ([]evdev.Source, error)

// Watcher owns a set of event sources and runs the poll loop over them in
// its own goroutine.
type Watcher struct {
	sources []evdev.Source
	handler Handler
	wait    WaitFunc
	logger  *logging.Logger

	status   atomic.Int32
	started  atomic.Bool
	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewWatcher creates a watcher over sources. A nil wait uses evdev.Wait.
func NewWatcher(sources []evdev.Source, handler Handler, wait WaitFunc, logger *logging.Logger) *Watcher {
	if wait == nil {
		wait = evdev.Wait
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Watcher{
		sources:  sources,
		handler:  handler,
		wait:     wait,
		logger:   logger,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Status returns the current lifecycle state.
func (w *Watcher) Status() Status {
	return Status(w.status.Load())
}

// Alive reports whether the loop goroutine has started and not finished.
func (w *Watcher) Alive() bool {
	switch w.Status() {
	case StatusStarting, StatusRunning, StatusStopping:
		return true
	default:
		return false
	}
}

// Start launches the poll loop. Calling it more than once has no effect.
func (w *Watcher) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	w.status.Store(int32(StatusStarting))
	go w.run()
}

// Stop asks the loop to finish. The request is observed at the top of the
// next poll cycle; Stop does not wait.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// Wait blocks until the loop has stopped or timeout elapses.
func (w *Watcher) Wait(timeout time.Duration) error {
	if !w.started.Load() {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Done is closed once the loop reaches StatusStopped.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) run() {
	defer close(w.done)

	for _, src := range w.sources {
		if err := src.Grab(); err != nil {
			w.logger.Warn("error grabbing device, events will be shared", "device", src.Path(), "error", err)
			continue
		}
		w.logger.Debug("grabbed device", "device", src.Path())
	}

	w.status.Store(int32(StatusRunning))

	spin := time.NewTimer(SpinSleep)
	defer spin.Stop()

loop:
	for {
		select {
		case <-w.shutdown:
			break loop
		default:
		}

		if err := w.poll(); err != nil {
			w.logger.Error("error reading from device, stopping key watcher", "error", err)
			break loop
		}

		spin.Reset(SpinSleep)
		select {
		case <-w.shutdown:
			break loop
		case <-spin.C:
		}
	}

	w.status.Store(int32(StatusStopping))
	w.logger.Debug("closing key watcher")

	for _, src := range w.sources {
		_ = src.Close()
	}

	w.status.Store(int32(StatusStopped))
}

// poll runs one cycle: wait for readable sources and deliver their events.
func (w *Watcher) poll() error {
	ready, err := w.wait(w.sources, PollTimeout)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}

	for _, src := range ready {
		events, err := src.Read()
		if err != nil {
			return fmt.Errorf("%s: %w", src.Path(), err)
		}
		for _, ev := range events {
			code, action, ok := Decode(ev)
			if !ok {
				continue
			}
			if err := w.handler(code, action); err != nil {
				w.logger.Warn("key event not handled", "code", code, "action", action.String(), "error", err)
			}
		}
	}
	return nil
}
