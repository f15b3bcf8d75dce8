package keyboard

import (
	"sync"
	"sync/atomic"
	"time"

	"razerkbd/internal/logging"
	"razerkbd/internal/metrics"
)

// Default pool sizing for key playback.
const (
	DefaultDispatchWorkers = 4
	DefaultDispatchQueue   = 128
)

// KeyPresser plays back a key event, typically through key bindings.
type KeyPresser interface {
	KeyPress(code uint16, action Action)
}

// Submitter accepts key events for asynchronous playback without blocking.
type Submitter interface {
	Submit(code uint16, action Action) bool
}

type keyJob struct {
	code   uint16
	action Action
}

// Dispatcher hands key events to a KeyPresser on a fixed pool of worker
// goroutines. Each worker owns a queue and a key code always goes to the
// same worker, so one key's events play back in the order they were
// submitted. Events for different keys may be played back out of order.
// Submit never blocks the caller: when a queue is full the event is
// dropped and counted.
type Dispatcher struct {
	presser KeyPresser
	logger  *logging.Logger
	metrics atomic.Pointer[metrics.KeyMetrics]

	mu      sync.RWMutex
	closed  bool
	queues  []chan keyJob
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

// NewDispatcher starts workers goroutines, each reading from its own
// queue of queueSize events.
func NewDispatcher(presser KeyPresser, workers, queueSize int, logger *logging.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultDispatchWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultDispatchQueue
	}
	if logger == nil {
		logger = logging.Default()
	}

	d := &Dispatcher{
		presser: presser,
		logger:  logger,
		queues:  make([]chan keyJob, workers),
	}
	d.wg.Add(workers)
	for i := range d.queues {
		d.queues[i] = make(chan keyJob, queueSize)
		go d.worker(d.queues[i])
	}
	return d
}

func (d *Dispatcher) worker(queue <-chan keyJob) {
	defer d.wg.Done()
	for job := range queue {
		// Recover per job so the worker survives.
		start := time.Now()
		logging.WrapPanicWithContext(map[string]any{"code": job.code, "action": job.action.String()}, func() {
			d.presser.KeyPress(job.code, job.action)
		})
		d.metrics.Load().Playback(time.Since(start))
	}
}

// Submit queues a key event on the worker that owns its key code. It
// reports false if the event was dropped because that queue is full or
// the dispatcher is closed.
func (d *Dispatcher) Submit(code uint16, action Action) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}
	select {
	case d.queues[int(code)%len(d.queues)] <- keyJob{code: code, action: action}:
		return true
	default:
		d.dropped.Add(1)
		d.metrics.Load().Dropped()
		d.logger.Warn("key playback queue full, dropping event", "code", code, "action", action.String())
		return false
	}
}

// Instrument records playback latency and drops in m.
func (d *Dispatcher) Instrument(m *metrics.KeyMetrics) {
	d.metrics.Store(m)
}

// Dropped returns how many events were discarded.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting events and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
