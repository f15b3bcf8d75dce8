package keyboard

import (
	"sync"
	"time"
)

// DefaultKeyTTL is how long a pressed key stays in the Buffer.
const DefaultKeyTTL = 2 * time.Second

// Entry is a recently pressed key.
type Entry struct {
	Expiry time.Time
	Symbol string
}

// Buffer holds the keys pressed within the last TTL, oldest first. It is
// written by the watcher goroutine and read by effect renderers, so every
// access happens under mu. Entries are appended in arrival order, which
// keeps expiry times non-decreasing and lets eviction stop at the first
// live entry.
type Buffer struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	active  bool
	entries []Entry
}

// NewBuffer creates a buffer. A zero ttl means DefaultKeyTTL and a nil
// clock means time.Now.
func NewBuffer(ttl time.Duration, clock func() time.Time) *Buffer {
	if ttl <= 0 {
		ttl = DefaultKeyTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &Buffer{ttl: ttl, now: clock}
}

// TTL returns the configured time-to-live.
func (b *Buffer) TTL() time.Duration {
	return b.ttl
}

// SetCapture turns recording of future presses on or off.
func (b *Buffer) SetCapture(active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = active
}

// Capturing reports whether presses are being recorded.
func (b *Buffer) Capturing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Read evicts expired entries and returns a copy of the rest.
func (b *Buffer) Read() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.evictLocked(b.now())
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Evict drops every entry whose expiry is at or before now.
func (b *Buffer) Evict(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evictLocked(now)
}

// RecordIfActive appends symbol with expiry now+TTL when capture is on and
// the action is a press. It reports whether an entry was added.
func (b *Buffer) RecordIfActive(symbol string, action Action, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.evictLocked(now)
	if !b.active || action != Press {
		return false
	}
	b.entries = append(b.entries, Entry{Expiry: now.Add(b.ttl), Symbol: symbol})
	return true
}

// Len returns the number of stored entries without evicting.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Buffer) evictLocked(now time.Time) {
	i := 0
	for i < len(b.entries) && !b.entries[i].Expiry.After(now) {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(b.entries, b.entries[i:])
	clear(b.entries[n:])
	b.entries = b.entries[:n]
}
