// Package evdev reads raw Linux input events from /dev/input/event* files.
//
// A Source is one input device file that can be grabbed for exclusive
// delivery, drained in batches and closed. DeviceSource is the real
// implementation; FakeSource is a scripted double for tests.
package evdev

import (
	"encoding/binary"
	"errors"
	"time"
)

// Event types from input-event-codes.h used by this package.
const (
	EvSyn uint16 = 0x00
	EvKey uint16 = 0x01

	SynReport uint16 = 0
)

// Key values carried by EV_KEY records.
const (
	ValueRelease    int32 = 0
	ValuePress      int32 = 1
	ValueAutorepeat int32 = 2
)

// RawEvent is one decoded input_event record.
type RawEvent struct {
	Time  time.Time
	Type  uint16
	Code  uint16
	Value int32
}

// Source is a single input device event file.
type Source interface {
	// Path returns the file-system path the source was opened from.
	Path() string

	// Grab requests exclusive delivery of the device's events.
	Grab() error

	// Read returns the batch of events currently available. An empty
	// batch with a nil error means nothing was pending.
	Read() ([]RawEvent, error)

	// Close releases the grab and the file descriptor.
	Close() error
}

// ErrClosed is returned when a closed source is used.
var ErrClosed = errors.New("evdev: source closed")

// recordSize is sizeof(struct input_event) on 64-bit kernels.
const recordSize = 24

// ParseEvents decodes a buffer of input_event records. Trailing bytes that
// do not form a whole record are ignored.
func ParseEvents(buf []byte) []RawEvent {
	n := len(buf) / recordSize
	if n == 0 {
		return nil
	}

	events := make([]RawEvent, 0, n)
	for i := 0; i < n; i++ {
		rec := buf[i*recordSize : (i+1)*recordSize]
		sec := int64(binary.NativeEndian.Uint64(rec[0:8]))
		usec := int64(binary.NativeEndian.Uint64(rec[8:16]))
		events = append(events, RawEvent{
			Time:  time.Unix(sec, usec*int64(time.Microsecond)),
			Type:  binary.NativeEndian.Uint16(rec[16:18]),
			Code:  binary.NativeEndian.Uint16(rec[18:20]),
			Value: int32(binary.NativeEndian.Uint32(rec[20:24])),
		})
	}
	return events
}

// EncodeEvent is the inverse of ParseEvents for a single record.
func EncodeEvent(ev RawEvent) []byte {
	rec := make([]byte, recordSize)
	usec := ev.Time.Nanosecond() / int(time.Microsecond)
	binary.NativeEndian.PutUint64(rec[0:8], uint64(ev.Time.Unix()))
	binary.NativeEndian.PutUint64(rec[8:16], uint64(usec))
	binary.NativeEndian.PutUint16(rec[16:18], ev.Type)
	binary.NativeEndian.PutUint16(rec[18:20], ev.Code)
	binary.NativeEndian.PutUint32(rec[20:24], uint32(ev.Value))
	return rec
}
