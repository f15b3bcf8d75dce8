//go:build linux

package evdev

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"
)

// EVIOCGRAB is _IOW('E', 0x90, int).
const evIOCGRAB = 0x40044590

// maxBatch bounds how many records one Read drains.
const maxBatch = 64

// DeviceSource is an event file opened non-blocking.
type DeviceSource struct {
	path string

	mu      sync.Mutex
	fd      int
	grabbed bool
	closed  bool
	buf     []byte
}

// Open opens the event file at path. There is no retry; the caller decides.
func Open(path string) (*DeviceSource, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DeviceSource{
		path: path,
		fd:   fd,
		buf:  make([]byte, recordSize*maxBatch),
	}, nil
}

// Path returns the event file path.
func (d *DeviceSource) Path() string {
	return d.path
}

// Fd returns the underlying descriptor for readiness polling.
func (d *DeviceSource) Fd() int {
	return d.fd
}

// Grabbed reports whether the exclusive grab succeeded.
func (d *DeviceSource) Grabbed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.grabbed
}

// Grab issues EVIOCGRAB so no other reader receives the device's events.
func (d *DeviceSource) Grab() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if err := unix.IoctlSetInt(d.fd, evIOCGRAB, 1); err != nil {
		return fmt.Errorf("grab %s: %w", d.path, err)
	}
	d.grabbed = true
	return nil
}

// Read drains up to maxBatch pending records.
func (d *DeviceSource) Read() ([]RawEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}

	n, err := unix.Read(d.fd, d.buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", d.path, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("read %s: %w", d.path, io.EOF)
	}
	return ParseEvents(d.buf[:n]), nil
}

// Close releases the grab, if held, and closes the descriptor.
func (d *DeviceSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	d.closed = true

	if d.grabbed {
		_ = unix.IoctlSetInt(d.fd, evIOCGRAB, 0)
		d.grabbed = false
	}
	return unix.Close(d.fd)
}
