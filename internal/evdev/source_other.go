//go:build !linux

package evdev

import (
	"errors"
	"time"
)

// ErrUnsupported is returned on platforms without evdev.
var ErrUnsupported = errors.New("evdev: input event files are only available on linux")

// DeviceSource is unavailable off Linux.
type DeviceSource struct{}

// Open always fails off Linux.
func Open(path string) (*DeviceSource, error) {
	return nil, ErrUnsupported
}

func (d *DeviceSource) Path() string              { return "" }
func (d *DeviceSource) Grab() error               { return ErrUnsupported }
func (d *DeviceSource) Read() ([]RawEvent, error) { return nil, ErrUnsupported }
func (d *DeviceSource) Close() error              { return ErrUnsupported }

// Wait reports every source ready after sleeping for the timeout when there
// is nothing to report.
func Wait(sources []Source, timeout time.Duration) ([]Source, error) {
	if len(sources) == 0 {
		time.Sleep(timeout)
	}
	return sources, nil
}
