//go:build linux

package evdev

import (
	"fmt"
	"sync"

	goevdev "github.com/holoplot/go-evdev"
)

// VirtualKeyboard is a uinput device that replays key events into the
// system after they have been grabbed from the physical keyboard.
type VirtualKeyboard struct {
	mu  sync.Mutex
	dev *goevdev.InputDevice
}

// NewVirtualKeyboard creates a uinput keyboard named by MappedName that
// can emit every named key code.
func NewVirtualKeyboard(name string) (*VirtualKeyboard, error) {
	codes := make([]goevdev.EvCode, 0, len(keyNames))
	for code := range keyNames {
		codes = append(codes, goevdev.EvCode(code))
	}

	dev, err := goevdev.CreateDevice(
		MappedName(name),
		goevdev.InputID{BusType: 0x03, Vendor: 0x1532, Product: 0x0000, Version: 1},
		map[goevdev.EvType][]goevdev.EvCode{
			goevdev.EV_KEY: codes,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create uinput device: %w", err)
	}
	return &VirtualKeyboard{dev: dev}, nil
}

// Emit writes one key event followed by a SYN_REPORT.
func (v *VirtualKeyboard) Emit(code uint16, value int32) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.dev == nil {
		return ErrClosed
	}
	if err := v.dev.WriteOne(&goevdev.InputEvent{
		Type:  goevdev.EV_KEY,
		Code:  goevdev.EvCode(code),
		Value: value,
	}); err != nil {
		return fmt.Errorf("write key %d: %w", code, err)
	}
	if err := v.dev.WriteOne(&goevdev.InputEvent{
		Type: goevdev.EV_SYN,
		Code: goevdev.SYN_REPORT,
	}); err != nil {
		return fmt.Errorf("write syn: %w", err)
	}
	return nil
}

// Close destroys the uinput device.
func (v *VirtualKeyboard) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.dev == nil {
		return nil
	}
	err := v.dev.Close()
	v.dev = nil
	return err
}
