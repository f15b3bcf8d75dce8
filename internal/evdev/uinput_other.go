//go:build !linux

package evdev

// VirtualKeyboard is unavailable off Linux.
type VirtualKeyboard struct{}

// NewVirtualKeyboard always fails off Linux.
func NewVirtualKeyboard(name string) (*VirtualKeyboard, error) {
	return nil, ErrUnsupported
}

func (v *VirtualKeyboard) Emit(code uint16, value int32) error { return ErrUnsupported }
func (v *VirtualKeyboard) Close() error                        { return nil }
