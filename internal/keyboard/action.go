// Package keyboard turns raw key events from grabbed input devices into
// device behaviour: game mode and brightness shortcuts, on-the-fly macro
// recording, and dispatch of ordinary keys to the binding manager.
//
// Data flow:
//
//	evdev.Source -> Watcher (poll, decode) -> Manager.Handle
//	    -> Buffer (recent presses), reserved-key side effects on the
//	       Parent, macro recording, or Dispatcher -> KeyPresser
package keyboard

import "razerkbd/internal/evdev"

// Action is what happened to a key.
type Action int

const (
	Release Action = iota
	Press
	Autorepeat
	Unknown
)

// String returns the action label used in logs and over D-Bus.
func (a Action) String() string {
	switch a {
	case Release:
		return "release"
	case Press:
		return "press"
	case Autorepeat:
		return "autorepeat"
	default:
		return "unknown"
	}
}

// ParseAction is the inverse of Action.String.
func ParseAction(s string) Action {
	switch s {
	case "release":
		return Release
	case "press":
		return Press
	case "autorepeat":
		return Autorepeat
	default:
		return Unknown
	}
}

// Decode maps an EV_KEY record to its action. Any other record, or a key
// value outside 0..2, yields ok=false and is treated as padding.
func Decode(ev evdev.RawEvent) (code uint16, action Action, ok bool) {
	if ev.Type != evdev.EvKey {
		return 0, Unknown, false
	}
	switch ev.Value {
	case evdev.ValueRelease:
		return ev.Code, Release, true
	case evdev.ValuePress:
		return ev.Code, Press, true
	case evdev.ValueAutorepeat:
		return ev.Code, Autorepeat, true
	default:
		return 0, Unknown, false
	}
}
