package evdev

import (
	"errors"
	"fmt"
	"strings"

	goevdev "github.com/holoplot/go-evdev"
)

// Razer-specific key codes. The driver reports the macro and function keys
// on otherwise unused F13-F24 codes.
const (
	KeyM1             uint16 = 183
	KeyM2             uint16 = 184
	KeyM3             uint16 = 185
	KeyM4             uint16 = 186
	KeyM5             uint16 = 187
	KeyMacroMode      uint16 = 188
	KeyGameMode       uint16 = 189
	KeyBrightnessDown uint16 = 190
	KeyBrightnessUp   uint16 = 194
)

// ErrUnknownKey is returned by Symbol for codes with no name.
var ErrUnknownKey = errors.New("unknown key code")

var keyNames = buildKeyNames()

func buildKeyNames() map[uint16]string {
	names := make(map[uint16]string, len(goevdev.KEYToString))
	for code, name := range goevdev.KEYToString {
		if !strings.HasPrefix(name, "KEY_") {
			continue
		}
		names[uint16(code)] = strings.TrimPrefix(name, "KEY_")
	}

	names[KeyM1] = "M1"
	names[KeyM2] = "M2"
	names[KeyM3] = "M3"
	names[KeyM4] = "M4"
	names[KeyM5] = "M5"
	names[KeyMacroMode] = "MACROMODE"
	names[KeyGameMode] = "GAMEMODE"
	names[KeyBrightnessDown] = "BRIGHTNESSDOWN"
	names[KeyBrightnessUp] = "BRIGHTNESSUP"
	return names
}

// Symbol returns the human key name for a key code, e.g. 30 -> "A".
func Symbol(code uint16) (string, error) {
	name, ok := keyNames[code]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownKey, code)
	}
	return name, nil
}

// MappedName returns the name of the virtual keyboard that replays name's
// keys. A name that already ends in " (mapped)" is returned unchanged.
func MappedName(name string) string {
	if strings.HasSuffix(name, mappedSuffix) {
		return name
	}
	return name + mappedSuffix
}

const mappedSuffix = " (mapped)"
