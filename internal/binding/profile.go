// Package binding maps keys to actions and plays them back on a virtual
// keyboard.
//
// Bindings are organised as profiles, each holding named maps, each map
// binding key codes to an ordered list of actions. One profile and one of
// its maps are active at a time; "map" actions switch the active map while
// keys are played back.
package binding

import (
	"errors"
	"fmt"
	"strconv"
)

// Action kinds.
const (
	KindKey     = "key"
	KindRelease = "release"
	KindMap     = "map"
	KindSleep   = "sleep"
	KindExecute = "execute"
	KindShift   = "shift"
)

// Kinds lists every accepted action kind.
var Kinds = []string{KindKey, KindMap, KindShift, KindSleep, KindExecute, KindRelease}

// Default names for a fresh configuration.
const (
	DefaultProfileName = "Default"
	DefaultMapName     = "Default"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrExists        = errors.New("already exists")
	ErrInvalidAction = errors.New("invalid action")
	ErrActive        = errors.New("in use")
)

// Action is one step run when a bound key is pressed.
type Action struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Validate checks the kind and that the value parses for that kind.
func (a Action) Validate() error {
	switch a.Type {
	case KindKey, KindRelease:
		if _, err := parseKeyCode(a.Value); err != nil {
			return fmt.Errorf("%w: %s value %q: %v", ErrInvalidAction, a.Type, a.Value, err)
		}
	case KindMap:
		if a.Value == "" {
			return fmt.Errorf("%w: map action needs a map name", ErrInvalidAction)
		}
	case KindSleep:
		secs, err := strconv.ParseFloat(a.Value, 64)
		if err != nil || secs < 0 {
			return fmt.Errorf("%w: sleep value %q", ErrInvalidAction, a.Value)
		}
	case KindExecute, KindShift:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAction, a.Type)
	}
	return nil
}

// Map binds key codes to action lists.
type Map struct {
	Name     string              `json:"name"`
	Bindings map[uint16][]Action `json:"bindings"`
}

// Profile is a named set of maps.
type Profile struct {
	Name       string `json:"name"`
	DefaultMap string `json:"default_map"`
	Maps       []Map  `json:"maps"`
}

// NewProfile returns a profile with a single empty default map.
func NewProfile(name string) Profile {
	return Profile{
		Name:       name,
		DefaultMap: DefaultMapName,
		Maps:       []Map{{Name: DefaultMapName, Bindings: map[uint16][]Action{}}},
	}
}

func (p *Profile) findMap(name string) *Map {
	for i := range p.Maps {
		if p.Maps[i].Name == name {
			return &p.Maps[i]
		}
	}
	return nil
}

// Validate checks the profile's structure and every action.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return errors.New("profile name is empty")
	}
	if len(p.Maps) == 0 {
		return fmt.Errorf("profile %q has no maps", p.Name)
	}
	seen := make(map[string]bool, len(p.Maps))
	for _, m := range p.Maps {
		if seen[m.Name] {
			return fmt.Errorf("profile %q: map %q: %w", p.Name, m.Name, ErrExists)
		}
		seen[m.Name] = true
		for code, actions := range m.Bindings {
			for i, a := range actions {
				if err := a.Validate(); err != nil {
					return fmt.Errorf("profile %q map %q key %d action %d: %w", p.Name, m.Name, code, i, err)
				}
			}
		}
	}
	if p.findMap(p.DefaultMap) == nil {
		return fmt.Errorf("profile %q: default map %q: %w", p.Name, p.DefaultMap, ErrNotFound)
	}
	return nil
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	out := Profile{Name: p.Name, DefaultMap: p.DefaultMap, Maps: make([]Map, len(p.Maps))}
	for i, m := range p.Maps {
		out.Maps[i] = m.clone()
	}
	return out
}

func (m Map) clone() Map {
	out := Map{Name: m.Name, Bindings: make(map[uint16][]Action, len(m.Bindings))}
	for code, actions := range m.Bindings {
		out.Bindings[code] = append([]Action(nil), actions...)
	}
	return out
}

func parseKeyCode(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
