package keyboard

import "sync"

// MacroState tracks on-the-fly macro recording for one device: whether
// macro mode is on and which macro key is being defined.
//
// The key manager sets the macro key; the binding manager clears it when
// recording finishes, from a different goroutine, hence the lock.
type MacroState struct {
	mu       sync.Mutex
	mode     bool
	key      uint16
	hasKey   bool
	onChange []func(on bool)
}

// NewMacroState returns an idle macro state.
func NewMacroState() *MacroState {
	return &MacroState{}
}

// Mode reports whether macro mode is on.
func (s *MacroState) Mode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches macro mode and runs the OnModeChange hooks when the
// value actually changes. Hooks run without the lock held.
func (s *MacroState) SetMode(on bool) {
	s.mu.Lock()
	changed := s.mode != on
	s.mode = on
	hooks := append([]func(bool){}, s.onChange...)
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range hooks {
		fn(on)
	}
}

// Key returns the macro key being defined, if any.
func (s *MacroState) Key() (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key, s.hasKey
}

// SetKey starts defining code. It refuses, returning false, while another
// macro key is already set: nested macros are not supported.
func (s *MacroState) SetKey(code uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasKey {
		return false
	}
	s.key = code
	s.hasKey = true
	return true
}

// ClearKey ends the current macro definition.
func (s *MacroState) ClearKey() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = 0
	s.hasKey = false
}

// OnModeChange registers fn to run whenever macro mode flips.
func (s *MacroState) OnModeChange(fn func(on bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}
