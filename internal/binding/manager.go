package binding

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"razerkbd/internal/evdev"
	"razerkbd/internal/keyboard"
	"razerkbd/internal/logging"
)

// Emitter writes key events to the virtual keyboard.
type Emitter interface {
	Emit(code uint16, value int32) error
}

// Store persists profiles between runs.
type Store interface {
	SaveProfiles(profiles []Profile) error
	LoadProfiles() ([]Profile, error)
}

// Config wires a Manager.
type Config struct {
	DeviceID int
	Emitter  Emitter
	Store    Store

	// Sleep pauses playback for "sleep" actions. Defaults to time.Sleep.
	Sleep  func(time.Duration)
	Logger *logging.Logger
}

// Manager owns the binding profiles of one device and plays key events
// back through them. It implements keyboard.KeyPresser.
type Manager struct {
	emitter Emitter
	store   Store
	sleep   func(time.Duration)
	logger  *logging.Logger

	// play serialises playback so held-key bookkeeping stays consistent
	// across dispatcher workers; mu guards the profile data.
	play sync.Mutex
	held map[uint16]struct{}

	mu            sync.RWMutex
	profiles      []Profile
	activeProfile string
	activeMap     string
}

// NewManager loads profiles from the store, seeding a default profile
// when there are none.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Emitter == nil {
		return nil, fmt.Errorf("binding: emitter is required")
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	m := &Manager{
		emitter: cfg.Emitter,
		store:   cfg.Store,
		sleep:   cfg.Sleep,
		logger:  cfg.Logger.WithDevice(cfg.DeviceID, "bindingmanager"),
		held:    make(map[uint16]struct{}),
	}

	if m.store != nil {
		profiles, err := m.store.LoadProfiles()
		if err != nil {
			return nil, fmt.Errorf("load profiles: %w", err)
		}
		for _, p := range profiles {
			if err := p.Validate(); err != nil {
				m.logger.Warn("skipping invalid stored profile", "profile", p.Name, "error", err)
				continue
			}
			m.profiles = append(m.profiles, p)
		}
	}
	if len(m.profiles) == 0 {
		m.profiles = []Profile{NewProfile(DefaultProfileName)}
	}

	m.activeProfile = m.profiles[0].Name
	m.activeMap = m.profiles[0].DefaultMap
	return m, nil
}

// AttachMacro ends the current macro definition whenever macro mode is
// switched off.
func (m *Manager) AttachMacro(state *keyboard.MacroState) {
	state.OnModeChange(func(on bool) {
		if on {
			return
		}
		if key, ok := state.Key(); ok {
			m.logger.Debug("macro recorded", "macro_key", key)
		}
		state.ClearKey()
	})
}

// KeyPress plays back one key event. Unbound keys pass straight through;
// bound keys run their actions on press and release the keys those
// actions hold on release.
func (m *Manager) KeyPress(code uint16, action keyboard.Action) {
	m.play.Lock()
	defer m.play.Unlock()

	actions := m.bindingFor(code)
	if len(actions) == 0 {
		switch action {
		case keyboard.Release:
			m.keyUp(code)
		case keyboard.Autorepeat:
			m.emit(code, evdev.ValueAutorepeat)
		default:
			m.keyDown(code)
		}
		return
	}

	if action == keyboard.Release {
		for _, a := range actions {
			if a.Type != KindKey {
				continue
			}
			if target, err := parseKeyCode(a.Value); err == nil {
				m.keyUp(target)
			}
		}
		return
	}

	for _, a := range actions {
		m.run(code, a)
	}
}

func (m *Manager) run(code uint16, a Action) {
	switch a.Type {
	case KindKey, KindRelease:
		target, err := parseKeyCode(a.Value)
		if err != nil {
			m.logger.Warn("bad key action", "code", code, "value", a.Value)
			return
		}
		if a.Type == KindKey {
			m.keyDown(target)
		} else {
			m.keyUp(target)
		}
	case KindMap:
		if err := m.SetActiveMap(a.Value); err != nil {
			m.logger.Warn("map action failed", "code", code, "map", a.Value, "error", err)
		}
	case KindSleep:
		secs, _ := strconv.ParseFloat(a.Value, 64)
		m.sleep(time.Duration(secs * float64(time.Second)))
	default:
		m.logger.Debug("action not played back", "code", code, "type", a.Type)
	}
}

func (m *Manager) bindingFor(code uint16) []Action {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p := m.profileLocked(m.activeProfile)
	if p == nil {
		return nil
	}
	mp := p.findMap(m.activeMap)
	if mp == nil {
		return nil
	}
	return append([]Action(nil), mp.Bindings[code]...)
}

func (m *Manager) keyDown(code uint16) {
	m.held[code] = struct{}{}
	m.emit(code, evdev.ValuePress)
}

func (m *Manager) keyUp(code uint16) {
	delete(m.held, code)
	m.emit(code, evdev.ValueRelease)
}

func (m *Manager) emit(code uint16, value int32) {
	if err := m.emitter.Emit(code, value); err != nil {
		m.logger.Warn("could not write key event", "code", code, "value", value, "error", err)
	}
}

// Held returns the keys currently held down by playback.
func (m *Manager) Held() []uint16 {
	m.play.Lock()
	defer m.play.Unlock()
	out := make([]uint16, 0, len(m.held))
	for code := range m.held {
		out = append(out, code)
	}
	return out
}

// Profiles returns the profile names in creation order.
func (m *Manager) Profiles() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.profiles))
	for i, p := range m.profiles {
		names[i] = p.Name
	}
	return names
}

// Profile returns a copy of the named profile.
func (m *Manager) Profile(name string) (Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := m.profileLocked(name)
	if p == nil {
		return Profile{}, fmt.Errorf("profile %q: %w", name, ErrNotFound)
	}
	return p.Clone(), nil
}

// AddProfile creates an empty profile.
func (m *Manager) AddProfile(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name == "" {
		return fmt.Errorf("profile name is empty")
	}
	if m.profileLocked(name) != nil {
		return fmt.Errorf("profile %q: %w", name, ErrExists)
	}
	m.profiles = append(m.profiles, NewProfile(name))
	return m.persistLocked()
}

// RemoveProfile deletes a profile. The active profile cannot be removed.
func (m *Manager) RemoveProfile(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name == m.activeProfile {
		return fmt.Errorf("profile %q: %w", name, ErrActive)
	}
	for i := range m.profiles {
		if m.profiles[i].Name == name {
			m.profiles = append(m.profiles[:i], m.profiles[i+1:]...)
			return m.persistLocked()
		}
	}
	return fmt.Errorf("profile %q: %w", name, ErrNotFound)
}

// ActiveProfile returns the active profile name.
func (m *Manager) ActiveProfile() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeProfile
}

// SetActiveProfile activates a profile on its default map.
func (m *Manager) SetActiveProfile(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profileLocked(name)
	if p == nil {
		return fmt.Errorf("profile %q: %w", name, ErrNotFound)
	}
	m.activeProfile = p.Name
	m.activeMap = p.DefaultMap
	m.logger.Debug("active profile changed", "profile", p.Name, "map", p.DefaultMap)
	return nil
}

// Maps returns the map names of a profile.
func (m *Manager) Maps(profile string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := m.profileLocked(profile)
	if p == nil {
		return nil, fmt.Errorf("profile %q: %w", profile, ErrNotFound)
	}
	names := make([]string, len(p.Maps))
	for i, mp := range p.Maps {
		names[i] = mp.Name
	}
	return names, nil
}

// AddMap adds an empty map to a profile.
func (m *Manager) AddMap(profile, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profileLocked(profile)
	if p == nil {
		return fmt.Errorf("profile %q: %w", profile, ErrNotFound)
	}
	if name == "" {
		return fmt.Errorf("map name is empty")
	}
	if p.findMap(name) != nil {
		return fmt.Errorf("map %q: %w", name, ErrExists)
	}
	p.Maps = append(p.Maps, Map{Name: name, Bindings: map[uint16][]Action{}})
	return m.persistLocked()
}

// CopyMap copies a map, under a new name, into destProfile.
func (m *Manager) CopyMap(profile, mapName, destProfile, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, err := m.mapLocked(profile, mapName)
	if err != nil {
		return err
	}
	dst := m.profileLocked(destProfile)
	if dst == nil {
		return fmt.Errorf("profile %q: %w", destProfile, ErrNotFound)
	}
	if dst.findMap(newName) != nil {
		return fmt.Errorf("map %q: %w", newName, ErrExists)
	}
	cp := src.clone()
	cp.Name = newName
	dst.Maps = append(dst.Maps, cp)
	return m.persistLocked()
}

// RemoveMap deletes a map. A profile's default map and the active map
// cannot be removed.
func (m *Manager) RemoveMap(profile, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profileLocked(profile)
	if p == nil {
		return fmt.Errorf("profile %q: %w", profile, ErrNotFound)
	}
	if name == p.DefaultMap {
		return fmt.Errorf("map %q is the default map: %w", name, ErrActive)
	}
	if profile == m.activeProfile && name == m.activeMap {
		return fmt.Errorf("map %q is the active map: %w", name, ErrActive)
	}
	for i := range p.Maps {
		if p.Maps[i].Name == name {
			p.Maps = append(p.Maps[:i], p.Maps[i+1:]...)
			return m.persistLocked()
		}
	}
	return fmt.Errorf("map %q: %w", name, ErrNotFound)
}

// ActiveMap returns the active map name.
func (m *Manager) ActiveMap() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeMap
}

// SetActiveMap switches maps within the active profile.
func (m *Manager) SetActiveMap(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.mapLocked(m.activeProfile, name); err != nil {
		return err
	}
	m.activeMap = name
	m.logger.Debug("active map changed", "map", name)
	return nil
}

// DefaultMap returns the default map of the active profile.
func (m *Manager) DefaultMap() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p := m.profileLocked(m.activeProfile); p != nil {
		return p.DefaultMap
	}
	return ""
}

// SetDefaultMap sets the map a profile starts on.
func (m *Manager) SetDefaultMap(profile, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profileLocked(profile)
	if p == nil {
		return fmt.Errorf("profile %q: %w", profile, ErrNotFound)
	}
	if p.findMap(name) == nil {
		return fmt.Errorf("map %q: %w", name, ErrNotFound)
	}
	p.DefaultMap = name
	return m.persistLocked()
}

// Actions returns the actions bound to a key.
func (m *Manager) Actions(profile, mapName string, key uint16) ([]Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mp, err := m.mapLocked(profile, mapName)
	if err != nil {
		return nil, err
	}
	return append([]Action(nil), mp.Bindings[key]...), nil
}

// AddAction appends an action to a key's binding.
func (m *Manager) AddAction(profile, mapName string, key uint16, kind, value string) error {
	a := Action{Type: kind, Value: value}
	if err := a.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	mp, err := m.mapLocked(profile, mapName)
	if err != nil {
		return err
	}
	mp.Bindings[key] = append(mp.Bindings[key], a)
	return m.persistLocked()
}

// RemoveAction removes the action at index from a key's binding.
func (m *Manager) RemoveAction(profile, mapName string, key uint16, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mp, err := m.mapLocked(profile, mapName)
	if err != nil {
		return err
	}
	actions := mp.Bindings[key]
	if index < 0 || index >= len(actions) {
		return fmt.Errorf("action %d of key %d: %w", index, key, ErrNotFound)
	}
	actions = append(actions[:index:index], actions[index+1:]...)
	if len(actions) == 0 {
		delete(mp.Bindings, key)
	} else {
		mp.Bindings[key] = actions
	}
	return m.persistLocked()
}

// ClearActions unbinds a key.
func (m *Manager) ClearActions(profile, mapName string, key uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mp, err := m.mapLocked(profile, mapName)
	if err != nil {
		return err
	}
	delete(mp.Bindings, key)
	return m.persistLocked()
}

// Export renders a profile as a JSON document.
func (m *Manager) Export(profile string) ([]byte, error) {
	p, err := m.Profile(profile)
	if err != nil {
		return nil, err
	}
	return EncodeProfile(p)
}

// Import adds a profile from a JSON document, replacing any profile with
// the same name. Replacing the active profile moves playback to its
// default map.
func (m *Manager) Import(data []byte) (string, error) {
	p, err := DecodeProfile(data)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	replaced := false
	for i := range m.profiles {
		if m.profiles[i].Name == p.Name {
			m.profiles[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		m.profiles = append(m.profiles, p)
	}
	if p.Name == m.activeProfile {
		m.activeMap = p.DefaultMap
	}
	m.logger.Info("imported profile", "profile", p.Name, "replaced", replaced)
	return p.Name, m.persistLocked()
}

func (m *Manager) profileLocked(name string) *Profile {
	for i := range m.profiles {
		if m.profiles[i].Name == name {
			return &m.profiles[i]
		}
	}
	return nil
}

func (m *Manager) mapLocked(profile, name string) (*Map, error) {
	p := m.profileLocked(profile)
	if p == nil {
		return nil, fmt.Errorf("profile %q: %w", profile, ErrNotFound)
	}
	mp := p.findMap(name)
	if mp == nil {
		return nil, fmt.Errorf("map %q: %w", name, ErrNotFound)
	}
	if mp.Bindings == nil {
		mp.Bindings = map[uint16][]Action{}
	}
	return mp, nil
}

func (m *Manager) persistLocked() error {
	if m.store == nil {
		return nil
	}
	snapshot := make([]Profile, len(m.profiles))
	for i, p := range m.profiles {
		snapshot[i] = p.Clone()
	}
	if err := m.store.SaveProfiles(snapshot); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}
	return nil
}
