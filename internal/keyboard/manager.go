package keyboard

import (
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"razerkbd/internal/evdev"
	"razerkbd/internal/logging"
	"razerkbd/internal/metrics"
)

// Reserved key codes handled by the manager instead of being played back.
const (
	KeyGameMode       = evdev.KeyGameMode
	KeyBrightnessUp   = evdev.KeyBrightnessUp
	KeyBrightnessDown = evdev.KeyBrightnessDown
	KeyMacroMode      = evdev.KeyMacroMode
)

// MacroKeys are the keys an on-the-fly macro can be recorded onto.
var MacroKeys = [...]uint16{evdev.KeyM1, evdev.KeyM2, evdev.KeyM3, evdev.KeyM4, evdev.KeyM5}

// BrightnessStep is the change applied by one brightness key press.
const BrightnessStep = 10

// DefaultStopTimeout bounds how long Close waits for the watcher.
const DefaultStopTimeout = 2 * time.Second

// Action kinds recorded while defining a macro.
const (
	MacroActionKey     = "key"
	MacroActionRelease = "release"
)

// ErrUnknownKey is returned by Handle when a key must be recorded but has
// no symbol.
var ErrUnknownKey = evdev.ErrUnknownKey

// Parent is the device the keyboard belongs to.
type Parent interface {
	GameMode() (bool, error)
	SetGameMode(enabled bool) error
	Brightness() (int, error)
	SetBrightness(level int) error
	ActiveProfile() string
	ActiveMap() string
	AddAction(profile, mapName string, key uint16, kind, value string) error
}

// Notification is a message broadcast by the device, such as an effect
// change: Kind "effect", Name "setRipple".
type Notification struct {
	Kind   string
	Device string
	Name   string
	Params []any
}

// Observer receives device notifications.
type Observer interface {
	Notify(msg Notification)
}

// Notifier is the registry the manager subscribes to for notifications.
type Notifier interface {
	Register(o Observer)
	Remove(o Observer)
}

// ManagerConfig wires a Manager to its collaborators.
type ManagerConfig struct {
	DeviceID   int
	Sources    []evdev.Source
	Parent     Parent
	Notifier   Notifier
	Dispatcher Submitter

	// Macro is shared with the binding manager. Nil creates a private one.
	Macro *MacroState

	TTL         time.Duration
	StopTimeout time.Duration
	Clock       func() time.Time
	Wait        WaitFunc
	Logger      *logging.Logger

	// Metrics is optional.
	Metrics *metrics.KeyMetrics
}

// Manager processes the key events of one keyboard.
//
// Handle is only ever called from the watcher goroutine, so the manager's
// own logic runs sequentially; the Buffer and MacroState are the only parts
// touched from elsewhere.
type Manager struct {
	parent      Parent
	notifier    Notifier
	dispatcher  Submitter
	macro       *MacroState
	buffer      *Buffer
	watcher     *Watcher
	clock       func() time.Time
	stopTimeout time.Duration
	logger      *logging.Logger
	metrics     *metrics.KeyMetrics

	closed atomic.Bool
}

// NewManager creates the manager, subscribes it to the notifier and starts
// watching the sources. With no sources the manager still handles events
// passed to Handle but nothing is polled.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Parent == nil {
		return nil, errors.New("keyboard: parent is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("keyboard: dispatcher is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.Macro == nil {
		cfg.Macro = NewMacroState()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	m := &Manager{
		parent:      cfg.Parent,
		notifier:    cfg.Notifier,
		dispatcher:  cfg.Dispatcher,
		macro:       cfg.Macro,
		buffer:      NewBuffer(cfg.TTL, cfg.Clock),
		clock:       cfg.Clock,
		stopTimeout: cfg.StopTimeout,
		logger:      cfg.Logger.WithDevice(cfg.DeviceID, "keymanager"),
		metrics:     cfg.Metrics,
	}
	m.watcher = NewWatcher(cfg.Sources, m.Handle, cfg.Wait, cfg.Logger.WithDevice(cfg.DeviceID, "keywatcher"))

	if m.notifier != nil {
		m.notifier.Register(m)
	}

	if len(cfg.Sources) > 0 {
		m.logger.Debug("starting key watcher", "sources", len(cfg.Sources))
		m.watcher.Start()
	} else {
		m.logger.Warn("no event files for key watcher")
	}
	return m, nil
}

// Buffer returns the recent-keys buffer.
func (m *Manager) Buffer() *Buffer {
	return m.buffer
}

// KeyBuffer returns the keys pressed within the last TTL, oldest first.
func (m *Manager) KeyBuffer() []Entry {
	return m.buffer.Read()
}

// Macro returns the macro state.
func (m *Manager) Macro() *MacroState {
	return m.macro
}

// Watcher returns the poll loop owned by the manager.
func (m *Manager) Watcher() *Watcher {
	return m.watcher
}

// Handle processes one key event.
func (m *Manager) Handle(code uint16, action Action) error {
	now := m.clock()
	m.buffer.Evict(now)
	m.metrics.Event()

	if action == Press && m.buffer.Capturing() {
		symbol, err := evdev.Symbol(code)
		if err != nil {
			m.metrics.UnknownKey()
			return err
		}
		m.buffer.RecordIfActive(symbol, action, now)
		m.metrics.Buffered(m.buffer.Len())
	}

	switch {
	case code == KeyGameMode:
		// Game mode and brightness only react to the initial press so
		// holding the key does not toggle or ramp repeatedly.
		m.metrics.Reserved()
		if action != Press {
			return nil
		}
		return m.toggleGameMode()

	case code == KeyBrightnessUp || code == KeyBrightnessDown:
		m.metrics.Reserved()
		if action != Press {
			return nil
		}
		delta := BrightnessStep
		if code == KeyBrightnessDown {
			delta = -BrightnessStep
		}
		return m.stepBrightness(delta)

	case code == KeyMacroMode:
		m.metrics.Reserved()
		if action != Press {
			return nil
		}
		on := !m.macro.Mode()
		m.macro.SetMode(on)
		m.logger.Debug("macro mode toggled", "enabled", on)
		return nil

	case m.macro.Mode():
		return m.handleMacro(code, action)

	default:
		m.dispatcher.Submit(code, action)
		return nil
	}
}

func (m *Manager) toggleGameMode() error {
	m.logger.Debug("got game mode combo")

	enabled, err := m.parent.GameMode()
	if err != nil {
		return fmt.Errorf("get game mode: %w", err)
	}
	if err := m.parent.SetGameMode(!enabled); err != nil {
		return fmt.Errorf("set game mode: %w", err)
	}
	return nil
}

func (m *Manager) stepBrightness(delta int) error {
	level, err := m.parent.Brightness()
	if err != nil {
		return fmt.Errorf("get brightness: %w", err)
	}
	level = min(max(level+delta, 0), 100)
	if err := m.parent.SetBrightness(level); err != nil {
		return fmt.Errorf("set brightness: %w", err)
	}
	return nil
}

func (m *Manager) handleMacro(code uint16, action Action) error {
	if isMacroKey(code) {
		// Only the press starts a definition; the key's own release and
		// repeats are part of selecting it.
		if action != Press {
			return nil
		}
		if !m.macro.SetKey(code) {
			m.logger.Warn("nested macros are not supported", "code", code)
			return nil
		}
		m.logger.Debug("recording macro", "macro_key", code)
		return nil
	}

	macroKey, ok := m.macro.Key()
	if !ok {
		m.logger.Warn("on-the-fly macros are only supported for macro keys, please use a client for configuring other keys", "code", code)
		m.macro.SetMode(false)
		return nil
	}

	var kind string
	switch action {
	case Press:
		kind = MacroActionKey
	case Release:
		kind = MacroActionRelease
	default:
		return nil
	}

	profile := m.parent.ActiveProfile()
	mapName := m.parent.ActiveMap()
	if err := m.parent.AddAction(profile, mapName, macroKey, kind, strconv.Itoa(int(code))); err != nil {
		return fmt.Errorf("record macro action: %w", err)
	}
	m.metrics.MacroAction()
	return nil
}

// Notify implements Observer. Only effect notifications matter: a ripple
// effect needs the recent-keys buffer, any other effect does not.
func (m *Manager) Notify(msg Notification) {
	if msg.Kind != "effect" {
		return
	}
	capture := msg.Name == "setRipple"
	if capture != m.buffer.Capturing() {
		m.logger.Debug("key buffer capture changed", "effect", msg.Name, "capture", capture)
	}
	m.buffer.SetCapture(capture)
}

// Close unsubscribes from notifications and stops the watcher, waiting up
// to the stop timeout. Later calls do nothing.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	if m.notifier != nil {
		m.notifier.Remove(m)
	}
	if !m.watcher.Alive() {
		return nil
	}

	m.logger.Debug("stopping key manager")
	m.watcher.Stop()
	if err := m.watcher.Wait(m.stopTimeout); err != nil {
		m.logger.Error("could not stop key watcher", "error", err)
		return err
	}
	return nil
}

func isMacroKey(code uint16) bool {
	for _, k := range MacroKeys {
		if k == code {
			return true
		}
	}
	return false
}
