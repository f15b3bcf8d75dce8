// Package device assembles one keyboard: its hardware attributes, key
// bindings, playback pool and key manager. A Device is the parent the key
// manager calls back into for game mode, brightness and macro recording.
package device

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"razerkbd/internal/binding"
	"razerkbd/internal/evdev"
	"razerkbd/internal/keyboard"
	"razerkbd/internal/logging"
	"razerkbd/internal/metrics"
)

// Effect names broadcast to observers.
const (
	EffectRipple = "setRipple"
	EffectNone   = "setNone"
	EffectStatic = "setStatic"
)

// Notification kinds.
const (
	KindEffect     = "effect"
	KindGameMode   = "game_mode"
	KindBrightness = "brightness"
)

// Config describes a device to open.
type Config struct {
	ID     int
	Serial string
	Name   string

	Sources    []evdev.Source
	Attributes Attributes

	// Emitter receives played-back keys. It is closed with the device if
	// it implements io.Closer.
	Emitter binding.Emitter
	Store   binding.Store

	KeyTTL          time.Duration
	StopTimeout     time.Duration
	DispatchWorkers int
	DispatchQueue   int

	Logger *logging.Logger

	// Metrics receives key traffic counters. Nil disables them.
	Metrics *metrics.KeyMetrics
}

// Device is one managed keyboard.
type Device struct {
	id     int
	serial string
	name   string

	attrs      Attributes
	notifier   *Notifier
	bindings   *binding.Manager
	macro      *keyboard.MacroState
	dispatcher *keyboard.Dispatcher
	keys       *keyboard.Manager
	emitter    binding.Emitter
	logger     *logging.Logger

	mu     sync.Mutex
	effect string
	params []any

	closeOnce sync.Once
	closeErr  error
}

// Open builds the device and starts watching its sources.
func Open(cfg Config) (*Device, error) {
	if cfg.Serial == "" {
		return nil, errors.New("device: serial is required")
	}
	if cfg.Attributes == nil {
		cfg.Attributes = NewMemoryAttributes(100)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	d := &Device{
		id:       cfg.ID,
		serial:   cfg.Serial,
		name:     cfg.Name,
		attrs:    cfg.Attributes,
		notifier: NewNotifier(),
		macro:    keyboard.NewMacroState(),
		emitter:  cfg.Emitter,
		logger:   cfg.Logger.WithDevice(cfg.ID, "device"),
		effect:   EffectNone,
	}

	bindings, err := binding.NewManager(binding.Config{
		DeviceID: cfg.ID,
		Emitter:  cfg.Emitter,
		Store:    cfg.Store,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("binding manager: %w", err)
	}
	bindings.AttachMacro(d.macro)
	d.bindings = bindings

	d.dispatcher = keyboard.NewDispatcher(bindings, cfg.DispatchWorkers, cfg.DispatchQueue,
		cfg.Logger.WithDevice(cfg.ID, "dispatcher"))
	d.dispatcher.Instrument(cfg.Metrics)

	keys, err := keyboard.NewManager(keyboard.ManagerConfig{
		DeviceID:    cfg.ID,
		Sources:     cfg.Sources,
		Parent:      d,
		Notifier:    d.notifier,
		Dispatcher:  d.dispatcher,
		Macro:       d.macro,
		TTL:         cfg.KeyTTL,
		StopTimeout: cfg.StopTimeout,
		Logger:      cfg.Logger,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		d.dispatcher.Close()
		return nil, fmt.Errorf("key manager: %w", err)
	}
	d.keys = keys

	d.logger.Info("device ready", "serial", d.serial, "name", d.name, "sources", len(cfg.Sources))
	return d, nil
}

// ID returns the device number used in log component names.
func (d *Device) ID() int {
	return d.id
}

// Serial returns the serial used in the D-Bus object path.
func (d *Device) Serial() string {
	return d.serial
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) Bindings() *binding.Manager {
	return d.bindings
}

func (d *Device) Keys() *keyboard.Manager {
	return d.keys
}

func (d *Device) Macro() *keyboard.MacroState {
	return d.macro
}

func (d *Device) Notifier() *Notifier {
	return d.notifier
}

// GameMode reports the game mode LED state.
func (d *Device) GameMode() (bool, error) {
	return d.attrs.GameMode()
}

// SetGameMode switches game mode and notifies observers.
func (d *Device) SetGameMode(enabled bool) error {
	if err := d.attrs.SetGameMode(enabled); err != nil {
		return err
	}
	d.logger.Info("game mode changed", "enabled", enabled)
	d.notifier.Broadcast(keyboard.Notification{Kind: KindGameMode, Device: d.serial, Params: []any{enabled}})
	return nil
}

// Brightness returns the matrix brightness, 0..100.
func (d *Device) Brightness() (int, error) {
	return d.attrs.Brightness()
}

// SetBrightness sets the matrix brightness, 0..100.
func (d *Device) SetBrightness(level int) error {
	if err := d.attrs.SetBrightness(level); err != nil {
		return err
	}
	d.logger.Debug("brightness changed", "level", level)
	d.notifier.Broadcast(keyboard.Notification{Kind: KindBrightness, Device: d.serial, Params: []any{level}})
	return nil
}

// ActiveProfile returns the active binding profile.
func (d *Device) ActiveProfile() string {
	return d.bindings.ActiveProfile()
}

// ActiveMap returns the active map of the active profile.
func (d *Device) ActiveMap() string {
	return d.bindings.ActiveMap()
}

// AddAction records a binding action, used by macro recording.
func (d *Device) AddAction(profile, mapName string, key uint16, kind, value string) error {
	return d.bindings.AddAction(profile, mapName, key, kind, value)
}

// SetEffect records the current lighting effect and broadcasts it.
// Nothing is rendered; observers such as the key manager react to it.
func (d *Device) SetEffect(name string, params ...any) {
	d.mu.Lock()
	d.effect = name
	d.params = params
	d.mu.Unlock()

	d.logger.Debug("effect changed", "effect", name)
	d.notifier.Broadcast(keyboard.Notification{Kind: KindEffect, Device: d.serial, Name: name, Params: params})
}

// Effect returns the last effect set.
func (d *Device) Effect() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.effect
}

// Close stops key handling, drains playback and closes the emitter.
// Later calls return the first result.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		var errs []error
		if err := d.keys.Close(); err != nil {
			errs = append(errs, fmt.Errorf("key manager: %w", err))
		}
		d.dispatcher.Close()
		if c, ok := d.emitter.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("virtual keyboard: %w", err))
			}
		}
		d.closeErr = errors.Join(errs...)
		d.logger.Info("device closed", "serial", d.serial)
	})
	return d.closeErr
}
