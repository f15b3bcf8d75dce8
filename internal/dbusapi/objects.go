package dbusapi

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/godbus/dbus/v5"

	"razerkbd/internal/device"
	"razerkbd/internal/logging"
)

// bindingObject implements razer.device.binding.
type bindingObject struct {
	dev    *device.Device
	logger *logging.Logger
}

var bindingMethods = map[string]string{
	"GetProfiles":      "getProfiles",
	"AddProfile":       "addProfile",
	"RemoveProfile":    "removeProfile",
	"GetActiveProfile": "getActiveProfile",
	"SetActiveProfile": "setActiveProfile",
	"GetMaps":          "getMaps",
	"AddMap":           "addMap",
	"CopyMap":          "copyMap",
	"RemoveMap":        "removeMap",
	"GetActiveMap":     "getActiveMap",
	"SetActiveMap":     "setActiveMap",
	"GetDefaultMap":    "getDefaultMap",
	"SetDefaultMap":    "setDefaultMap",
	"GetActions":       "getActions",
	"AddAction":        "addAction",
	"RemoveAction":     "removeAction",
	"ClearActions":     "clearActions",
	"ExportProfile":    "exportProfile",
	"ImportProfile":    "importProfile",
}

func jsonString(v any) (string, *dbus.Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", toDBusError(err)
	}
	return string(data), nil
}

func parseKey(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("key code %q: %w", s, err)
	}
	return uint16(v), nil
}

func (o *bindingObject) GetProfiles() (string, *dbus.Error) {
	o.logger.Debug("DBus call getProfiles")
	return jsonString(o.dev.Bindings().Profiles())
}

func (o *bindingObject) AddProfile(name string) *dbus.Error {
	o.logger.Debug("DBus call addProfile", "profile", name)
	return toDBusError(o.dev.Bindings().AddProfile(name))
}

func (o *bindingObject) RemoveProfile(name string) *dbus.Error {
	o.logger.Debug("DBus call removeProfile", "profile", name)
	return toDBusError(o.dev.Bindings().RemoveProfile(name))
}

func (o *bindingObject) GetActiveProfile() (string, *dbus.Error) {
	return o.dev.Bindings().ActiveProfile(), nil
}

func (o *bindingObject) SetActiveProfile(name string) *dbus.Error {
	o.logger.Debug("DBus call setActiveProfile", "profile", name)
	return toDBusError(o.dev.Bindings().SetActiveProfile(name))
}

func (o *bindingObject) GetMaps(profile string) (string, *dbus.Error) {
	maps, err := o.dev.Bindings().Maps(profile)
	if err != nil {
		return "", toDBusError(err)
	}
	return jsonString(maps)
}

func (o *bindingObject) AddMap(profile, name string) *dbus.Error {
	return toDBusError(o.dev.Bindings().AddMap(profile, name))
}

func (o *bindingObject) CopyMap(profile, mapName, destProfile, newName string) *dbus.Error {
	return toDBusError(o.dev.Bindings().CopyMap(profile, mapName, destProfile, newName))
}

func (o *bindingObject) RemoveMap(profile, mapName string) *dbus.Error {
	return toDBusError(o.dev.Bindings().RemoveMap(profile, mapName))
}

func (o *bindingObject) GetActiveMap() (string, *dbus.Error) {
	return o.dev.Bindings().ActiveMap(), nil
}

func (o *bindingObject) SetActiveMap(mapName string) *dbus.Error {
	return toDBusError(o.dev.Bindings().SetActiveMap(mapName))
}

func (o *bindingObject) GetDefaultMap() (string, *dbus.Error) {
	return o.dev.Bindings().DefaultMap(), nil
}

func (o *bindingObject) SetDefaultMap(profile, mapName string) *dbus.Error {
	return toDBusError(o.dev.Bindings().SetDefaultMap(profile, mapName))
}

func (o *bindingObject) GetActions(profile, mapName, keyCode string) (string, *dbus.Error) {
	code, err := parseKey(keyCode)
	if err != nil {
		return "", toDBusError(err)
	}
	actions, err := o.dev.Bindings().Actions(profile, mapName, code)
	if err != nil {
		return "", toDBusError(err)
	}
	return jsonString(actions)
}

func (o *bindingObject) AddAction(profile, mapName, keyCode, actionType, value string) *dbus.Error {
	o.logger.Debug("DBus call addAction", "profile", profile, "map", mapName, "key", keyCode, "type", actionType)
	code, err := parseKey(keyCode)
	if err != nil {
		return toDBusError(err)
	}
	return toDBusError(o.dev.Bindings().AddAction(profile, mapName, code, actionType, value))
}

func (o *bindingObject) RemoveAction(profile, mapName, keyCode, actionID string) *dbus.Error {
	code, err := parseKey(keyCode)
	if err != nil {
		return toDBusError(err)
	}
	index, err := strconv.Atoi(actionID)
	if err != nil {
		return toDBusError(fmt.Errorf("action id %q: %w", actionID, err))
	}
	return toDBusError(o.dev.Bindings().RemoveAction(profile, mapName, code, index))
}

func (o *bindingObject) ClearActions(profile, mapName, keyCode string) *dbus.Error {
	code, err := parseKey(keyCode)
	if err != nil {
		return toDBusError(err)
	}
	return toDBusError(o.dev.Bindings().ClearActions(profile, mapName, code))
}

func (o *bindingObject) ExportProfile(profile string) (string, *dbus.Error) {
	data, err := o.dev.Bindings().Export(profile)
	if err != nil {
		return "", toDBusError(err)
	}
	return string(data), nil
}

func (o *bindingObject) ImportProfile(document string) (string, *dbus.Error) {
	o.logger.Debug("DBus call importProfile", "bytes", len(document))
	name, err := o.dev.Bindings().Import([]byte(document))
	if err != nil {
		return "", toDBusError(err)
	}
	return name, nil
}

// miscObject implements razer.device.misc.
type miscObject struct {
	dev *device.Device
}

var miscMethods = map[string]string{
	"GetGameMode":   "getGameMode",
	"SetGameMode":   "setGameMode",
	"GetMacroMode":  "getMacroMode",
	"SetMacroMode":  "setMacroMode",
	"GetMacroKey":   "getMacroKey",
	"GetKeyBuffer":  "getKeyBuffer",
	"GetDeviceName": "getDeviceName",
	"GetSerial":     "getSerial",
}

func (o *miscObject) GetGameMode() (bool, *dbus.Error) {
	on, err := o.dev.GameMode()
	return on, toDBusError(err)
}

func (o *miscObject) SetGameMode(enabled bool) *dbus.Error {
	return toDBusError(o.dev.SetGameMode(enabled))
}

func (o *miscObject) GetMacroMode() (bool, *dbus.Error) {
	return o.dev.Macro().Mode(), nil
}

func (o *miscObject) SetMacroMode(enabled bool) *dbus.Error {
	o.dev.Macro().SetMode(enabled)
	return nil
}

// GetMacroKey returns the key being recorded and whether there is one.
func (o *miscObject) GetMacroKey() (uint16, bool, *dbus.Error) {
	key, ok := o.dev.Macro().Key()
	return key, ok, nil
}

// GetKeyBuffer returns the symbols of recently pressed keys while the
// ripple effect is active.
func (o *miscObject) GetKeyBuffer() ([]string, *dbus.Error) {
	entries := o.dev.Keys().KeyBuffer()
	symbols := make([]string, len(entries))
	for i, e := range entries {
		symbols[i] = e.Symbol
	}
	return symbols, nil
}

func (o *miscObject) GetDeviceName() (string, *dbus.Error) {
	return o.dev.Name(), nil
}

func (o *miscObject) GetSerial() (string, *dbus.Error) {
	return o.dev.Serial(), nil
}

// brightnessObject implements razer.device.lighting.brightness. Brightness
// travels as a double percentage.
type brightnessObject struct {
	dev *device.Device
}

var brightnessMethods = map[string]string{
	"GetBrightness": "getBrightness",
	"SetBrightness": "setBrightness",
}

func (o *brightnessObject) GetBrightness() (float64, *dbus.Error) {
	level, err := o.dev.Brightness()
	return float64(level), toDBusError(err)
}

func (o *brightnessObject) SetBrightness(level float64) *dbus.Error {
	return toDBusError(o.dev.SetBrightness(int(math.Round(level))))
}

// chromaObject implements razer.device.lighting.chroma.
type chromaObject struct {
	dev *device.Device
}

var chromaMethods = map[string]string{
	"SetRipple": "setRipple",
	"SetStatic": "setStatic",
	"SetNone":   "setNone",
	"GetEffect": "getEffect",
}

func (o *chromaObject) SetRipple(red, green, blue byte, refreshRate float64) *dbus.Error {
	if refreshRate <= 0 {
		return dbus.NewError(ErrorInvalidArgs, []interface{}{"refresh rate must be positive"})
	}
	o.dev.SetEffect(device.EffectRipple, red, green, blue, refreshRate)
	return nil
}

func (o *chromaObject) SetStatic(red, green, blue byte) *dbus.Error {
	o.dev.SetEffect(device.EffectStatic, red, green, blue)
	return nil
}

func (o *chromaObject) SetNone() *dbus.Error {
	o.dev.SetEffect(device.EffectNone)
	return nil
}

func (o *chromaObject) GetEffect() (string, *dbus.Error) {
	return o.dev.Effect(), nil
}

// daemonObject implements razer.devices at /org/razer.
type daemonObject struct {
	version string

	mu      sync.RWMutex
	devices []*device.Device
}

func (o *daemonObject) add(dev *device.Device) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.devices = append(o.devices, dev)
}

var daemonMethods = map[string]string{
	"GetDevices": "getDevices",
	"Version":    "version",
}

func (o *daemonObject) GetDevices() ([]string, *dbus.Error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	serials := make([]string, len(o.devices))
	for i, d := range o.devices {
		serials[i] = d.Serial()
	}
	return serials, nil
}

func (o *daemonObject) Version() (string, *dbus.Error) {
	return o.version, nil
}
