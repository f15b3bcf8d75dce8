// Package dbusapi exposes devices on the D-Bus session bus and provides a
// client for the same methods.
//
// Each device is one object, /org/razer/device/<serial>, carrying the
// binding, misc, brightness and chroma interfaces. The daemon object at
// /org/razer lists devices.
package dbusapi

import (
	"errors"
	"strconv"

	"github.com/godbus/dbus/v5"

	"razerkbd/internal/binding"
	"razerkbd/internal/device"
)

// Bus names, paths and interfaces.
const (
	ServiceName = "org.razer"
	DaemonPath  = dbus.ObjectPath("/org/razer")
	devicePath  = "/org/razer/device/"

	DaemonInterface     = "razer.devices"
	BindingInterface    = "razer.device.binding"
	MiscInterface       = "razer.device.misc"
	BrightnessInterface = "razer.device.lighting.brightness"
	ChromaInterface     = "razer.device.lighting.chroma"
)

// Error names returned to callers.
const (
	ErrorNotFound    = "org.razer.Error.NotFound"
	ErrorInvalidArgs = "org.razer.Error.InvalidArgs"
	ErrorFailed      = "org.razer.Error.Failed"
)

// DevicePath returns the object path of a device.
func DevicePath(serial string) dbus.ObjectPath {
	return dbus.ObjectPath(devicePath + serial)
}

// toDBusError maps an error to a named D-Bus error. Nil stays nil.
func toDBusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	name := ErrorFailed
	var numErr *strconv.NumError
	switch {
	case errors.Is(err, binding.ErrNotFound):
		name = ErrorNotFound
	case errors.Is(err, binding.ErrInvalidAction),
		errors.Is(err, binding.ErrExists),
		errors.Is(err, binding.ErrActive),
		errors.Is(err, device.ErrOutOfRange),
		errors.As(err, &numErr):
		name = ErrorInvalidArgs
	}
	return dbus.NewError(name, []interface{}{err.Error()})
}
