package dbusapi

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/godbus/dbus/v5"
)

// Client calls a running daemon over the session bus.
type Client struct {
	conn *dbus.Conn
	dest string
}

// NewClient connects to the session bus. An empty dest uses ServiceName.
func NewClient(dest string) (*Client, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	if dest == "" {
		dest = ServiceName
	}
	return &Client{conn: conn, dest: dest}, nil
}

func (c *Client) call(path dbus.ObjectPath, iface, method string, out []any, args ...any) error {
	call := c.conn.Object(c.dest, path).Call(iface+"."+method, 0, args...)
	if call.Err != nil {
		return fmt.Errorf("%s: %w", method, call.Err)
	}
	if len(out) == 0 {
		return nil
	}
	return call.Store(out...)
}

// Devices returns the serials of exported devices.
func (c *Client) Devices() ([]string, error) {
	var serials []string
	err := c.call(DaemonPath, DaemonInterface, "getDevices", []any{&serials})
	return serials, err
}

// Version returns the daemon version.
func (c *Client) Version() (string, error) {
	var v string
	err := c.call(DaemonPath, DaemonInterface, "version", []any{&v})
	return v, err
}

// Device returns a handle for calls on one device.
func (c *Client) Device(serial string) *DeviceClient {
	return &DeviceClient{c: c, path: DevicePath(serial)}
}

// DeviceClient wraps the interfaces of one device object.
type DeviceClient struct {
	c    *Client
	path dbus.ObjectPath
}

func (d *DeviceClient) binding(method string, out []any, args ...any) error {
	return d.c.call(d.path, BindingInterface, method, out, args...)
}

func (d *DeviceClient) Profiles() ([]string, error) {
	var raw string
	if err := d.binding("getProfiles", []any{&raw}); err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	return names, nil
}

func (d *DeviceClient) AddProfile(name string) error {
	return d.binding("addProfile", nil, name)
}

func (d *DeviceClient) RemoveProfile(name string) error {
	return d.binding("removeProfile", nil, name)
}

func (d *DeviceClient) ActiveProfile() (string, error) {
	var name string
	err := d.binding("getActiveProfile", []any{&name})
	return name, err
}

func (d *DeviceClient) SetActiveProfile(name string) error {
	return d.binding("setActiveProfile", nil, name)
}

func (d *DeviceClient) Maps(profile string) ([]string, error) {
	var raw string
	if err := d.binding("getMaps", []any{&raw}, profile); err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("decode maps: %w", err)
	}
	return names, nil
}

func (d *DeviceClient) AddMap(profile, name string) error {
	return d.binding("addMap", nil, profile, name)
}

func (d *DeviceClient) RemoveMap(profile, name string) error {
	return d.binding("removeMap", nil, profile, name)
}

func (d *DeviceClient) SetActiveMap(name string) error {
	return d.binding("setActiveMap", nil, name)
}

// Actions returns the raw JSON list of actions bound to key.
func (d *DeviceClient) Actions(profile, mapName string, key uint16) (string, error) {
	var raw string
	err := d.binding("getActions", []any{&raw}, profile, mapName, strconv.Itoa(int(key)))
	return raw, err
}

func (d *DeviceClient) AddAction(profile, mapName string, key uint16, kind, value string) error {
	return d.binding("addAction", nil, profile, mapName, strconv.Itoa(int(key)), kind, value)
}

func (d *DeviceClient) ClearActions(profile, mapName string, key uint16) error {
	return d.binding("clearActions", nil, profile, mapName, strconv.Itoa(int(key)))
}

func (d *DeviceClient) ExportProfile(profile string) (string, error) {
	var doc string
	err := d.binding("exportProfile", []any{&doc}, profile)
	return doc, err
}

func (d *DeviceClient) ImportProfile(document string) (string, error) {
	var name string
	err := d.binding("importProfile", []any{&name}, document)
	return name, err
}

func (d *DeviceClient) GameMode() (bool, error) {
	var on bool
	err := d.c.call(d.path, MiscInterface, "getGameMode", []any{&on})
	return on, err
}

func (d *DeviceClient) SetGameMode(enabled bool) error {
	return d.c.call(d.path, MiscInterface, "setGameMode", nil, enabled)
}

func (d *DeviceClient) KeyBuffer() ([]string, error) {
	var symbols []string
	err := d.c.call(d.path, MiscInterface, "getKeyBuffer", []any{&symbols})
	return symbols, err
}

func (d *DeviceClient) Brightness() (float64, error) {
	var level float64
	err := d.c.call(d.path, BrightnessInterface, "getBrightness", []any{&level})
	return level, err
}

func (d *DeviceClient) SetBrightness(level float64) error {
	return d.c.call(d.path, BrightnessInterface, "setBrightness", nil, level)
}

func (d *DeviceClient) SetRipple(red, green, blue byte, refreshRate float64) error {
	return d.c.call(d.path, ChromaInterface, "setRipple", nil, red, green, blue, refreshRate)
}

func (d *DeviceClient) SetNone() error {
	return d.c.call(d.path, ChromaInterface, "setNone", nil)
}

func (d *DeviceClient) Effect() (string, error) {
	var name string
	err := d.c.call(d.path, ChromaInterface, "getEffect", []any{&name})
	return name, err
}
