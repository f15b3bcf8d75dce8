package dbusapi

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"razerkbd/internal/device"
	"razerkbd/internal/logging"
)

// ErrNameTaken is returned when another process owns the service name.
var ErrNameTaken = errors.New("dbusapi: service name already owned")

// Service owns the bus name and the exported device objects.
type Service struct {
	conn   *dbus.Conn
	name   string
	logger *logging.Logger
	daemon *daemonObject

	mu      sync.Mutex
	devices []*device.Device
	closed  bool
}

// NewService connects to the session bus and requests name. An empty name
// uses ServiceName.
func NewService(name, version string, logger *logging.Logger) (*Service, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return newService(conn, name, version, logger)
}

func newService(conn *dbus.Conn, name, version string, logger *logging.Logger) (*Service, error) {
	if name == "" {
		name = ServiceName
	}
	if logger == nil {
		logger = logging.Default()
	}

	reply, err := conn.RequestName(name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to request name %s: %w", name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}

	s := &Service{
		conn:   conn,
		name:   name,
		logger: logger.WithComponent("razer.dbus"),
		daemon: &daemonObject{version: version},
	}
	if err := s.exportDaemon(); err != nil {
		return nil, err
	}
	s.logger.Info("DBus service started", "name", name)
	return s, nil
}

// Name returns the owned bus name.
func (s *Service) Name() string {
	return s.name
}

func (s *Service) exportDaemon() error {
	obj := s.daemon
	if err := s.conn.ExportWithMap(obj, daemonMethods, DaemonPath, DaemonInterface); err != nil {
		return fmt.Errorf("failed to export daemon object: %w", err)
	}
	node := &introspect.Node{
		Name: string(DaemonPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: DaemonInterface, Methods: renamed(obj, daemonMethods)},
		},
	}
	return s.conn.Export(introspect.NewIntrospectable(node), DaemonPath, "org.freedesktop.DBus.Introspectable")
}

// AddDevice exports a device under DevicePath(serial).
func (s *Service) AddDevice(dev *device.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("dbusapi: service closed")
	}

	path := DevicePath(dev.Serial())
	logger := s.logger.WithDevice(dev.ID(), "dbus")

	objects := []struct {
		obj     any
		methods map[string]string
		iface   string
	}{
		{&bindingObject{dev: dev, logger: logger}, bindingMethods, BindingInterface},
		{&miscObject{dev: dev}, miscMethods, MiscInterface},
		{&brightnessObject{dev: dev}, brightnessMethods, BrightnessInterface},
		{&chromaObject{dev: dev}, chromaMethods, ChromaInterface},
	}

	node := &introspect.Node{
		Name:       string(path),
		Interfaces: []introspect.Interface{introspect.IntrospectData},
	}
	for _, o := range objects {
		if err := s.conn.ExportWithMap(o.obj, o.methods, path, o.iface); err != nil {
			return fmt.Errorf("failed to export %s on %s: %w", o.iface, path, err)
		}
		node.Interfaces = append(node.Interfaces, introspect.Interface{
			Name:    o.iface,
			Methods: renamed(o.obj, o.methods),
		})
	}
	if err := s.conn.Export(introspect.NewIntrospectable(node), path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspection on %s: %w", path, err)
	}

	s.devices = append(s.devices, dev)
	s.daemon.add(dev)
	logger.Info("device exported", "path", string(path))
	return nil
}

// Close unexports every object and releases the bus name. The connection
// itself is shared and stays open.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, dev := range s.devices {
		path := DevicePath(dev.Serial())
		for _, iface := range []string{BindingInterface, MiscInterface, BrightnessInterface, ChromaInterface, "org.freedesktop.DBus.Introspectable"} {
			if err := s.conn.Export(nil, path, iface); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, iface := range []string{DaemonInterface, "org.freedesktop.DBus.Introspectable"} {
		if err := s.conn.Export(nil, DaemonPath, iface); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := s.conn.ReleaseName(s.name); err != nil {
		errs = append(errs, fmt.Errorf("release name: %w", err))
	}
	s.logger.Info("DBus service stopped")
	return errors.Join(errs...)
}

// renamed lists obj's exported methods under their bus names.
func renamed(obj any, mapping map[string]string) []introspect.Method {
	methods := introspect.Methods(obj)
	out := methods[:0]
	for _, m := range methods {
		if name, ok := mapping[m.Name]; ok {
			m.Name = name
			out = append(out, m)
		}
	}
	return out
}
