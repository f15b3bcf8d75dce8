// razerkbd is the keyboard daemon.
//
//	razerkbd daemon [-config path]   Grab the configured keyboards and serve D-Bus
//	razerkbd check [-config path]    Validate the configuration file
//	razerkbd version                 Print the version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"razerkbd/internal/config"
	"razerkbd/internal/dbusapi"
	"razerkbd/internal/device"
	"razerkbd/internal/evdev"
	"razerkbd/internal/logging"
	"razerkbd/internal/metrics"
	"razerkbd/internal/store"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "daemon":
		if err := cmdDaemon(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "check":
		if err := cmdCheck(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("razerkbd %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`razerkbd - Razer keyboard daemon

USAGE:
    razerkbd <command> [options]

COMMANDS:
    daemon      Grab configured keyboards and serve the D-Bus API
    check       Validate the configuration file
    version     Print the version
    help        Show this help message

OPTIONS:
    -config <path>   Configuration file (default: $XDG_CONFIG_HOME/razerkbd/config.toml)

ENVIRONMENT:
    RAZERKBD_LOG_LEVEL, RAZERKBD_LOG_FORMAT, RAZERKBD_EVENT_FILES and others
    override values from the configuration file.`)
}

func configFlag(name string, args []string) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if *path == "" {
		if found := config.FindConfigFile(); found != "" {
			return found, nil
		}
		return config.ConfigPath(), nil
	}
	return *path, nil
}

func cmdCheck(args []string) error {
	path, err := configFlag("check", args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	problems := config.CheckConfig(cfg)
	for _, w := range problems.Warnings() {
		fmt.Printf("warning: %s\n", w.Error())
	}
	if problems.HasErrors() {
		return problems.Errors()
	}
	fmt.Printf("%s: OK (%d devices)\n", path, len(cfg.Devices))
	return nil
}

func cmdDaemon(args []string) error {
	path, err := configFlag("daemon", args)
	if err != nil {
		return err
	}

	cfg, created, err := config.LoadOrCreate(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logCfg, err := cfg.Logging.LoggerConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	crashes := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		CrashDir:  filepath.Join(config.StateDir(), "crashes"),
		Version:   version,
		Component: "razerkbd",
		Logger:    logger,
	})
	logging.SetDefaultCrashHandler(crashes)
	defer logging.RecoverPanic()
	if err := crashes.CleanupOldCrashReports(30 * 24 * time.Hour); err != nil {
		logger.Debug("crash report cleanup", "error", err)
	}

	if created {
		logger.Info("wrote default configuration", "path", path)
	}
	for _, w := range config.CheckConfig(cfg).Warnings() {
		logger.Warn("configuration warning", "field", w.Field, "message", w.Message)
	}

	d := &daemon{cfg: cfg, logger: logger}
	defer d.shutdown()

	if err := d.start(); err != nil {
		return err
	}

	loader := config.NewLoader(path)
	if _, err := loader.Load(); err == nil {
		loader.OnChange(d.reload)
		if err := loader.Watch(); err != nil {
			logger.Warn("config watch unavailable", "error", err)
		}
	}
	defer loader.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				logger.Info("reloading configuration")
				loader.Reload()
				continue
			}
			logger.Info("shutting down", "signal", sig.String())
			return nil
		case err := <-loader.Errors():
			logger.Warn("configuration reload failed", "error", err)
		}
	}
}

// daemon holds what the running process opened, in opening order.
type daemon struct {
	cfg    *config.Config
	logger *logging.Logger

	stores  map[string]*store.Store
	devices []*device.Device
	service *dbusapi.Service
	metrics *http.Server
}

func (d *daemon) start() error {
	d.stores = make(map[string]*store.Store)

	if d.cfg.DBus.Enabled {
		svc, err := dbusapi.NewService(d.cfg.DBus.ServiceName, version, d.logger)
		if err != nil {
			return fmt.Errorf("start D-Bus service: %w", err)
		}
		d.service = svc
	}

	for i, dc := range d.cfg.Devices {
		dev, err := d.openDevice(i, dc)
		if err != nil {
			// Keep going with the remaining devices.
			d.logger.Error("failed to open device", "serial", dc.Serial, "error", err)
			continue
		}
		d.devices = append(d.devices, dev)

		if d.service != nil {
			if err := d.service.AddDevice(dev); err != nil {
				d.logger.Error("failed to export device", "serial", dc.Serial, "error", err)
			}
		}
	}

	if len(d.devices) == 0 {
		return errors.New("no devices could be opened")
	}
	metrics.Default().Gauge("devices", "Keyboards managed by the daemon", nil).Set(int64(len(d.devices)))

	if d.cfg.Metrics.Enabled {
		d.serveMetrics(d.cfg.Metrics.Address)
	}
	d.logger.Info("razerkbd started", "version", version, "devices", len(d.devices))
	return nil
}

func (d *daemon) openDevice(id int, dc config.DeviceConfig) (*device.Device, error) {
	logger := d.logger.WithDevice(id, "setup")

	var sources []evdev.Source
	for _, path := range dc.EventFiles {
		src, err := evdev.Open(path)
		if err != nil {
			logger.Warn("skipping event file", "path", path, "error", err)
			continue
		}
		sources = append(sources, src)
	}

	closeSources := func() {
		for _, s := range sources {
			_ = s.Close()
		}
	}

	name := dc.Name
	if name == "" {
		name = "Razer Keyboard"
	}
	kbd, err := evdev.NewVirtualKeyboard(name)
	if err != nil {
		closeSources()
		return nil, fmt.Errorf("virtual keyboard: %w", err)
	}

	st, err := store.Open(storePath(d.cfg.Storage.Path, dc.Serial))
	if err != nil {
		kbd.Close()
		closeSources()
		return nil, err
	}
	d.stores[dc.Serial] = st

	var attrs device.Attributes
	if dc.SysfsPath != "" {
		attrs = device.NewSysfsAttributes(dc.SysfsPath)
	} else {
		attrs = device.NewMemoryAttributes(100)
	}

	dev, err := device.Open(device.Config{
		ID:              id,
		Serial:          dc.Serial,
		Name:            dc.Name,
		Sources:         sources,
		Attributes:      attrs,
		Emitter:         kbd,
		Store:           st,
		KeyTTL:          d.cfg.KeyTTL(),
		StopTimeout:     d.cfg.StopTimeout(),
		DispatchWorkers: d.cfg.Keyboard.DispatchWorkers,
		DispatchQueue:   d.cfg.Keyboard.DispatchQueue,
		Logger:          d.logger,
		Metrics:         metrics.NewKeyMetrics(nil, dc.Serial),
	})
	if err != nil {
		kbd.Close()
		closeSources()
		return nil, err
	}

	restoreSelection(dev, st, logger)
	return dev, nil
}

func (d *daemon) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Default().HTTPHandler())
	d.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		d.logger.Info("serving metrics", "address", addr)
		if err := d.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("metrics server failed", "error", err)
		}
	}()
}

// storePath gives each device its own database next to the configured one.
func storePath(base, serial string) string {
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + serial + ext
}

func restoreSelection(dev *device.Device, st *store.Store, logger *logging.Logger) {
	profile, mapName, err := st.LoadSelection(dev.Serial())
	if errors.Is(err, store.ErrNoSelection) {
		return
	}
	if err != nil {
		logger.Warn("failed to load selection", "error", err)
		return
	}
	if err := dev.Bindings().SetActiveProfile(profile); err != nil {
		logger.Warn("saved profile unavailable", "profile", profile, "error", err)
		return
	}
	if err := dev.Bindings().SetActiveMap(mapName); err != nil {
		logger.Warn("saved map unavailable", "map", mapName, "error", err)
	}
}

func (d *daemon) reload(cfg *config.Config) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		d.logger.Warn("ignoring log level", "level", cfg.Logging.Level, "error", err)
		return
	}
	if level != d.logger.GetLevel() {
		d.logger.SetLevel(level)
		d.logger.Info("log level changed", "level", logging.LevelString(level))
	}
	if len(cfg.Devices) != len(d.cfg.Devices) {
		d.logger.Info("device list changed; restart razerkbd to apply")
	}
}

func (d *daemon) shutdown() {
	if d.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := d.metrics.Shutdown(ctx); err != nil {
			d.logger.Warn("metrics shutdown", "error", err)
		}
		cancel()
	}
	if d.service != nil {
		if err := d.service.Close(); err != nil {
			d.logger.Warn("D-Bus shutdown", "error", err)
		}
	}
	for _, dev := range d.devices {
		if st, ok := d.stores[dev.Serial()]; ok {
			if err := st.SaveSelection(dev.Serial(), dev.ActiveProfile(), dev.ActiveMap()); err != nil {
				d.logger.Warn("failed to save selection", "serial", dev.Serial(), "error", err)
			}
		}
		if err := dev.Close(); err != nil {
			d.logger.Warn("device close", "serial", dev.Serial(), "error", err)
		}
	}
	for serial, st := range d.stores {
		if err := st.Close(); err != nil {
			d.logger.Warn("store close", "serial", serial, "error", err)
		}
	}
	d.devices = nil
	d.stores = nil
}
