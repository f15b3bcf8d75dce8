package device

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// ErrOutOfRange is returned for a brightness outside 0..100.
var ErrOutOfRange = errors.New("brightness out of range")

// Attributes is the hardware state the key manager changes.
type Attributes interface {
	GameMode() (bool, error)
	SetGameMode(enabled bool) error

	// Brightness is a percentage, 0..100.
	Brightness() (int, error)
	SetBrightness(level int) error
}

// Driver attribute file names.
const (
	GameLEDStateFile     = "game_led_state"
	MatrixBrightnessFile = "matrix_brightness"
)

// SysfsAttributes reads and writes the kernel driver's attribute files in
// a device directory. The driver reports brightness as 0..255.
type SysfsAttributes struct {
	dir string
	mu  sync.Mutex
}

// NewSysfsAttributes returns attributes backed by dir.
func NewSysfsAttributes(dir string) *SysfsAttributes {
	return &SysfsAttributes{dir: dir}
}

func (s *SysfsAttributes) GameMode() (bool, error) {
	v, err := s.readInt(GameLEDStateFile)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (s *SysfsAttributes) SetGameMode(enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	return s.writeInt(GameLEDStateFile, v)
}

func (s *SysfsAttributes) Brightness() (int, error) {
	raw, err := s.readInt(MatrixBrightnessFile)
	if err != nil {
		return 0, err
	}
	return int(math.Round(float64(raw) * 100 / 255)), nil
}

func (s *SysfsAttributes) SetBrightness(level int) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("%w: %d", ErrOutOfRange, level)
	}
	return s.writeInt(MatrixBrightnessFile, int(math.Round(float64(level)*255/100)))
}

func (s *SysfsAttributes) readInt(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

func (s *SysfsAttributes) writeInt(name string, v int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	// Attribute files exist already; never create one.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.WriteString(strconv.Itoa(v)); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// MemoryAttributes keeps the state in memory, for devices without a
// driver directory and for tests.
type MemoryAttributes struct {
	mu         sync.Mutex
	gameMode   bool
	brightness int
}

// NewMemoryAttributes starts at the given brightness with game mode off.
func NewMemoryAttributes(brightness int) *MemoryAttributes {
	return &MemoryAttributes{brightness: brightness}
}

func (m *MemoryAttributes) GameMode() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gameMode, nil
}

func (m *MemoryAttributes) SetGameMode(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gameMode = enabled
	return nil
}

func (m *MemoryAttributes) Brightness() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.brightness, nil
}

func (m *MemoryAttributes) SetBrightness(level int) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("%w: %d", ErrOutOfRange, level)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brightness = level
	return nil
}
