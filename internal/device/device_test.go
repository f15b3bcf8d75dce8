package device

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"razerkbd/internal/binding"
	"razerkbd/internal/evdev"
	"razerkbd/internal/keyboard"
	"razerkbd/internal/logging"
	"razerkbd/internal/metrics"
)

type key struct {
	code  uint16
	value int32
}

type fakeKeyboard struct {
	mu     sync.Mutex
	keys   []key
	closed int
}

func (f *fakeKeyboard) Emit(code uint16, value int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key{code, value})
	return nil
}

func (f *fakeKeyboard) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeKeyboard) emitted() []key {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]key(nil), f.keys...)
}

func openTestDevice(t *testing.T, sources ...evdev.Source) (*Device, *fakeKeyboard) {
	t.Helper()
	kbd := &fakeKeyboard{}
	d, err := Open(Config{
		ID:              0,
		Serial:          "PM1234567890",
		Name:            "Razer BlackWidow Chroma",
		Sources:         sources,
		Attributes:      NewMemoryAttributes(50),
		Emitter:         kbd,
		DispatchWorkers: 1,
		Logger:          logging.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d, kbd
}

func TestOpenRequiresSerial(t *testing.T) {
	_, err := Open(Config{Emitter: &fakeKeyboard{}})
	assert.Error(t, err)
}

func TestReservedKeysChangeDeviceState(t *testing.T) {
	d, _ := openTestDevice(t)
	keys := d.Keys()

	require.NoError(t, keys.Handle(keyboard.KeyGameMode, keyboard.Press))
	require.NoError(t, keys.Handle(keyboard.KeyGameMode, keyboard.Release))
	on, err := d.GameMode()
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, keys.Handle(keyboard.KeyBrightnessUp, keyboard.Press))
	level, err := d.Brightness()
	require.NoError(t, err)
	assert.Equal(t, 60, level)
}

func TestRippleEffectEnablesKeyCapture(t *testing.T) {
	d, _ := openTestDevice(t)

	d.SetEffect(EffectRipple, 255, 0, 0, 0.05)
	assert.Equal(t, EffectRipple, d.Effect())
	require.NoError(t, d.Keys().Handle(30, keyboard.Press))

	entries := d.Keys().KeyBuffer()
	require.Len(t, entries, 1)
	assert.Equal(t, "A", entries[0].Symbol)

	d.SetEffect(EffectNone)
	assert.False(t, d.Keys().Buffer().Capturing())
}

func TestMacroRecordAndPlayback(t *testing.T) {
	d, kbd := openTestDevice(t)
	keys := d.Keys()

	steps := []struct {
		code   uint16
		action keyboard.Action
	}{
		{keyboard.KeyMacroMode, keyboard.Press},
		{keyboard.KeyMacroMode, keyboard.Release},
		{evdev.KeyM1, keyboard.Press},
		{evdev.KeyM1, keyboard.Release},
		{30, keyboard.Press},
		{30, keyboard.Release},
		{keyboard.KeyMacroMode, keyboard.Press},
	}
	for _, s := range steps {
		require.NoError(t, keys.Handle(s.code, s.action))
	}

	_, recording := d.Macro().Key()
	assert.False(t, recording)
	actions, err := d.Bindings().Actions(binding.DefaultProfileName, binding.DefaultMapName, evdev.KeyM1)
	require.NoError(t, err)
	assert.Equal(t, []binding.Action{{Type: "key", Value: "30"}, {Type: "release", Value: "30"}}, actions)
	assert.Empty(t, kbd.emitted(), "nothing is played back while recording")

	require.NoError(t, keys.Handle(evdev.KeyM1, keyboard.Press))
	require.Eventually(t, func() bool { return len(kbd.emitted()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []key{{30, 1}, {30, 0}}, kbd.emitted())
}

func TestDeviceWatchesSources(t *testing.T) {
	src := evdev.NewFakeSource("/dev/input/event5")
	src.PushKey(30, evdev.ValuePress)
	src.PushKey(30, evdev.ValueRelease)

	_, kbd := openTestDevice(t, src)

	require.Eventually(t, func() bool { return len(kbd.emitted()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []key{{30, 1}, {30, 0}}, kbd.emitted())
}

func TestDeviceCloseOnce(t *testing.T) {
	src := evdev.NewFakeSource("/dev/input/event5")
	d, kbd := openTestDevice(t, src)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, 1, kbd.closed)
	assert.Equal(t, 1, src.CloseCalls())
	assert.Equal(t, 0, d.Notifier().Len())
}

type countingObserver struct {
	mu   sync.Mutex
	msgs []keyboard.Notification
}

func (c *countingObserver) Notify(msg keyboard.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func TestNotifier(t *testing.T) {
	n := NewNotifier()
	a, b := &countingObserver{}, &countingObserver{}

	n.Register(a)
	n.Register(a)
	n.Register(b)
	assert.Equal(t, 2, n.Len())

	n.Broadcast(keyboard.Notification{Kind: KindEffect, Name: EffectStatic})
	n.Remove(b)
	n.Broadcast(keyboard.Notification{Kind: KindEffect, Name: EffectNone})

	assert.Len(t, a.msgs, 2)
	assert.Len(t, b.msgs, 1)
}

func TestSysfsAttributes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, GameLEDStateFile), []byte("0\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, MatrixBrightnessFile), []byte("128\n"), 0644))

	attrs := NewSysfsAttributes(dir)

	level, err := attrs.Brightness()
	require.NoError(t, err)
	assert.Equal(t, 50, level)

	require.NoError(t, attrs.SetBrightness(100))
	raw, err := os.ReadFile(filepath.Join(dir, MatrixBrightnessFile))
	require.NoError(t, err)
	assert.Equal(t, "255", string(raw))

	require.NoError(t, attrs.SetGameMode(true))
	on, err := attrs.GameMode()
	require.NoError(t, err)
	assert.True(t, on)

	assert.ErrorIs(t, attrs.SetBrightness(101), ErrOutOfRange)
}

func TestSysfsAttributesMissingFile(t *testing.T) {
	attrs := NewSysfsAttributes(t.TempDir())

	_, err := attrs.GameMode()
	assert.Error(t, err)
	assert.Error(t, attrs.SetGameMode(true), "attribute files are never created")
}

func TestMemoryAttributesRange(t *testing.T) {
	attrs := NewMemoryAttributes(0)
	assert.ErrorIs(t, attrs.SetBrightness(-1), ErrOutOfRange)
	require.NoError(t, attrs.SetBrightness(100))
	level, _ := attrs.Brightness()
	assert.Equal(t, 100, level)
}

func TestDeviceMetrics(t *testing.T) {
	reg := metrics.NewRegistry("razerkbd")
	km := metrics.NewKeyMetrics(reg, "PM1234567890")

	kbd := &fakeKeyboard{}
	d, err := Open(Config{
		Serial:          "PM1234567890",
		Attributes:      NewMemoryAttributes(50),
		Emitter:         kbd,
		DispatchWorkers: 1,
		Logger:          logging.Discard(),
		Metrics:         km,
	})
	require.NoError(t, err)

	require.NoError(t, d.Keys().Handle(keyboard.KeyGameMode, keyboard.Press))
	require.NoError(t, d.Keys().Handle(30, keyboard.Press))
	require.NoError(t, d.Keys().Handle(30, keyboard.Release))
	require.NoError(t, d.Close())

	assert.Equal(t, uint64(3), km.EventsTotal.Value())
	assert.Equal(t, uint64(1), km.ReservedTotal.Value())
	assert.Equal(t, uint64(2), km.PlaybackDuration.Count())
}
