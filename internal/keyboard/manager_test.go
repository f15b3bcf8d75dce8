package keyboard

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"razerkbd/internal/evdev"
	"razerkbd/internal/logging"
)

const (
	keyA = 30
	keyB = 48
	keyC = 46
)

type managerFixture struct {
	manager   *Manager
	parent    *fakeParent
	submitter *fakeSubmitter
	notifier  *fakeNotifier
	clock     *fakeClock
}

func newManagerFixture(t *testing.T, sources ...evdev.Source) *managerFixture {
	t.Helper()
	f := &managerFixture{
		parent:    &fakeParent{brightness: 50},
		submitter: &fakeSubmitter{},
		notifier:  &fakeNotifier{},
		clock:     newFakeClock(),
	}
	m, err := NewManager(ManagerConfig{
		DeviceID:   1,
		Sources:    sources,
		Parent:     f.parent,
		Notifier:   f.notifier,
		Dispatcher: f.submitter,
		Clock:      f.clock.Now,
		Wait:       readyAll,
		Logger:     logging.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	f.manager = m
	return f
}

func readyAll(sources []evdev.Source, _ time.Duration) ([]evdev.Source, error) {
	return sources, nil
}

func TestNewManagerRequiresCollaborators(t *testing.T) {
	_, err := NewManager(ManagerConfig{Dispatcher: &fakeSubmitter{}})
	assert.Error(t, err)

	_, err = NewManager(ManagerConfig{Parent: &fakeParent{}})
	assert.Error(t, err)
}

func TestManagerRegistersWithNotifier(t *testing.T) {
	f := newManagerFixture(t)
	registered, _ := f.notifier.count()
	assert.Equal(t, 1, registered)
	assert.False(t, f.manager.Watcher().Alive(), "no sources, no watcher")
}

func TestHandleForwardsOrdinaryKeys(t *testing.T) {
	f := newManagerFixture(t)

	require.NoError(t, f.manager.Handle(keyA, Press))
	require.NoError(t, f.manager.Handle(keyA, Autorepeat))
	require.NoError(t, f.manager.Handle(keyA, Release))

	assert.Equal(t, []submitted{
		{keyA, Press}, {keyA, Autorepeat}, {keyA, Release},
	}, f.submitter.submitted())
}

func TestHandleCapturesPressesForRipple(t *testing.T) {
	f := newManagerFixture(t)

	require.NoError(t, f.manager.Handle(keyA, Press))
	assert.Empty(t, f.manager.KeyBuffer(), "capture is off by default")

	f.manager.Notify(Notification{Kind: "effect", Name: "setRipple"})
	require.NoError(t, f.manager.Handle(keyA, Press))
	require.NoError(t, f.manager.Handle(keyA, Release))

	entries := f.manager.KeyBuffer()
	require.Len(t, entries, 1)
	assert.Equal(t, "A", entries[0].Symbol)

	f.manager.Notify(Notification{Kind: "effect", Name: "setNone"})
	assert.False(t, f.manager.Buffer().Capturing())
	f.manager.Notify(Notification{Kind: "brightness", Name: "setRipple"})
	assert.False(t, f.manager.Buffer().Capturing(), "non-effect notifications are ignored")
}

func TestRippleBufferWindow(t *testing.T) {
	f := newManagerFixture(t)
	f.manager.Notify(Notification{Kind: "effect", Name: "setRipple"})

	require.NoError(t, f.manager.Handle(keyA, Press)) // t=0
	f.clock.Advance(time.Second)
	require.NoError(t, f.manager.Handle(keyB, Press)) // t=1

	symbols := func() []string {
		var out []string
		for _, e := range f.manager.KeyBuffer() {
			out = append(out, e.Symbol)
		}
		return out
	}
	assert.Equal(t, []string{"A", "B"}, symbols())

	f.clock.Advance(2 * time.Second) // t=3
	require.NoError(t, f.manager.Handle(keyC, Press))
	assert.Equal(t, []string{"C"}, symbols())
}

func TestHandleUnknownKeyWhileCapturing(t *testing.T) {
	f := newManagerFixture(t)
	f.manager.Notify(Notification{Kind: "effect", Name: "setRipple"})

	err := f.manager.Handle(0xfff0, Press)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKey))
	assert.Empty(t, f.submitter.submitted())

	f.manager.Notify(Notification{Kind: "effect", Name: "setStatic"})
	require.NoError(t, f.manager.Handle(0xfff0, Press))
	assert.Len(t, f.submitter.submitted(), 1)
}

func TestGameModeKeyToggles(t *testing.T) {
	f := newManagerFixture(t)

	require.NoError(t, f.manager.Handle(KeyGameMode, Press))
	require.NoError(t, f.manager.Handle(KeyGameMode, Release))
	on, _ := f.parent.GameMode()
	assert.True(t, on)

	require.NoError(t, f.manager.Handle(KeyGameMode, Press))
	require.NoError(t, f.manager.Handle(KeyGameMode, Autorepeat))
	on, _ = f.parent.GameMode()
	assert.False(t, on, "two presses restore the original state")

	assert.Empty(t, f.submitter.submitted(), "reserved keys are not played back")
}

func TestBrightnessKeysClamp(t *testing.T) {
	tests := []struct {
		name  string
		start int
		code  uint16
		want  int
	}{
		{"up", 50, KeyBrightnessUp, 60},
		{"down", 50, KeyBrightnessDown, 40},
		{"up clamps", 95, KeyBrightnessUp, 100},
		{"down clamps", 5, KeyBrightnessDown, 0},
		{"already max", 100, KeyBrightnessUp, 100},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newManagerFixture(t)
			f.parent.brightness = tc.start

			require.NoError(t, f.manager.Handle(tc.code, Press))
			require.NoError(t, f.manager.Handle(tc.code, Release))

			level, _ := f.parent.Brightness()
			assert.Equal(t, tc.want, level)
		})
	}
}

func TestReservedKeyParentError(t *testing.T) {
	f := newManagerFixture(t)
	f.parent.getErr = errors.New("sysfs gone")

	assert.Error(t, f.manager.Handle(KeyGameMode, Press))
	assert.Error(t, f.manager.Handle(KeyBrightnessUp, Press))
}

func TestMacroRecording(t *testing.T) {
	f := newManagerFixture(t)

	require.NoError(t, f.manager.Handle(KeyMacroMode, Press))
	require.NoError(t, f.manager.Handle(KeyMacroMode, Release))
	require.True(t, f.manager.Macro().Mode())

	require.NoError(t, f.manager.Handle(evdev.KeyM1, Press))
	require.NoError(t, f.manager.Handle(evdev.KeyM1, Release))
	key, ok := f.manager.Macro().Key()
	require.True(t, ok)
	assert.Equal(t, evdev.KeyM1, key)

	require.NoError(t, f.manager.Handle(keyA, Press))
	require.NoError(t, f.manager.Handle(keyA, Autorepeat))
	require.NoError(t, f.manager.Handle(keyA, Release))

	// Nested macro key is refused and the definition keeps M1.
	require.NoError(t, f.manager.Handle(evdev.KeyM2, Press))
	key, _ = f.manager.Macro().Key()
	assert.Equal(t, evdev.KeyM1, key)

	require.NoError(t, f.manager.Handle(KeyMacroMode, Press))
	assert.False(t, f.manager.Macro().Mode())

	value := strconv.Itoa(keyA)
	assert.Equal(t, []recordedAction{
		{"0", "Default", evdev.KeyM1, MacroActionKey, value},
		{"0", "Default", evdev.KeyM1, MacroActionRelease, value},
	}, f.parent.recorded())
	assert.Empty(t, f.submitter.submitted(), "keys are not played back while recording")
}

func TestMacroModeWithoutMacroKeyEndsMacroMode(t *testing.T) {
	f := newManagerFixture(t)

	require.NoError(t, f.manager.Handle(KeyMacroMode, Press))
	require.NoError(t, f.manager.Handle(keyA, Press))

	assert.False(t, f.manager.Macro().Mode())
	assert.Empty(t, f.parent.recorded())

	require.NoError(t, f.manager.Handle(keyA, Release))
	assert.Equal(t, []submitted{{keyA, Release}}, f.submitter.submitted())
}

func TestManagerWatchesSources(t *testing.T) {
	src := evdev.NewFakeSource("/dev/input/event7")
	src.PushKey(keyA, evdev.ValuePress)
	src.PushKey(keyA, evdev.ValueRelease)

	f := newManagerFixture(t, src)

	require.Eventually(t, func() bool {
		return len(f.submitter.submitted()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []submitted{{keyA, Press}, {keyA, Release}}, f.submitter.submitted())
	assert.Equal(t, 1, src.GrabCalls())
}

func TestManagerCloseIsIdempotent(t *testing.T) {
	src := evdev.NewFakeSource("/dev/input/event7")
	f := newManagerFixture(t, src)

	require.Eventually(t, func() bool {
		return f.manager.Watcher().Status() == StatusRunning
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.manager.Close())
	require.NoError(t, f.manager.Close())

	assert.Equal(t, StatusStopped, f.manager.Watcher().Status())
	assert.Equal(t, 1, src.CloseCalls())
	registered, removed := f.notifier.count()
	assert.Equal(t, 0, registered)
	assert.Equal(t, 1, removed)
}

func TestManagerCloseWithoutWatcher(t *testing.T) {
	f := newManagerFixture(t)

	require.NoError(t, f.manager.Close())
	require.NoError(t, f.manager.Close())

	_, removed := f.notifier.count()
	assert.Equal(t, 1, removed)
}

func TestManagerCloseTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	blockingWait := func(sources []evdev.Source, _ time.Duration) ([]evdev.Source, error) {
		<-release
		return nil, nil
	}

	m, err := NewManager(ManagerConfig{
		Sources:     []evdev.Source{evdev.NewFakeSource("/dev/input/event9")},
		Parent:      &fakeParent{},
		Dispatcher:  &fakeSubmitter{},
		StopTimeout: 20 * time.Millisecond,
		Wait:        blockingWait,
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)

	err = m.Close()
	assert.ErrorIs(t, err, ErrStopTimeout)
}
