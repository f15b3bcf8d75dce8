package keyboard

import (
	"errors"
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedAction struct {
	profile, mapName string
	key              uint16
	kind, value      string
}

type fakeParent struct {
	mu         sync.Mutex
	gameMode   bool
	brightness int
	actions    []recordedAction
	getErr     error
}

func (p *fakeParent) GameMode() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gameMode, p.getErr
}

func (p *fakeParent) SetGameMode(enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gameMode = enabled
	return nil
}

func (p *fakeParent) Brightness() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.brightness, p.getErr
}

func (p *fakeParent) SetBrightness(level int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if level < 0 || level > 100 {
		return errors.New("brightness out of range")
	}
	p.brightness = level
	return nil
}

func (p *fakeParent) ActiveProfile() string { return "0" }
func (p *fakeParent) ActiveMap() string     { return "Default" }

func (p *fakeParent) AddAction(profile, mapName string, key uint16, kind, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, recordedAction{profile, mapName, key, kind, value})
	return nil
}

func (p *fakeParent) recorded() []recordedAction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedAction(nil), p.actions...)
}

type submitted struct {
	code   uint16
	action Action
}

type fakeSubmitter struct {
	mu     sync.Mutex
	events []submitted
}

func (s *fakeSubmitter) Submit(code uint16, action Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, submitted{code, action})
	return true
}

func (s *fakeSubmitter) submitted() []submitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]submitted(nil), s.events...)
}

type fakeNotifier struct {
	mu        sync.Mutex
	observers []Observer
	removed   int
}

func (n *fakeNotifier) Register(o Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observers = append(n.observers, o)
}

func (n *fakeNotifier) Remove(o Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removed++
	for i, existing := range n.observers {
		if existing == o {
			n.observers = append(n.observers[:i], n.observers[i+1:]...)
			return
		}
	}
}

func (n *fakeNotifier) count() (registered, removed int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.observers), n.removed
}
