package device

import (
	"sync"

	"razerkbd/internal/keyboard"
)

// Notifier fans device notifications out to registered observers.
type Notifier struct {
	mu        sync.RWMutex
	observers []keyboard.Observer
}

// NewNotifier returns an empty registry.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Register adds o. Registering the same observer twice is a no-op.
func (n *Notifier) Register(o keyboard.Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, existing := range n.observers {
		if existing == o {
			return
		}
	}
	n.observers = append(n.observers, o)
}

// Remove drops o if present.
func (n *Notifier) Remove(o keyboard.Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, existing := range n.observers {
		if existing == o {
			n.observers = append(n.observers[:i], n.observers[i+1:]...)
			return
		}
	}
}

// Broadcast delivers msg to every observer registered at the time of the
// call, outside the lock.
func (n *Notifier) Broadcast(msg keyboard.Notification) {
	n.mu.RLock()
	observers := append([]keyboard.Observer(nil), n.observers...)
	n.mu.RUnlock()

	for _, o := range observers {
		o.Notify(msg)
	}
}

// Len returns the number of observers.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.observers)
}
