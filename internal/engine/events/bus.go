package events

import (
	"sync"
	"sync/atomic"
)

// SubscriptionID identifies a registered listener.
type SubscriptionID uint64

type subscription struct {
	id       SubscriptionID
	listener Listener
}

// Bus is a subscription registry. Publishing copies the subscriber list under
// a read lock and notifies outside it, in registration order, so listeners may
// subscribe or unsubscribe from inside a callback.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers l and returns its handle.
func (b *Bus) Subscribe(l Listener) SubscriptionID {
	id := SubscriptionID(b.nextID.Add(1))
	b.mu.Lock()
	b.subs = append(b.subs, subscription{id: id, listener: l})
	b.mu.Unlock()
	return id
}

// Unsubscribe removes the listener registered under id. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers e to every subscriber.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		_ = Dispatch(s.listener, e)
	}
}
