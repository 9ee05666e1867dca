package event

import (
	"reflect"
	"sync"
)

// Bus is a synchronous, typed observer registry. Publish runs every handler
// subscribed to the event's type on the caller's goroutine, in subscription
// order, before returning.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[reflect.Type][]subscription
}

type subscription struct {
	id uint64
	fn any // func(T)
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]subscription)}
}

func typeKey[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Subscribe registers fn for events of type T. The returned function removes
// the subscription; calling it more than once is harmless.
func Subscribe[T any](b *Bus, fn func(T)) (cancel func()) {
	t := typeKey[T]()

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[t] = append(b.handlers[t], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(t, id) })
	}
}

func (b *Bus) unsubscribe(t reflect.Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[t]
	for i, s := range subs {
		if s.id == id {
			// Copy so a Publish iterating the old slice is unaffected.
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.handlers, t)
			} else {
				b.handlers[t] = next
			}
			return
		}
	}
}

// Publish delivers ev to every handler subscribed to T. Handlers may
// subscribe or cancel during delivery; changes apply from the next Publish.
func Publish[T any](b *Bus, ev T) {
	b.mu.RLock()
	subs := b.handlers[typeKey[T]()]
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn.(func(T))(ev)
	}
}

// Subscribers returns the number of handlers registered for T.
func Subscribers[T any](b *Bus) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[typeKey[T]()])
}
