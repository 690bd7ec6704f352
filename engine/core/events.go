package core

import "sync"

// EventID identifies a registered listener so it can be unregistered later.
type EventID uint32

type registeredEvent[T any] struct {
	id       EventID
	callback func(T)
}

// Event is a list of listeners for one kind of notification. Listeners are
// invoked synchronously, in registration order, on the goroutine that fires.
type Event[T any] struct {
	mu     sync.Mutex
	nextID EventID
	events []registeredEvent[T]
}

/**
 * Register to listen for when the event is fired.
 * @param callback The function to invoke with the event data.
 * @returns The id needed to unregister the listener.
 */
func (e *Event[T]) Register(callback func(T)) EventID {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	e.events = append(e.events, registeredEvent[T]{id: e.nextID, callback: callback})
	return e.nextID
}

/**
 * Unregister a listener. If no matching registration is found, this function
 * returns false.
 */
func (e *Event[T]) Unregister(id EventID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.events {
		if e.events[i].id == id {
			e.events = append(e.events[:i], e.events[i+1:]...)
			return true
		}
	}
	// Not found.
	return false
}

/**
 * Fires the event to every registered listener.
 * The listener list is copied first, so callbacks may register or unregister
 * listeners while the event is being delivered.
 */
func (e *Event[T]) Fire(data T) {
	e.mu.Lock()
	listeners := make([]registeredEvent[T], len(e.events))
	copy(listeners, e.events)
	e.mu.Unlock()

	for _, l := range listeners {
		l.callback(data)
	}
}

func (e *Event[T]) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func (e *Event[T]) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = nil
}
