// Package events is a small synchronous publish/subscribe hub.
//
// Listeners run on the emitting goroutine in registration order. An Emitter
// is not safe for concurrent use; it belongs to whatever owns the tick loop.
package events

// Listener receives the payload of one emitted event
type Listener[P any] func(P)

type subscription[P any] struct {
	id       int
	listener Listener[P]
}

// Emitter dispatches payloads of type P to listeners keyed by K
type Emitter[K comparable, P any] struct {
	listeners map[K][]subscription[P]
	nextID    int
}

// NewEmitter creates an emitter with no listeners
func NewEmitter[K comparable, P any]() *Emitter[K, P] {
	return &Emitter[K, P]{listeners: make(map[K][]subscription[P])}
}

// On registers listener for key and returns an id usable with Off
func (e *Emitter[K, P]) On(key K, listener Listener[P]) int {
	e.nextID++
	e.listeners[key] = append(e.listeners[key], subscription[P]{id: e.nextID, listener: listener})
	return e.nextID
}

// Off removes the listener registered under id. Unknown ids are ignored.
func (e *Emitter[K, P]) Off(key K, id int) {
	subs := e.listeners[key]
	for i, s := range subs {
		if s.id == id {
			e.listeners[key] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(e.listeners[key]) == 0 {
		delete(e.listeners, key)
	}
}

// Emit calls every listener of key with payload
func (e *Emitter[K, P]) Emit(key K, payload P) {
	subs := e.listeners[key]
	if len(subs) == 0 {
		return
	}
	// A listener may register or remove listeners while we iterate.
	snapshot := make([]subscription[P], len(subs))
	copy(snapshot, subs)
	for _, s := range snapshot {
		s.listener(payload)
	}
}

// Count returns the number of listeners registered for key
func (e *Emitter[K, P]) Count(key K) int {
	return len(e.listeners[key])
}

// Clear removes every listener
func (e *Emitter[K, P]) Clear() {
	e.listeners = make(map[K][]subscription[P])
}
