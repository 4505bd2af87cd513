package client

import (
	"sync"

	"github.com/mimi6060/festivals-sub018/internal/realtime"
)

// Wildcard registers a handler for every inbound message type.
const Wildcard realtime.MessageType = "*"

// MessageHandler receives inbound envelopes. Handlers run synchronously on
// the client's read goroutine, in registration order; a slow handler delays
// subsequent messages.
type MessageHandler func(realtime.Envelope)

// StateHandler observes logical connection state transitions.
type StateHandler func(ConnState)

type messageEntry struct {
	id int
	fn MessageHandler
}

type stateEntry struct {
	id int
	fn StateHandler
}

// handlerRegistry is the observer component backing OnMessage and
// OnConnectionChange. Wildcard handlers see every message in addition to the
// type-specific handlers for that message's type.
type handlerRegistry struct {
	mu       sync.Mutex
	nextID   int
	byType   map[realtime.MessageType][]messageEntry
	wildcard []messageEntry
	state    []stateEntry
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{byType: make(map[realtime.MessageType][]messageEntry)}
}

// addMessage registers a handler for t (or Wildcard) and returns its
// unsubscribe function.
func (r *handlerRegistry) addMessage(t realtime.MessageType, fn MessageHandler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entry := messageEntry{id: r.nextID, fn: fn}
	if t == Wildcard {
		r.wildcard = append(r.wildcard, entry)
	} else {
		r.byType[t] = append(r.byType[t], entry)
	}
	id := entry.id
	return func() { r.removeMessage(t, id) }
}

func (r *handlerRegistry) removeMessage(t realtime.MessageType, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t == Wildcard {
		r.wildcard = removeEntry(r.wildcard, id)
		return
	}
	r.byType[t] = removeEntry(r.byType[t], id)
}

// addState registers a connection-state observer and returns its unsubscribe
// function.
func (r *handlerRegistry) addState(fn StateHandler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entry := stateEntry{id: r.nextID, fn: fn}
	r.state = append(r.state, entry)
	id := entry.id
	return func() { r.removeState(id) }
}

func (r *handlerRegistry) removeState(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.state {
		if e.id == id {
			r.state = append(r.state[:i], r.state[i+1:]...)
			return
		}
	}
}

// dispatch invokes the type-specific handlers for env's type, then the
// wildcard handlers, each set in registration order.
func (r *handlerRegistry) dispatch(env realtime.Envelope) {
	r.mu.Lock()
	typed := append([]messageEntry(nil), r.byType[env.Type]...)
	wild := append([]messageEntry(nil), r.wildcard...)
	r.mu.Unlock()

	for _, e := range typed {
		e.fn(env)
	}
	for _, e := range wild {
		e.fn(env)
	}
}

// dispatchState invokes all connection-state observers in registration order.
func (r *handlerRegistry) dispatchState(state ConnState) {
	r.mu.Lock()
	observers := append([]stateEntry(nil), r.state...)
	r.mu.Unlock()

	for _, e := range observers {
		e.fn(state)
	}
}

func removeEntry(entries []messageEntry, id int) []messageEntry {
	for i, e := range entries {
		if e.id == id {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}
