package dispatch

import (
	"sync"

	"github.com/deskbase/chatd/internal/model"
)

// MessageHandler receives inbound chat messages.
type MessageHandler func(model.Message)

// TypingHandler receives typing indicator events.
type TypingHandler func(model.TypingIndicator)

// PresenceEvent carries a participant's resolved online state.
type PresenceEvent struct {
	UserID string
	Online bool
}

// PresenceHandler receives presence events.
type PresenceHandler func(PresenceEvent)

// StateHandler receives relay connection state changes.
type StateHandler func(model.ConnState)

type entry[H any] struct {
	id int
	fn H
}

// Dispatcher is an in-process publish/subscribe registry with four
// independent subscriber sets. Delivery is synchronous in registration
// order within one set; sets are independent of each other. Handlers may
// subscribe or unsubscribe from within a callback, including removing
// themselves mid-delivery.
type Dispatcher struct {
	mu       sync.Mutex
	next     int
	messages []entry[MessageHandler]
	typing   []entry[TypingHandler]
	presence []entry[PresenceHandler]
	states   []entry[StateHandler]

	// Last published connection state, replayed to new state subscribers.
	state model.ConnState
}

// New creates a dispatcher. The connection state starts as disconnected.
func New() *Dispatcher {
	return &Dispatcher{state: model.StateDisconnected}
}

// OnMessage registers a message subscriber. Returns an unsubscribe func.
func (d *Dispatcher) OnMessage(h MessageHandler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.next
	d.next++
	d.messages = append(d.messages, entry[MessageHandler]{id: id, fn: h})
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.messages = remove(d.messages, id)
	}
}

// OnTyping registers a typing subscriber. Returns an unsubscribe func.
func (d *Dispatcher) OnTyping(h TypingHandler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.next
	d.next++
	d.typing = append(d.typing, entry[TypingHandler]{id: id, fn: h})
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.typing = remove(d.typing, id)
	}
}

// OnPresence registers a presence subscriber. Returns an unsubscribe func.
func (d *Dispatcher) OnPresence(h PresenceHandler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.next
	d.next++
	d.presence = append(d.presence, entry[PresenceHandler]{id: id, fn: h})
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.presence = remove(d.presence, id)
	}
}

// OnState registers a connection state subscriber and immediately invokes
// it once with the current state. Other subscription kinds are not
// replayed. Returns an unsubscribe func.
func (d *Dispatcher) OnState(h StateHandler) func() {
	d.mu.Lock()
	id := d.next
	d.next++
	d.states = append(d.states, entry[StateHandler]{id: id, fn: h})
	current := d.state
	d.mu.Unlock()

	h(current)

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.states = remove(d.states, id)
	}
}

// PublishMessage delivers a message to every message subscriber.
func (d *Dispatcher) PublishMessage(m model.Message) {
	d.mu.Lock()
	subs := snapshot(d.messages)
	d.mu.Unlock()
	for _, fn := range subs {
		fn(m)
	}
}

// PublishTyping delivers a typing indicator to every typing subscriber.
func (d *Dispatcher) PublishTyping(t model.TypingIndicator) {
	d.mu.Lock()
	subs := snapshot(d.typing)
	d.mu.Unlock()
	for _, fn := range subs {
		fn(t)
	}
}

// PublishPresence delivers a presence event to every presence subscriber.
func (d *Dispatcher) PublishPresence(p PresenceEvent) {
	d.mu.Lock()
	subs := snapshot(d.presence)
	d.mu.Unlock()
	for _, fn := range subs {
		fn(p)
	}
}

// PublishState records the new connection state and delivers it to every
// state subscriber.
func (d *Dispatcher) PublishState(s model.ConnState) {
	d.mu.Lock()
	d.state = s
	subs := snapshot(d.states)
	d.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

// State returns the last published connection state.
func (d *Dispatcher) State() model.ConnState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// snapshot copies the handler list so delivery iterates a stable slice
// even if a handler mutates the registry while being invoked.
func snapshot[H any](entries []entry[H]) []H {
	fns := make([]H, len(entries))
	for i, e := range entries {
		fns[i] = e.fn
	}
	return fns
}

func remove[H any](entries []entry[H], id int) []entry[H] {
	for i, e := range entries {
		if e.id == id {
			return append(entries[:i:i], entries[i+1:]...)
		}
	}
	return entries
}
