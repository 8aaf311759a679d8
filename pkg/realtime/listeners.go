package realtime

import (
	"sync"

	"olament/pkg/chat"
)

type (
	MessageHandler func(chat.Message)
	TypingHandler  func(TypingEvent)
	ReadHandler    func(ReadEvent)
	StateHandler   func(State)
)

// registry holds the connection's subscribers. Dispatch runs under the read
// lock so Close, which takes the write lock and clears everything, cannot
// return while a handler is still running: after teardown no listener fires.
type registry struct {
	mu       sync.RWMutex
	closed   bool
	nextID   int
	messages map[int]MessageHandler
	typings  map[int]TypingHandler
	reads    map[int]ReadHandler
	states   map[int]StateHandler
}

func newRegistry() *registry {
	return &registry{
		messages: make(map[int]MessageHandler),
		typings:  make(map[int]TypingHandler),
		reads:    make(map[int]ReadHandler),
		states:   make(map[int]StateHandler),
	}
}

func (r *registry) addMessage(h MessageHandler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return func() {}
	}
	id := r.nextID
	r.nextID++
	r.messages[id] = h
	return func() { remove(r, r.messages, id) }
}

func (r *registry) addTyping(h TypingHandler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return func() {}
	}
	id := r.nextID
	r.nextID++
	r.typings[id] = h
	return func() { remove(r, r.typings, id) }
}

func (r *registry) addRead(h ReadHandler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return func() {}
	}
	id := r.nextID
	r.nextID++
	r.reads[id] = h
	return func() { remove(r, r.reads, id) }
}

func (r *registry) addState(h StateHandler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return func() {}
	}
	id := r.nextID
	r.nextID++
	r.states[id] = h
	return func() { remove(r, r.states, id) }
}

func remove[H any](r *registry, m map[int]H, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(m, id)
}

func (r *registry) dispatchMessage(m chat.Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	for _, h := range r.messages {
		h(m)
	}
}

func (r *registry) dispatchTyping(ev TypingEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	for _, h := range r.typings {
		h(ev)
	}
}

func (r *registry) dispatchRead(ev ReadEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	for _, h := range r.reads {
		h(ev)
	}
}

func (r *registry) dispatchState(s State) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	for _, h := range r.states {
		h(s)
	}
}

func (r *registry) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	clear(r.messages)
	clear(r.typings)
	clear(r.reads)
	clear(r.states)
}
