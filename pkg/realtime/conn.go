package realtime

import (
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"olament/pkg/api"
	"olament/pkg/chat"
)

// ErrNotConnected is returned by guarded emits while the socket is down.
// Nothing is queued; the caller must not assume delivery.
var ErrNotConnected = errors.New("realtime: not connected")

// State of the duplex connection.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// Conn is the session's one realtime connection. It dials with the current
// token attached at handshake time, normalizes inbound events, and delivers
// them to subscribers in arrival order. Consumers needing strict transcript
// order still sort by message timestamp: the transport does not guarantee
// send order across reconnects.
//
// Reconnection is automatic with exponential backoff. Server-side room
// membership does not survive a reconnect, so the active conversation set is
// replayed after every successful dial.
type Conn struct {
	endpoint  string
	tokens    api.TokenSource
	dialer    *websocket.Dialer
	log       *zap.SugaredLogger
	listeners *registry

	mu     sync.Mutex
	ws     *websocket.Conn
	state  State
	rooms  map[string]struct{}
	closed bool
	done   chan struct{}

	writeMu sync.Mutex
}

type Option func(*Conn)

// WithLogger injects a logger; the default is a nop.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Conn) { c.log = log }
}

// Dial starts the connection loop for the given ws endpoint. The returned
// Conn is usable immediately; emits fail with ErrNotConnected until the
// handshake completes.
func Dial(endpoint string, tokens api.TokenSource, opts ...Option) *Conn {
	c := &Conn{
		endpoint:  endpoint,
		tokens:    tokens,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:       zap.NewNop().Sugar(),
		listeners: newRegistry(),
		state:     StateConnecting,
		rooms:     make(map[string]struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.run()
	return c
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnMessage registers a handler for inbound messages; the returned func
// unregisters it.
func (c *Conn) OnMessage(h MessageHandler) func() { return c.listeners.addMessage(h) }

// OnTyping registers a handler for typing indicators.
func (c *Conn) OnTyping(h TypingHandler) func() { return c.listeners.addTyping(h) }

// OnRead registers a handler for read receipts.
func (c *Conn) OnRead(h ReadHandler) func() { return c.listeners.addRead(h) }

// OnStateChange registers a handler for connection state transitions.
func (c *Conn) OnStateChange(h StateHandler) func() { return c.listeners.addState(h) }

// JoinConversation subscribes to a conversation's events. Idempotent; the
// subscription is replayed automatically after a reconnect.
func (c *Conn) JoinConversation(conversationID string) error {
	c.mu.Lock()
	if _, ok := c.rooms[conversationID]; ok {
		c.mu.Unlock()
		return nil
	}
	c.rooms[conversationID] = struct{}{}
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		// Joined locally; the replay on connect covers it.
		return nil
	}
	return c.emit(eventJoinConversations, []string{conversationID})
}

// LeaveConversation unsubscribes locally. No wire traffic is needed: the
// server drops room membership on disconnect, and the replay set no longer
// includes this conversation.
func (c *Conn) LeaveConversation(conversationID string) {
	c.mu.Lock()
	delete(c.rooms, conversationID)
	c.mu.Unlock()
}

// SendTyping emits a typing indicator. Guarded.
func (c *Conn) SendTyping(conversationID string, isTyping bool) error {
	return c.guardedEmit(EventTyping, TypingEvent{ConversationID: conversationID, IsTyping: isTyping})
}

// EmitMessageRead marks messages read. Guarded.
func (c *Conn) EmitMessageRead(conversationID string, messageIDs []string) error {
	return c.guardedEmit(eventMarkAsRead, ReadEvent{ConversationID: conversationID, MessageIDs: messageIDs})
}

// SendMessage sends a chat message over the socket. Guarded. ProductID is
// optional and scopes the conversation to a product.
func (c *Conn) SendMessage(conversationID string, m chat.Message, productID string) error {
	payload := struct {
		ConversationID string       `json:"conversationId"`
		Message        chat.Message `json:"message"`
		ProductID      string       `json:"productId,omitempty"`
	}{ConversationID: conversationID, Message: m, ProductID: productID}
	return c.guardedEmit(eventPrivateMessage, payload)
}

// Close tears the connection down. Every listener is unregistered before
// Close returns; none fires afterward.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	ws := c.ws
	c.state = StateDisconnected
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
	c.listeners.close()
	return nil
}

func (c *Conn) guardedEmit(event string, data any) error {
	c.mu.Lock()
	connected := c.state == StateConnected && c.ws != nil
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	return c.emit(event, data)
}

func (c *Conn) emit(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ws.WriteJSON(frame{Event: event, Data: raw})
}

// run is the connection loop: dial, replay subscriptions, read until the
// transport drops, back off, repeat. It exits only on Close.
func (c *Conn) run() {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	b.MaxInterval = 15 * time.Second

	for {
		if c.isClosed() {
			return
		}
		c.setState(StateConnecting)

		ws, err := c.dial()
		if err != nil {
			c.log.Warnw("realtime dial failed", "error", err)
			c.setState(StateDisconnected)
			select {
			case <-c.done:
				return
			case <-time.After(b.NextBackOff()):
			}
			continue
		}
		b.Reset()

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			ws.Close()
			return
		}
		c.ws = ws
		c.state = StateConnected
		rooms := make([]string, 0, len(c.rooms))
		for id := range c.rooms {
			rooms = append(rooms, id)
		}
		c.mu.Unlock()
		c.listeners.dispatchState(StateConnected)

		if len(rooms) > 0 {
			if err := c.emit(eventJoinConversations, rooms); err != nil {
				c.log.Warnw("subscription replay failed", "error", err)
			}
		}

		c.readLoop(ws)

		c.mu.Lock()
		c.ws = nil
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		c.setState(StateDisconnected)
	}
}

func (c *Conn) dial() (*websocket.Conn, error) {
	u := c.endpoint
	if c.tokens != nil {
		if tok, ok := c.tokens.Token(); ok {
			q := url.Values{}
			q.Set("token", tok)
			u += "?" + q.Encode()
		}
	}
	ws, _, err := c.dialer.Dial(u, nil)
	return ws, err
}

// readLoop delivers inbound events in arrival order. Handlers run on this
// goroutine, which is what makes delivery FIFO.
func (c *Conn) readLoop(ws *websocket.Conn) {
	defer ws.Close()
	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warnw("realtime read failed", "error", err)
			}
			return
		}
		c.handleFrame(f)
	}
}

func (c *Conn) handleFrame(f frame) {
	switch f.Event {
	case EventNewMessage:
		m, err := chat.Normalize(f.Data)
		if err != nil {
			c.log.Warnw("dropping malformed message event", "error", err)
			return
		}
		c.listeners.dispatchMessage(m)
	case EventTyping:
		var ev TypingEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return
		}
		c.listeners.dispatchTyping(ev)
	case EventMessageRead:
		var ev ReadEvent
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			return
		}
		c.listeners.dispatchRead(ev)
	default:
		c.log.Debugw("ignoring unknown event", "event", f.Event)
	}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	if c.closed || c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	c.listeners.dispatchState(s)
}
