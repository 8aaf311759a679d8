package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Frame is one realtime event as carried on the socket, both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Backend is an in-process stand-in for the Olament API. Tests register the
// REST routes they need on Engine before making requests; the /socket
// endpoint is always mounted and speaks the realtime event vocabulary.
type Backend struct {
	Engine *gin.Engine
	Server *httptest.Server

	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  []*websocket.Conn
	frames []Frame
}

// NewBackend starts the fake backend and registers its shutdown with t.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &Backend{
		Engine: gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	b.Engine.GET("/socket", b.handleSocket)
	b.Server = httptest.NewServer(b.Engine)
	t.Cleanup(func() {
		b.DropConnections()
		b.Server.Close()
	})
	return b
}

// URL returns the REST base URL.
func (b *Backend) URL() string { return b.Server.URL }

// SocketURL returns the ws:// URL of the realtime endpoint.
func (b *Backend) SocketURL() string {
	return "ws" + strings.TrimPrefix(b.Server.URL, "http") + "/socket"
}

// handleSocket upgrades the connection and records every frame the client
// emits. The handshake requires a token, mirroring the real backend.
func (b *Backend) handleSocket(c *gin.Context) {
	if c.Query("token") == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
		return
	}
	conn, err := b.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		b.mu.Lock()
		b.frames = append(b.frames, f)
		b.mu.Unlock()
	}
}

// Push delivers an event to every connected client.
func (b *Backend) Push(t *testing.T, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("encode push data: %v", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, conn := range b.conns {
		conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteJSON(Frame{Event: event, Data: raw}); err != nil {
			t.Logf("push to client failed: %v", err)
		}
	}
}

// Frames returns a copy of every frame clients have emitted so far.
func (b *Backend) Frames() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Frame, len(b.frames))
	copy(out, b.frames)
	return out
}

// FramesFor filters emitted frames by event name.
func (b *Backend) FramesFor(event string) []Frame {
	var out []Frame
	for _, f := range b.Frames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// WaitFrame polls until a frame for event arrives or the deadline passes.
func (b *Backend) WaitFrame(t *testing.T, event string, timeout time.Duration) Frame {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fs := b.FramesFor(event); len(fs) > 0 {
			return fs[len(fs)-1]
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no %q frame within %s", event, timeout)
	return Frame{}
}

// WaitConnections polls until n clients are connected.
func (b *Backend) WaitConnections(t *testing.T, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		got := len(b.conns)
		b.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("fewer than %d socket connections within %s", n, timeout)
}

// DropConnections closes every client socket, simulating transport loss.
// Clients are expected to reconnect on their own.
func (b *Backend) DropConnections() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, conn := range b.conns {
		conn.Close()
	}
	b.conns = nil
}
