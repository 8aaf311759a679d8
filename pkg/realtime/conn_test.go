package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"olament/pkg/chat"
	"olament/pkg/testhelpers"
)

type staticTokens struct{ tok string }

func (s staticTokens) Token() (string, bool) { return s.tok, s.tok != "" }

func dialBackend(t *testing.T, b *testhelpers.Backend) *Conn {
	t.Helper()
	c := Dial(b.SocketURL(), staticTokens{tok: "tok-1"})
	t.Cleanup(func() { c.Close() })
	require.Eventually(t, func() bool { return c.State() == StateConnected },
		3*time.Second, 10*time.Millisecond)
	return c
}

func TestConn_ConnectsWithTokenHandshake(t *testing.T) {
	b := testhelpers.NewBackend(t)
	c := dialBackend(t, b)
	require.Equal(t, StateConnected, c.State())
}

func TestConn_GuardedEmitsFailWhenDisconnected(t *testing.T) {
	// A dead endpoint: the conn stays in connecting/disconnected.
	c := Dial("ws://127.0.0.1:1/socket", staticTokens{tok: "tok-1"})
	defer c.Close()

	require.ErrorIs(t, c.SendTyping("c1", true), ErrNotConnected)
	require.ErrorIs(t, c.EmitMessageRead("c1", []string{"m1"}), ErrNotConnected)
	require.ErrorIs(t, c.SendMessage("c1", chat.Message{}, ""), ErrNotConnected)
}

func TestConn_JoinIsIdempotent(t *testing.T) {
	b := testhelpers.NewBackend(t)
	c := dialBackend(t, b)

	require.NoError(t, c.JoinConversation("c1"))
	require.NoError(t, c.JoinConversation("c1"))

	b.WaitFrame(t, "joinConversations", 2*time.Second)
	time.Sleep(100 * time.Millisecond)
	require.Len(t, b.FramesFor("joinConversations"), 1)
}

func TestConn_ResubscribesAfterReconnect(t *testing.T) {
	b := testhelpers.NewBackend(t)
	c := dialBackend(t, b)

	require.NoError(t, c.JoinConversation("c1"))
	require.NoError(t, c.JoinConversation("c2"))
	c.LeaveConversation("c2")
	require.Eventually(t, func() bool {
		return len(b.FramesFor("joinConversations")) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Transport loss: server-side room membership is gone; the client must
	// replay its active subscriptions once reconnected.
	b.DropConnections()
	b.WaitConnections(t, 1, 3*time.Second)

	require.Eventually(t, func() bool {
		return len(b.FramesFor("joinConversations")) >= 3
	}, 3*time.Second, 10*time.Millisecond)
	frames := b.FramesFor("joinConversations")
	var rooms []string
	require.NoError(t, json.Unmarshal(frames[len(frames)-1].Data, &rooms))
	require.Equal(t, []string{"c1"}, rooms, "left conversations are not replayed")

	require.Eventually(t, func() bool { return c.State() == StateConnected },
		3*time.Second, 10*time.Millisecond)
}

func TestConn_InboundMessagesDeliveredInArrivalOrder(t *testing.T) {
	b := testhelpers.NewBackend(t)
	c := dialBackend(t, b)

	var mu sync.Mutex
	var got []string
	c.OnMessage(func(m chat.Message) {
		mu.Lock()
		got = append(got, m.ID)
		mu.Unlock()
	})

	for _, id := range []string{"m1", "m2", "m3"} {
		b.Push(t, EventNewMessage, map[string]any{
			"_id":            id,
			"conversationId": "c1",
			"sender":         map[string]any{"_id": "u1", "name": "Ada"},
			"text":           "hi",
			"createdAt":      "2026-08-01T12:00:00Z",
		})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"m1", "m2", "m3"}, got)
}

func TestConn_SendMessageFrame(t *testing.T) {
	b := testhelpers.NewBackend(t)
	c := dialBackend(t, b)

	out := chat.NewOutgoing("c1", "u1", "hello")
	require.NoError(t, c.SendMessage("c1", out, "p1"))

	f := b.WaitFrame(t, "privateMessage", 2*time.Second)
	var payload struct {
		ConversationID string       `json:"conversationId"`
		Message        chat.Message `json:"message"`
		ProductID      string       `json:"productId"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	require.Equal(t, "c1", payload.ConversationID)
	require.Equal(t, "p1", payload.ProductID)
	require.Equal(t, out.ID, payload.Message.ID)
}

func TestConn_UnsubscribeStopsDelivery(t *testing.T) {
	b := testhelpers.NewBackend(t)
	c := dialBackend(t, b)

	var mu sync.Mutex
	var count int
	unsub := c.OnMessage(func(chat.Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.Push(t, EventNewMessage, map[string]any{"_id": "m1", "conversationId": "c1", "senderId": "u1"})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)

	unsub()
	b.Push(t, EventNewMessage, map[string]any{"_id": "m2", "conversationId": "c1", "senderId": "u1"})
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, count)
}

func TestConn_NoListenerFiresAfterClose(t *testing.T) {
	b := testhelpers.NewBackend(t)
	c := dialBackend(t, b)

	var mu sync.Mutex
	var count int
	c.OnMessage(func(chat.Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	require.NoError(t, c.Close())
	b.Push(t, EventNewMessage, map[string]any{"_id": "m1", "conversationId": "c1", "senderId": "u1"})
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, count)
	require.Equal(t, StateDisconnected, c.State())
}
