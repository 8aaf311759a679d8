package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func msgAt(id string, ts time.Time) Message {
	return Message{
		ID:             id,
		ConversationID: "c1",
		SenderID:       "u1",
		Type:           TypeText,
		Body:           "msg " + id,
		Timestamp:      ts,
		Status:         StatusDelivered,
	}
}

func TestTranscript_DuplicateMergeIsNoOp(t *testing.T) {
	tr := NewTranscript()
	m := msgAt("m1", time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	require.True(t, tr.Merge(m))
	require.False(t, tr.Merge(m))
	require.Equal(t, 1, tr.Len())
}

func TestTranscript_ReconnectOrdering(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	t1 := msgAt("m1", base)
	t2 := msgAt("m2", base.Add(time.Second))
	t3 := msgAt("m3", base.Add(2*time.Second))

	// After a reconnect the transport replays t3 before t2.
	tr := NewTranscript()
	tr.Merge(t1)
	tr.Merge(t3)
	tr.Merge(t2)

	got := tr.Messages()
	require.Len(t, got, 3)
	require.Equal(t, "m1", got[0].ID)
	require.Equal(t, "m2", got[1].ID)
	require.Equal(t, "m3", got[2].ID)
}

func TestTranscript_OptimisticEchoCollapses(t *testing.T) {
	tr := NewTranscript()

	out := NewOutgoing("c1", "u1", "hi")
	require.True(t, tr.Merge(out))

	// Server echo: same canonical id, confirmed delivery, filled sender.
	echo := out
	echo.Status = StatusDelivered
	echo.SenderName = "Ada"
	require.True(t, tr.Merge(echo))

	got := tr.Messages()
	require.Len(t, got, 1, "echo must not create a second entry")
	require.Equal(t, StatusDelivered, got[0].Status)
	require.Equal(t, "Ada", got[0].SenderName)
}

func TestTranscript_StatusNeverDowngrades(t *testing.T) {
	tr := NewTranscript()
	m := msgAt("m1", time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	m.Status = StatusRead
	tr.Merge(m)

	late := m
	late.Status = StatusDelivered
	require.False(t, tr.Merge(late))
	require.Equal(t, StatusRead, tr.Messages()[0].Status)
}

func TestTranscript_MarkRead(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTranscript()
	tr.Merge(msgAt("m1", base))
	tr.Merge(msgAt("m2", base.Add(time.Second)))

	tr.MarkRead([]string{"m1", "nope"})

	got := tr.Messages()
	require.Equal(t, StatusRead, got[0].Status)
	require.Equal(t, StatusDelivered, got[1].Status)
}

func TestConversationList_OrderedByRecency(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l := NewConversationList()
	l.Replace(Conversation{ID: "c1"})
	l.Replace(Conversation{ID: "c2"})

	m1 := msgAt("m1", base)
	m1.ConversationID = "c1"
	l.ApplyMessage(m1, "self", "")

	m2 := msgAt("m2", base.Add(time.Minute))
	m2.ConversationID = "c2"
	l.ApplyMessage(m2, "self", "")

	got := l.Ordered()
	require.Equal(t, "c2", got[0].ID)
	require.Equal(t, "c1", got[1].ID)

	// New activity on c1 re-sorts it to the top.
	m3 := msgAt("m3", base.Add(2*time.Minute))
	m3.ConversationID = "c1"
	l.ApplyMessage(m3, "self", "")
	require.Equal(t, "c1", l.Ordered()[0].ID)
}

func TestConversationList_UnreadCounts(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l := NewConversationList()
	l.Replace(Conversation{ID: "c1"})

	inbound := msgAt("m1", base)
	inbound.ConversationID = "c1"
	l.ApplyMessage(inbound, "self", "")

	c, _ := l.Get("c1")
	require.Equal(t, 1, c.UnreadCount)

	// Messages in the conversation being viewed don't count as unread,
	// and neither do the user's own.
	inbound2 := msgAt("m2", base.Add(time.Second))
	inbound2.ConversationID = "c1"
	l.ApplyMessage(inbound2, "self", "c1")

	own := msgAt("m3", base.Add(2*time.Second))
	own.ConversationID = "c1"
	own.SenderID = "self"
	l.ApplyMessage(own, "self", "")

	c, _ = l.Get("c1")
	require.Equal(t, 1, c.UnreadCount)

	// Server refresh replaces the optimistic count wholesale.
	l.Replace(Conversation{ID: "c1", UnreadCount: 7})
	c, _ = l.Get("c1")
	require.Equal(t, 7, c.UnreadCount)

	l.MarkViewed("c1")
	c, _ = l.Get("c1")
	require.Zero(t, c.UnreadCount)
}
