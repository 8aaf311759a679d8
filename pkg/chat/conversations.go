package chat

import (
	"sort"
	"sync"
)

// ConversationList keeps the chat sidebar's state: every known conversation,
// ordered by most-recent-activity descending. Any mutation that touches a
// conversation's last message re-sorts the list.
type ConversationList struct {
	mu    sync.Mutex
	items map[string]*Conversation
}

func NewConversationList() *ConversationList {
	return &ConversationList{items: make(map[string]*Conversation)}
}

// Replace installs the server's copy of a conversation wholesale, including
// its unread count. Used when the server returns a conversation refresh.
func (l *ConversationList) Replace(c Conversation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := c
	l.items[c.ID] = &cp
}

// ApplyMessage folds an inbound or outbound message into the list: the
// conversation's last message advances if m is newer, and the unread count
// is bumped optimistically for inbound messages on conversations the user is
// not currently viewing. The server remains authoritative; the next Replace
// overwrites the optimistic count.
func (l *ConversationList) ApplyMessage(m Message, selfID, activeConversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.items[m.ConversationID]
	if !ok {
		c = &Conversation{ID: m.ConversationID}
		l.items[m.ConversationID] = c
	}
	if c.LastMessage == nil || !m.Timestamp.Before(c.LastMessage.Timestamp) {
		cp := m
		c.LastMessage = &cp
	}
	if m.SenderID != selfID && m.ConversationID != activeConversationID {
		c.UnreadCount++
	}
}

// MarkViewed clears the unread count when the user opens a conversation.
func (l *ConversationList) MarkViewed(conversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.items[conversationID]; ok {
		c.UnreadCount = 0
	}
}

// Get returns a copy of the named conversation.
func (l *ConversationList) Get(id string) (Conversation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.items[id]
	if !ok {
		return Conversation{}, false
	}
	return *c, true
}

// Ordered returns the conversations sorted by last activity, newest first.
func (l *ConversationList) Ordered() []Conversation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Conversation, 0, len(l.items))
	for _, c := range l.items {
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].LastActivity(), out[j].LastActivity()
		if ti.Equal(tj) {
			return out[i].ID < out[j].ID
		}
		return ti.After(tj)
	})
	return out
}
