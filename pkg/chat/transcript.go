package chat

import (
	"sort"
	"sync"
)

// Transcript is one conversation's visible message list. Merging is keyed by
// canonical id, so duplicate delivery is a no-op, and ordering follows the
// messages' own timestamps rather than arrival order: after a reconnect the
// transport may replay events out of send order, and a transcript sorted by
// arrival would show them scrambled.
type Transcript struct {
	mu       sync.Mutex
	messages []Message
	index    map[string]int
}

func NewTranscript() *Transcript {
	return &Transcript{index: make(map[string]int)}
}

// Merge inserts or upgrades m and reports whether anything changed.
//
// An existing entry with the same id is upgraded in place: the delivery
// status only moves forward (a "sending" optimistic entry becomes
// "delivered" when the server echo lands, never the reverse) and
// server-filled fields replace optimistic blanks. A second identical merge
// changes nothing.
func (t *Transcript) Merge(m Message) bool {
	if m.ID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if i, ok := t.index[m.ID]; ok {
		return t.upgrade(i, m)
	}

	pos := sort.Search(len(t.messages), func(i int) bool {
		if t.messages[i].Timestamp.Equal(m.Timestamp) {
			return t.messages[i].ID > m.ID
		}
		return t.messages[i].Timestamp.After(m.Timestamp)
	})
	t.messages = append(t.messages, Message{})
	copy(t.messages[pos+1:], t.messages[pos:])
	t.messages[pos] = m
	for i := pos; i < len(t.messages); i++ {
		t.index[t.messages[i].ID] = i
	}
	return true
}

func (t *Transcript) upgrade(i int, m Message) bool {
	cur := t.messages[i]
	next := cur

	if m.Status.rank() > cur.Status.rank() {
		next.Status = m.Status
	}
	if cur.Status == StatusSending {
		// Server echo confirms the optimistic entry; its copy of the
		// fields is authoritative, the position stays put.
		next.SenderName = firstNonEmpty(m.SenderName, cur.SenderName)
		next.Body = firstNonEmpty(m.Body, cur.Body)
		if m.Offer != nil {
			next.Offer = m.Offer
		}
		if next.Status == StatusSending {
			next.Status = StatusDelivered
		}
	}
	if next == cur {
		return false
	}
	t.messages[i] = next
	return true
}

// MarkRead upgrades the named messages to read.
func (t *Transcript) MarkRead(ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		if i, ok := t.index[id]; ok && t.messages[i].Status.rank() < StatusRead.rank() {
			t.messages[i].Status = StatusRead
		}
	}
}

// Messages returns the transcript in display order.
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len reports the number of distinct messages.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}
