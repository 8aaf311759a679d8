package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"olament/pkg/negotiation"
)

// wireMessage accepts every shape the backend emits for a message: the id
// under "_id" or "id", the sender as an embedded object or a flat id, the
// instant under "createdAt" or "timestamp". The canonical Message uses one
// field for each, so normalizing an already-canonical payload is a no-op.
type wireMessage struct {
	MongoID        string          `json:"_id"`
	ID             string          `json:"id"`
	ConversationID string          `json:"conversationId"`
	Sender         json.RawMessage `json:"sender"`
	SenderID       string          `json:"senderId"`
	SenderName     string          `json:"senderName"`
	Type           MessageType     `json:"type"`
	Body           string          `json:"body"`
	Text           string          `json:"text"`
	Offer          json.RawMessage `json:"offer"`
	CreatedAt      *time.Time      `json:"createdAt"`
	Timestamp      *time.Time      `json:"timestamp"`
	Status         DeliveryStatus  `json:"status"`
}

// Normalize maps a raw message payload to the canonical Message.
func Normalize(raw []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return Message{}, fmt.Errorf("chat: decode message: %w", err)
	}

	m := Message{
		ID:             firstNonEmpty(w.ID, w.MongoID),
		ConversationID: w.ConversationID,
		SenderID:       w.SenderID,
		SenderName:     w.SenderName,
		Type:           w.Type,
		Body:           firstNonEmpty(w.Body, w.Text),
		Status:         w.Status,
	}
	if m.SenderID == "" && len(w.Sender) > 0 {
		m.SenderID, m.SenderName = senderFields(w.Sender, m.SenderName)
	}
	if m.Type == "" {
		m.Type = TypeText
	}
	if m.Status == "" {
		m.Status = StatusDelivered
	}
	switch {
	case w.Timestamp != nil && !w.Timestamp.IsZero():
		m.Timestamp = w.Timestamp.UTC()
	case w.CreatedAt != nil && !w.CreatedAt.IsZero():
		m.Timestamp = w.CreatedAt.UTC()
	}
	if len(w.Offer) > 0 && string(w.Offer) != "null" {
		o, err := negotiation.NormalizeOffer(w.Offer)
		if err != nil {
			return Message{}, fmt.Errorf("chat: decode offer snapshot: %w", err)
		}
		m.Offer = &o
	}
	return m, nil
}

// senderFields accepts {"_id": "...", "name": "..."} or a bare id string.
func senderFields(raw json.RawMessage, name string) (string, string) {
	var flat string
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, name
	}
	var obj struct {
		MongoID string `json:"_id"`
		ID      string `json:"id"`
		Name    string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return firstNonEmpty(obj.MongoID, obj.ID), firstNonEmpty(name, obj.Name)
	}
	return "", name
}

// NewOutgoing builds the optimistic local entry for a message the user just
// sent. The id is generated client-side and echoed back by the server, which
// is what lets the echo collapse onto this entry instead of duplicating it.
func NewOutgoing(conversationID, senderID, body string) Message {
	return Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           TypeText,
		Body:           body,
		Timestamp:      time.Now().UTC(),
		Status:         StatusSending,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
