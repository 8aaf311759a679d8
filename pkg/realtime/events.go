package realtime

import "encoding/json"

// Wire event names. Inbound and outbound sets per the backend's realtime
// contract.
const (
	EventNewMessage  = "newMessage"
	EventTyping      = "typing"
	EventMessageRead = "messageRead"

	eventMarkAsRead        = "markAsRead"
	eventJoinConversations = "joinConversations"
	eventPrivateMessage    = "privateMessage"
)

// frame is the on-wire envelope for every event, both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// TypingEvent signals a participant typing in a conversation.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// ReadEvent signals that a participant read a batch of messages.
type ReadEvent struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
	ReadBy         string   `json:"readBy"`
}
