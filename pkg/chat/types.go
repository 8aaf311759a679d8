package chat

import (
	"time"

	"olament/pkg/negotiation"
)

// DeliveryStatus tracks a message's progress through the pipeline.
// StatusSending exists only client-side, on optimistic entries that have not
// been confirmed by the server yet.
type DeliveryStatus string

const (
	StatusSending   DeliveryStatus = "sending"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// rank orders delivery statuses so an upgrade never goes backwards.
func (s DeliveryStatus) rank() int {
	switch s {
	case StatusSending:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	}
	return -1
}

type MessageType string

const (
	TypeText  MessageType = "text"
	TypeOffer MessageType = "offer"
	TypeImage MessageType = "image"
)

// Message is the canonical transcript entry. Every wire variant (socket
// event, REST history, optimistic local send) is normalized into this shape
// before anything else touches it.
type Message struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversationId"`
	SenderID       string             `json:"senderId"`
	SenderName     string             `json:"senderName,omitempty"`
	Type           MessageType        `json:"type"`
	Body           string             `json:"body,omitempty"`
	Offer          *negotiation.Offer `json:"offer,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
	Status         DeliveryStatus     `json:"status"`
}

// Conversation groups messages between a buyer and a seller, optionally
// scoped to one product. UnreadCount is server-authoritative but bumped
// optimistically on inbound events.
type Conversation struct {
	ID          string   `json:"id"`
	BuyerID     string   `json:"buyerId"`
	SellerID    string   `json:"sellerId"`
	ProductID   string   `json:"productId,omitempty"`
	UnreadCount int      `json:"unreadCount"`
	LastMessage *Message `json:"lastMessage,omitempty"`
}

// LastActivity is the instant used for conversation-list ordering.
func (c Conversation) LastActivity() time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.Timestamp
	}
	return time.Time{}
}
