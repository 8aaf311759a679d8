package negotiation

import (
	"encoding/json"
	"time"
)

// Status is the server-owned offer state. The client tracks it but never
// advances it on its own authority.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusCountered Status = "countered"
	StatusExpired   Status = "expired"
	StatusWithdrawn Status = "withdrawn"
)

// Terminal reports whether s ends the offer's lifecycle. A countered offer
// is closed for actions too, but it spawns a child offer rather than ending
// the negotiation, so it is not in the terminal set.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusDeclined, StatusExpired, StatusWithdrawn:
		return true
	}
	return false
}

// Action is one of the four legal offer mutations.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionDecline  Action = "decline"
	ActionCounter  Action = "counter"
	ActionWithdraw Action = "withdraw"
)

// Offer is the canonical negotiation proposal. Price is in currency minor
// units. ParentID is set when this offer counters another; the chain has at
// most one parent per offer and no cycles.
type Offer struct {
	ID             string    `json:"offerId"`
	ParentID       string    `json:"parentOffer,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	Price          int64     `json:"price"`
	Quantity       int       `json:"quantity"`
	Status         Status    `json:"status"`
	InitiatorName  string    `json:"initiatorName,omitempty"`
	SenderID       string    `json:"senderId"`
	UpdatedAt      time.Time `json:"updatedAt,omitempty"`
}

// Role of a viewer relative to an offer.
type Role int

const (
	RoleRecipient Role = iota
	RoleInitiator
)

// RoleFor classifies userID against o's sender.
func RoleFor(o Offer, userID string) Role {
	if o.SenderID == userID {
		return RoleInitiator
	}
	return RoleRecipient
}

// PermittedActions returns the actions userID may take on o. Only a pending
// offer has any: the recipient may accept, decline or counter; the initiator
// may only withdraw.
func PermittedActions(o Offer, userID string) []Action {
	if o.Status != StatusPending {
		return nil
	}
	if RoleFor(o, userID) == RoleInitiator {
		return []Action{ActionWithdraw}
	}
	return []Action{ActionAccept, ActionDecline, ActionCounter}
}

// NormalizeOffer maps a raw offer payload to the canonical Offer. The wire
// carries the id as offerId or _id, and the price either as minor units or
// as a decimal; both shapes land on the same canonical value, and running
// the result through again changes nothing.
func NormalizeOffer(raw []byte) (Offer, error) {
	var w wireOffer
	if err := json.Unmarshal(raw, &w); err != nil {
		return Offer{}, err
	}
	return w.canonical(), nil
}

type wireOffer struct {
	OfferID        string          `json:"offerId"`
	MongoID        string          `json:"_id"`
	ID             string          `json:"id"`
	ParentOffer    string          `json:"parentOffer"`
	ConversationID string          `json:"conversationId"`
	Price          json.Number     `json:"price"`
	Quantity       int             `json:"quantity"`
	Status         Status          `json:"status"`
	InitiatorName  string          `json:"initiatorName"`
	Sender         json.RawMessage `json:"sender"`
	SenderID       string          `json:"senderId"`
	UpdatedAt      *time.Time      `json:"updatedAt"`
}

func (w wireOffer) canonical() Offer {
	o := Offer{
		ID:             firstNonEmpty(w.OfferID, w.MongoID, w.ID),
		ParentID:       w.ParentOffer,
		ConversationID: w.ConversationID,
		Quantity:       w.Quantity,
		Status:         w.Status,
		InitiatorName:  w.InitiatorName,
		SenderID:       w.SenderID,
	}
	if o.Quantity < 1 {
		o.Quantity = 1
	}
	if p, err := w.Price.Int64(); err == nil {
		o.Price = p
	} else if f, err := w.Price.Float64(); err == nil {
		// decimal major units from the server; round once, here
		o.Price = int64(f*100 + 0.5)
	}
	if o.SenderID == "" && len(w.Sender) > 0 {
		o.SenderID = senderID(w.Sender)
	}
	if w.UpdatedAt != nil && !w.UpdatedAt.IsZero() {
		o.UpdatedAt = w.UpdatedAt.UTC()
	}
	return o
}

// senderID accepts either a flat id string or an embedded sender object.
func senderID(raw json.RawMessage) string {
	var flat string
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat
	}
	var obj struct {
		MongoID string `json:"_id"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return firstNonEmpty(obj.MongoID, obj.ID)
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
