package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"olament/pkg/api"
)

// Client reads the chat REST endpoints: the conversation list and each
// conversation's message history. Realtime delivery is pkg/realtime's job;
// this client backfills what happened before the socket came up.
type Client struct {
	api   *api.Client
	guard *api.FetchGuard
}

func NewClient(client *api.Client) *Client {
	return &Client{api: client, guard: api.NewFetchGuard()}
}

type wireConversation struct {
	MongoID     string          `json:"_id"`
	ID          string          `json:"id"`
	BuyerID     string          `json:"buyerId"`
	SellerID    string          `json:"sellerId"`
	ProductID   string          `json:"productId"`
	UnreadCount int             `json:"unreadCount"`
	LastMessage json.RawMessage `json:"lastMessage"`
}

func (w wireConversation) canonical() (Conversation, error) {
	c := Conversation{
		ID:          firstNonEmpty(w.ID, w.MongoID),
		BuyerID:     w.BuyerID,
		SellerID:    w.SellerID,
		ProductID:   w.ProductID,
		UnreadCount: w.UnreadCount,
	}
	if len(w.LastMessage) > 0 && string(w.LastMessage) != "null" {
		m, err := Normalize(w.LastMessage)
		if err != nil {
			return Conversation{}, err
		}
		c.LastMessage = &m
	}
	return c, nil
}

// ListConversations fetches the user's conversations. Guarded: an overlap
// with a fetch still in flight is dropped.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	err := c.guard.Do("chats", func() error {
		page, err := api.GetPage[wireConversation](ctx, c.api, "/chats", nil)
		if err != nil {
			return err
		}
		out = make([]Conversation, 0, len(page.Items))
		for _, w := range page.Items {
			conv, err := w.canonical()
			if err != nil {
				return fmt.Errorf("chat: normalize conversation: %w", err)
			}
			out = append(out, conv)
		}
		return nil
	})
	return out, err
}

// History fetches a conversation's messages, canonicalized. Guarded per
// conversation.
func (c *Client) History(ctx context.Context, conversationID string, page, limit int) ([]Message, error) {
	var out []Message
	path := fmt.Sprintf("/chats/%s/messages", url.PathEscape(conversationID))
	err := c.guard.Do("history:"+conversationID, func() error {
		pg, err := api.GetPage[json.RawMessage](ctx, c.api, path, api.PageQuery(page, limit))
		if err != nil {
			return err
		}
		out = make([]Message, 0, len(pg.Items))
		for _, raw := range pg.Items {
			m, err := Normalize(raw)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}
