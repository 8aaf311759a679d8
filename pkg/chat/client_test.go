package chat

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"olament/pkg/api"
	"olament/pkg/testhelpers"
)

func TestClient_ListConversations(t *testing.T) {
	b := testhelpers.NewBackend(t)
	b.Engine.GET("/chats", func(c *gin.Context) {
		c.JSON(http.StatusOK, testhelpers.Paginated([]gin.H{
			{
				"_id": "c1", "buyerId": "u1", "sellerId": "u2", "unreadCount": 3,
				"lastMessage": gin.H{
					"_id": "m9", "conversationId": "c1",
					"sender":    gin.H{"_id": "u2", "name": "Bea"},
					"text":      "deal?",
					"createdAt": "2026-08-01T12:00:00Z",
				},
			},
			{"id": "c2", "buyerId": "u1", "sellerId": "u3"},
		}, 1, 10, 2))
	})

	client := NewClient(api.NewClient(b.URL()))
	convs, err := client.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 2)

	require.Equal(t, "c1", convs[0].ID)
	require.Equal(t, 3, convs[0].UnreadCount)
	require.NotNil(t, convs[0].LastMessage)
	require.Equal(t, "m9", convs[0].LastMessage.ID)
	require.Equal(t, "u2", convs[0].LastMessage.SenderID)

	require.Equal(t, "c2", convs[1].ID)
	require.Nil(t, convs[1].LastMessage)
}

func TestClient_History_NormalizesEveryEntry(t *testing.T) {
	b := testhelpers.NewBackend(t)
	b.Engine.GET("/chats/c1/messages", func(c *gin.Context) {
		c.JSON(http.StatusOK, testhelpers.Paginated([]gin.H{
			{"_id": "m1", "conversationId": "c1", "senderId": "u1", "text": "hi", "createdAt": "2026-08-01T12:00:00Z"},
			{
				"id": "m2", "conversationId": "c1", "sender": gin.H{"_id": "u2"},
				"type": "offer",
				"offer": gin.H{"offerId": "o1", "price": 5000, "quantity": 2, "status": "pending", "senderId": "u2"},
				"timestamp": "2026-08-01T12:01:00Z",
			},
		}, 1, 50, 2))
	})

	client := NewClient(api.NewClient(b.URL()))
	msgs, err := client.History(context.Background(), "c1", 1, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.Equal(t, TypeText, msgs[0].Type)
	require.Equal(t, TypeOffer, msgs[1].Type)
	require.NotNil(t, msgs[1].Offer)
	require.Equal(t, int64(5000), msgs[1].Offer.Price)
}
