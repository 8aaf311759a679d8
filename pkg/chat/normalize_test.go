package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalize_WireVariantsConverge(t *testing.T) {
	mongoStyle := []byte(`{
		"_id": "m1",
		"conversationId": "c1",
		"sender": {"_id": "u1", "name": "Ada"},
		"type": "text",
		"text": "hello",
		"createdAt": "2026-08-01T12:00:00Z"
	}`)
	flatStyle := []byte(`{
		"id": "m1",
		"conversationId": "c1",
		"senderId": "u1",
		"senderName": "Ada",
		"type": "text",
		"body": "hello",
		"timestamp": "2026-08-01T12:00:00Z"
	}`)

	a, err := Normalize(mongoStyle)
	require.NoError(t, err)
	b, err := Normalize(flatStyle)
	require.NoError(t, err)
	require.Equal(t, a, b)

	require.Equal(t, "m1", a.ID)
	require.Equal(t, "u1", a.SenderID)
	require.Equal(t, "Ada", a.SenderName)
	require.Equal(t, "hello", a.Body)
	require.Equal(t, StatusDelivered, a.Status)
	require.Equal(t, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), a.Timestamp)
}

func TestNormalize_Idempotent(t *testing.T) {
	raw := []byte(`{
		"_id": "m1",
		"conversationId": "c1",
		"sender": {"_id": "u1", "name": "Ada"},
		"type": "offer",
		"offer": {"offerId": "o1", "price": 5000, "quantity": 2, "status": "pending", "senderId": "u1"},
		"createdAt": "2026-08-01T12:00:00Z"
	}`)

	once, err := Normalize(raw)
	require.NoError(t, err)

	// Re-normalizing the canonical encoding yields a field-for-field
	// identical message: the same event may be normalized on optimistic
	// send and again on server echo.
	reencoded, err := json.Marshal(once)
	require.NoError(t, err)
	twice, err := Normalize(reencoded)
	require.NoError(t, err)
	require.Equal(t, once, twice)
}

func TestNormalize_OfferSnapshot(t *testing.T) {
	raw := []byte(`{
		"id": "m2",
		"conversationId": "c1",
		"senderId": "u1",
		"type": "offer",
		"offer": {"offerId": "o1", "price": 5000, "quantity": 2, "status": "pending", "senderId": "u1"},
		"timestamp": "2026-08-01T12:00:00Z"
	}`)
	m, err := Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, TypeOffer, m.Type)
	require.NotNil(t, m.Offer)
	require.Equal(t, "o1", m.Offer.ID)
	require.Equal(t, int64(5000), m.Offer.Price)
}

func TestNewOutgoing_IsCanonicalAndSending(t *testing.T) {
	m := NewOutgoing("c1", "u1", "hi there")
	require.NotEmpty(t, m.ID)
	require.Equal(t, StatusSending, m.Status)
	require.Equal(t, TypeText, m.Type)
	require.False(t, m.Timestamp.IsZero())

	reencoded, err := json.Marshal(m)
	require.NoError(t, err)
	back, err := Normalize(reencoded)
	require.NoError(t, err)
	require.Equal(t, m.ID, back.ID)
	require.Equal(t, StatusSending, back.Status)
}
