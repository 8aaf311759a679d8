package negotiation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReconcile_LastWriterWinsByServerTimestamp(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	eng := NewEngine(nil, sellerID, nil)

	// REST ack with the fresher timestamp lands first.
	ack := pendingOffer()
	ack.Status = StatusAccepted
	ack.UpdatedAt = t0.Add(2 * time.Second)
	eng.Track(ack)

	// A stale socket event arrives second; its older timestamp loses even
	// though it arrived later.
	stale := pendingOffer()
	stale.UpdatedAt = t0
	got := eng.Track(stale)
	require.Equal(t, StatusAccepted, got.Status)

	// The fresher of two events wins regardless of order.
	fresher := pendingOffer()
	fresher.Status = StatusCountered
	fresher.UpdatedAt = t0.Add(5 * time.Second)
	got = eng.Track(fresher)
	require.Equal(t, StatusCountered, got.Status)
}

func TestReconcile_TerminalBeatsNonTerminalWithoutTimestamps(t *testing.T) {
	eng := NewEngine(nil, sellerID, nil)

	declined := pendingOffer()
	declined.Status = StatusDeclined
	eng.Track(declined)

	got := eng.Track(pendingOffer())
	require.Equal(t, StatusDeclined, got.Status)
}

func TestReconcile_TerminalNeverRegressesToPending(t *testing.T) {
	for _, terminal := range []Status{StatusAccepted, StatusDeclined, StatusExpired, StatusWithdrawn} {
		t.Run(string(terminal), func(t *testing.T) {
			eng := NewEngine(nil, sellerID, nil)

			o := pendingOffer()
			o.Status = terminal
			o.UpdatedAt = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
			eng.Track(o)

			// Even a pending event carrying a later timestamp is a stale
			// view of a state the server has already left.
			late := pendingOffer()
			late.UpdatedAt = o.UpdatedAt.Add(time.Minute)
			got := eng.Track(late)
			require.Equal(t, terminal, got.Status)
		})
	}
}

func TestReconcile_ConvergenceIsIdempotent(t *testing.T) {
	eng := NewEngine(nil, sellerID, nil)
	eng.Track(pendingOffer())

	accepted := pendingOffer()
	accepted.Status = StatusAccepted
	accepted.UpdatedAt = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	first := eng.Track(accepted)
	second := eng.Track(accepted) // echo of the same transition
	require.Equal(t, first, second)
}

func TestNormalizeOffer_WireVariants(t *testing.T) {
	minor := []byte(`{"offerId":"o1","price":5000,"quantity":2,"status":"pending","senderId":"user-buyer"}`)
	o1, err := NormalizeOffer(minor)
	require.NoError(t, err)
	require.Equal(t, int64(5000), o1.Price)

	decimal := []byte(`{"_id":"o1","price":50.00,"quantity":2,"status":"pending","sender":{"_id":"user-buyer","name":"Ada"}}`)
	o2, err := NormalizeOffer(decimal)
	require.NoError(t, err)
	require.Equal(t, "o1", o2.ID)
	require.Equal(t, int64(5000), o2.Price)
	require.Equal(t, "user-buyer", o2.SenderID)

	// Quantity defaults to 1 when absent.
	bare := []byte(`{"id":"o3","price":100,"status":"pending","senderId":"user-buyer"}`)
	o3, err := NormalizeOffer(bare)
	require.NoError(t, err)
	require.Equal(t, 1, o3.Quantity)
}
