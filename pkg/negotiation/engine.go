package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"olament/pkg/api"
)

var (
	// ErrActionInFlight means another mutation for the same offer has not
	// returned yet. The caller waits for it instead of submitting again.
	ErrActionInFlight = errors.New("an action for this offer is already in flight")

	// ErrOfferNotPending means the cached status no longer allows actions.
	ErrOfferNotPending = errors.New("offer is no longer pending")

	// ErrActionNotAllowed means the viewer's role forbids the action.
	ErrActionNotAllowed = errors.New("action not permitted for this participant")

	ErrInvalidPrice    = errors.New("counter price must be greater than zero")
	ErrInvalidQuantity = errors.New("counter quantity must be at least one")
	ErrUnknownOffer    = errors.New("offer not known to this session")
)

// Engine issues offer mutations and reconciles the results. It holds the
// session's local offer cache; the server remains the source of truth and
// every update flowing back (REST ack or realtime event) passes through
// Apply so the two paths converge on the same state.
type Engine struct {
	api    *api.Client
	selfID string
	log    *zap.SugaredLogger

	mu       sync.Mutex
	offers   map[string]Offer
	inflight map[string]bool
}

// NewEngine builds an Engine acting as the participant selfID.
func NewEngine(client *api.Client, selfID string, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{
		api:      client,
		selfID:   selfID,
		log:      log,
		offers:   make(map[string]Offer),
		inflight: make(map[string]bool),
	}
}

// Track seeds or refreshes the local cache from any source (chat history,
// realtime event, REST ack) and returns the reconciled offer.
func (e *Engine) Track(o Offer) Offer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyLocked(o)
}

// Offer returns the cached offer, if known.
func (e *Engine) Offer(id string) (Offer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.offers[id]
	return o, ok
}

// ActionInFlight reports whether a mutation for id is outstanding. The UI
// disables the offer card's buttons while this is true.
func (e *Engine) ActionInFlight(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight[id]
}

// Accept accepts a pending offer addressed to this participant.
func (e *Engine) Accept(ctx context.Context, offerID string) (Offer, error) {
	return e.mutate(ctx, offerID, ActionAccept)
}

// Decline declines a pending offer addressed to this participant.
func (e *Engine) Decline(ctx context.Context, offerID string) (Offer, error) {
	return e.mutate(ctx, offerID, ActionDecline)
}

// Withdraw withdraws a pending offer this participant initiated.
func (e *Engine) Withdraw(ctx context.Context, offerID string) (Offer, error) {
	return e.mutate(ctx, offerID, ActionWithdraw)
}

// mutate runs one of accept/decline/withdraw with the per-offer guard held.
// Failures release the guard and leave the cached status untouched; there is
// no automatic retry because the lost response may have landed server-side,
// and re-submitting an accept could accept twice. The user re-clicks.
func (e *Engine) mutate(ctx context.Context, offerID string, action Action) (Offer, error) {
	cur, err := e.begin(offerID, action)
	if err != nil {
		return cur, err
	}
	defer e.end(offerID)

	var updated Offer
	path := fmt.Sprintf("/chats/offers/%s/%s", offerID, action)
	if err := e.api.Post(ctx, path, nil, &updated); err != nil {
		e.log.Warnw("offer action failed", "offer", offerID, "action", action, "error", err)
		return cur, err
	}
	return e.Track(updated), nil
}

// begin validates the action against the cached offer and takes the
// per-offer in-flight flag. The check is advisory: a server rejection is
// authoritative even when the cache disagrees.
func (e *Engine) begin(offerID string, action Action) (Offer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.offers[offerID]
	if !ok {
		return Offer{}, ErrUnknownOffer
	}
	if e.inflight[offerID] {
		return cur, ErrActionInFlight
	}
	if cur.Status != StatusPending {
		return cur, ErrOfferNotPending
	}
	if !actionPermitted(cur, e.selfID, action) {
		return cur, ErrActionNotAllowed
	}
	e.inflight[offerID] = true
	return cur, nil
}

func (e *Engine) end(offerID string) {
	e.mu.Lock()
	delete(e.inflight, offerID)
	e.mu.Unlock()
}

func actionPermitted(o Offer, userID string, action Action) bool {
	for _, a := range PermittedActions(o, userID) {
		if a == action {
			return true
		}
	}
	return false
}

// Propose opens a negotiation with a fresh root offer on the conversation.
// Validation here is the same cheap sanity check the counter form gets; the
// server decides whether the offer stands.
func (e *Engine) Propose(ctx context.Context, conversationID string, price int64, quantity int) (Offer, error) {
	if price <= 0 {
		return Offer{}, ErrInvalidPrice
	}
	if quantity < 1 {
		return Offer{}, ErrInvalidQuantity
	}

	body := struct {
		ConversationID string `json:"conversationId"`
		Price          int64  `json:"price"`
		Quantity       int    `json:"quantity"`
	}{ConversationID: conversationID, Price: price, Quantity: quantity}

	var o Offer
	if err := e.api.Post(ctx, "/chats/offers", body, &o); err != nil {
		e.log.Warnw("propose offer failed", "conversation", conversationID, "error", err)
		return Offer{}, err
	}
	return e.Track(o), nil
}

// CounterInput is the counter-offer form. Price is validated locally but
// never compared to the parent's price; business rules live server-side.
type CounterInput struct {
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
	Message  string `json:"message,omitempty"`
}

// Counter posts a new offer that references parentID. The parent transitions
// to countered server-side; the ack and the realtime event both flow back
// through Track.
func (e *Engine) Counter(ctx context.Context, parentID string, in CounterInput) (Offer, error) {
	if in.Price <= 0 {
		return Offer{}, ErrInvalidPrice
	}

	e.mu.Lock()
	parent, ok := e.offers[parentID]
	if !ok {
		e.mu.Unlock()
		return Offer{}, ErrUnknownOffer
	}
	if e.inflight[parentID] {
		e.mu.Unlock()
		return parent, ErrActionInFlight
	}
	if parent.Status != StatusPending {
		e.mu.Unlock()
		return parent, ErrOfferNotPending
	}
	if !actionPermitted(parent, e.selfID, ActionCounter) {
		e.mu.Unlock()
		return parent, ErrActionNotAllowed
	}
	if in.Quantity == 0 {
		in.Quantity = parent.Quantity
	}
	e.inflight[parentID] = true
	e.mu.Unlock()
	defer e.end(parentID)

	if in.Quantity < 1 {
		return parent, ErrInvalidQuantity
	}

	body := struct {
		ParentOffer string `json:"parentOffer"`
		CounterInput
	}{ParentOffer: parentID, CounterInput: in}

	var child Offer
	if err := e.api.Post(ctx, "/chats/offers", body, &child); err != nil {
		e.log.Warnw("counter offer failed", "parent", parentID, "error", err)
		return parent, err
	}
	child = e.Track(child)

	// The server marks the parent countered; reflect that without waiting
	// for the echo. A later event with a fresher timestamp still wins.
	parent.Status = StatusCountered
	e.Track(parent)
	return child, nil
}
