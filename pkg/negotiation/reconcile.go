package negotiation

// applyLocked merges next into the cache under e.mu and returns the winner.
func (e *Engine) applyLocked(next Offer) Offer {
	cur, ok := e.offers[next.ID]
	if !ok {
		e.offers[next.ID] = next
		return next
	}
	merged := reconcile(cur, next)
	e.offers[next.ID] = merged
	return merged
}

// reconcile resolves a status disagreement between two sources for the same
// offer (typically a REST ack vs. a realtime event). Recency is judged by
// the server's own timestamp, not by arrival order; when no timestamp
// separates them, a terminal status beats a non-terminal one. A terminal
// local status is never regressed to pending, regardless of timestamps: a
// stale pending event arriving after an accept must be a no-op.
func reconcile(cur, next Offer) Offer {
	if cur.Status.Terminal() && next.Status == StatusPending {
		return cur
	}
	if !cur.UpdatedAt.IsZero() && !next.UpdatedAt.IsZero() {
		if next.UpdatedAt.After(cur.UpdatedAt) {
			return next
		}
		if cur.UpdatedAt.After(next.UpdatedAt) {
			return cur
		}
	}
	if cur.Status.Terminal() && !next.Status.Terminal() {
		return cur
	}
	return next
}
