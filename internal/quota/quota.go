// Package quota computes the server-confirmed TurnStats the limit guard
// trusts over local hints. Counts come from the durable event log, never from
// the in-memory timeline, so local optimism cannot inflate or shrink them.
package quota

import (
	"reverie/internal/convo"
	"reverie/internal/history"
	"reverie/internal/logging"
)

// Provider answers authoritative TurnStats queries for conversations.
type Provider struct {
	store     *history.Store
	turnLimit int
}

// NewProvider wraps the event log with the configured per-conversation turn
// limit (-1 meaning unlimited).
func NewProvider(store *history.Store, turnLimit int) *Provider {
	return &Provider{store: store, turnLimit: turnLimit}
}

// TurnStats returns the confirmed counters for a conversation.
func (p *Provider) TurnStats(conversationID string) (convo.TurnStats, error) {
	count, err := p.store.CountUserTurns(conversationID)
	if err != nil {
		logging.Get(logging.CategoryQuota).Error("turn count for %s failed: %v", conversationID, err)
		return convo.TurnStats{}, err
	}

	stats := convo.TurnStats{
		TurnCount: count,
		TurnLimit: p.turnLimit,
	}
	stats.LimitReached = stats.AtLimit()
	logging.Get(logging.CategoryQuota).Debug("turn stats: conv=%s count=%d limit=%d reached=%v",
		conversationID, stats.TurnCount, stats.TurnLimit, stats.LimitReached)
	return stats, nil
}
