package convo

// LimitGuard reconciles locally observed turn usage against server-confirmed
// counts. It is two-tier state: an inline hint riding on the stream blocks
// sends immediately, and the next authoritative refresh supersedes it either
// way. Trading a small risk of an overly strict block for never exceeding the
// quota.
type LimitGuard struct {
	confirmed    TurnStats
	hasConfirmed bool
	hint         bool
}

// ApplyHint records an unconfirmed limit notification observed on the stream.
func (g *LimitGuard) ApplyHint() { g.hint = true }

// ApplyConfirmed installs an authoritative TurnStats fetch. Confirmed always
// wins: a refresh reporting the limit not reached clears a standing hint.
func (g *LimitGuard) ApplyConfirmed(stats TurnStats) {
	g.confirmed = stats
	g.hasConfirmed = true
	g.hint = false
}

// AtLimit reports whether new sends must be rejected client-side.
func (g *LimitGuard) AtLimit() bool {
	if g.hint {
		return true
	}
	return g.hasConfirmed && g.confirmed.AtLimit()
}

// Stats returns the last confirmed counters, if any arrived yet.
func (g *LimitGuard) Stats() (TurnStats, bool) { return g.confirmed, g.hasConfirmed }

// Reset clears all quota state. Called on conversation switch; the new
// conversation's activation refresh repopulates it.
func (g *LimitGuard) Reset() { *g = LimitGuard{} }
