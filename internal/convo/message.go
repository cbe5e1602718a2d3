// Package convo implements the conversation reconciliation engine: it merges
// a hydrated persisted history with a live token stream into a single ordered,
// deduplicated timeline, tracks per-message completion and failure, drives
// retry/resume, and gates sends against the server-confirmed turn quota.
//
// All mutation happens on the UI event loop; the engine holds no locks. Async
// work (hydration fetches, stream pumps, retry calls) runs elsewhere and
// delivers results tagged with the conversation id they belong to, which the
// engine discards when stale.
package convo

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is the unit of conversation. Identity is ID; render position is
// Order, assigned once at admission and never reassigned.
type Message struct {
	ID        string
	Sender    Sender
	Content   string
	Thinking  string
	Timestamp time.Time
	Order     int
	Complete  bool
	Failed    bool
}

// Terminal reports whether the message will receive no further mutation.
func (m Message) Terminal() bool { return m.Complete }

// Conversation identifies the active session and its mode (conversation type,
// derived from the selected character).
type Conversation struct {
	ID   string
	Mode string
}

// PersistedEvent is the minimal shape of one entry in the durable event log.
// Each event converts 1:1 into a terminal, complete Message at hydration time.
type PersistedEvent struct {
	ID        string
	Author    Sender
	Content   string
	Thinking  string
	CreatedAt time.Time
}

// TurnStats are server-confirmed quota counters. TurnLimit of -1 means
// unlimited. The backend owns these; the engine treats them as authoritative
// over any locally observed hint.
type TurnStats struct {
	TurnCount    int
	TurnLimit    int
	LimitReached bool
}

// AtLimit applies the confirmed-side limit rule.
func (s TurnStats) AtLimit() bool {
	return s.LimitReached || (s.TurnLimit != -1 && s.TurnCount >= s.TurnLimit)
}
