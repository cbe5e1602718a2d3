package convo

import (
	"strings"

	"github.com/google/uuid"

	"reverie/internal/transport"
)

// Engine owns the message store for exactly one active conversation and is
// the only writer to it. Async collaborators (hydration fetch, stream pump,
// retry calls) report back through the Apply/Complete methods, each tagged
// with a conversation id; anything tagged with a stale id is discarded.
type Engine struct {
	conv Conversation

	seq    Sequencer
	store  *Store
	limits LimitGuard
	follow *Follow

	hydrating   bool
	hydrated    bool
	recoveryOut bool
	lastError   string
}

// NewEngine returns an engine with no active conversation. Call Activate
// before anything else.
func NewEngine() *Engine {
	e := &Engine{follow: NewFollow()}
	e.store = NewStore(&e.seq)
	return e
}

// Activate switches the active conversation, discarding all in-memory state
// of the previous one. In-flight work for the previous conversation becomes
// stale by id and will be dropped when it lands.
func (e *Engine) Activate(conv Conversation) {
	e.conv = conv
	e.seq.Reset()
	e.store.Reset()
	e.limits.Reset()
	e.follow = NewFollow()
	e.hydrating = false
	e.hydrated = false
	e.recoveryOut = false
	e.lastError = ""
}

// Conversation returns the active conversation.
func (e *Engine) Conversation() Conversation { return e.conv }

// Hydrated reports whether the persisted history has been consumed.
func (e *Engine) Hydrated() bool { return e.hydrated }

// Snapshot returns the renderable message sequence.
func (e *Engine) Snapshot() []Message { return e.store.Snapshot() }

// Message returns a copy of one message by id.
func (e *Engine) Message(id string) (Message, bool) { return e.store.Get(id) }

// LastError returns the current user-facing error summary, empty once a
// terminal success clears it.
func (e *Engine) LastError() string { return e.lastError }

// RecoveryBusy reports whether a retry or resume call is still outstanding;
// the retry affordances render busy and stay non-reentrant while true.
func (e *Engine) RecoveryBusy() bool { return e.recoveryOut }

// IsAtTurnLimit reports whether sends are blocked by the quota guard.
func (e *Engine) IsAtTurnLimit() bool { return e.limits.AtLimit() }

// TurnStats returns the last confirmed quota counters.
func (e *Engine) TurnStats() (TurnStats, bool) { return e.limits.Stats() }

// ApplyTurnStats installs an authoritative quota fetch. Stale conversation
// ids are discarded.
func (e *Engine) ApplyTurnStats(conversationID string, stats TurnStats) bool {
	if conversationID != e.conv.ID {
		return false
	}
	e.limits.ApplyConfirmed(stats)
	return true
}

// ObserveScroll feeds viewport metrics to the scroll-follow controller.
func (e *Engine) ObserveScroll(offset, height, total int) {
	e.follow.Observe(offset, height, total)
}

// ShouldForceScrollNow is the one-shot scroll intent for the viewport.
func (e *Engine) ShouldForceScrollNow() bool { return e.follow.ShouldForceScrollNow() }

// SendUserMessage admits the user's message and returns it together with the
// prior turns to hand to the transport. Rejected without touching the
// transport while the limit guard is tripped.
func (e *Engine) SendUserMessage(text string) (Message, []transport.Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, nil, ErrEmptyMessage
	}
	if e.limits.AtLimit() {
		return Message{}, nil, ErrTurnLimit
	}

	msg := e.store.Upsert(uuid.NewString(), func(m *Message) {
		m.Sender = SenderUser
		m.Content = text
		m.Complete = true
	})
	e.follow.NoteMutation(true)
	return msg, e.priorTurns(), nil
}

// PrepareRetry removes the failed message and returns the prior turns, ending
// with the last user input, for a fresh transport attempt.
func (e *Engine) PrepareRetry() ([]transport.Turn, error) {
	if err := e.takeFailed(); err != nil {
		return nil, err
	}
	return e.priorTurns(), nil
}

// PrepareResume removes the failed message ahead of a resumption request,
// which continues the interrupted generation with no new user input.
func (e *Engine) PrepareResume() ([]transport.Turn, error) {
	if err := e.takeFailed(); err != nil {
		return nil, err
	}
	return e.priorTurns(), nil
}

func (e *Engine) takeFailed() error {
	if e.recoveryOut {
		return ErrRecoveryBusy
	}
	failed, ok := e.latestFailed()
	if !ok {
		return ErrNoFailedMessage
	}
	e.store.Remove(failed.ID)
	e.recoveryOut = true
	return nil
}

// TransportRejected records a subscribe/retry/resume call that itself threw.
// A failure message is synthesized locally, under a fresh id, so the user is
// never left without feedback.
func (e *Engine) TransportRejected(conversationID, summary string) bool {
	if conversationID != e.conv.ID {
		return false
	}
	if summary == "" {
		summary = "The connection to the character was lost. Try again."
	}
	e.store.Upsert(uuid.NewString(), func(m *Message) {
		m.Sender = SenderAssistant
		m.Content = summary
		m.Complete = true
		m.Failed = true
	})
	e.lastError = summary
	e.recoveryOut = false
	e.follow.NoteMutation(false)
	return true
}

func (e *Engine) latestFailed() (Message, bool) {
	var failed Message
	found := false
	for _, m := range e.store.Snapshot() {
		if m.Failed {
			failed = m
			found = true
		}
	}
	return failed, found
}

// priorTurns flattens the settled conversation for the transport: complete,
// non-failed messages in render order.
func (e *Engine) priorTurns() []transport.Turn {
	var turns []transport.Turn
	for _, m := range e.store.Snapshot() {
		if !m.Complete || m.Failed {
			continue
		}
		turns = append(turns, transport.Turn{Role: string(m.Sender), Text: m.Content})
	}
	return turns
}
