package convo

import "reverie/internal/transport"

// ApplyStream merges one live transport event into the store. Events tagged
// with a stale conversation id are discarded. Returns true when the event
// changed engine state.
func (e *Engine) ApplyStream(ev transport.Event) bool {
	if ev.ConversationID != e.conv.ID {
		return false
	}

	switch ev.Kind {
	case transport.KindContent:
		if e.terminalFor(ev.MessageID) {
			// No resurrection: a finished message absorbs no late deltas.
			return false
		}
		e.store.Upsert(ev.MessageID, func(m *Message) {
			m.Sender = SenderAssistant
			m.Content += ev.Text
		})

	case transport.KindThinking:
		if e.terminalFor(ev.MessageID) {
			return false
		}
		e.store.Upsert(ev.MessageID, func(m *Message) {
			m.Sender = SenderAssistant
			m.Thinking += ev.Text
		})

	case transport.KindDone:
		if e.terminalFor(ev.MessageID) {
			// Terminal state is immutable; a late or duplicate terminal
			// event cannot overwrite the settled outcome.
			return false
		}
		e.store.Upsert(ev.MessageID, func(m *Message) {
			m.Sender = SenderAssistant
			m.Complete = true
			m.Failed = false
		})
		e.lastError = ""
		e.recoveryOut = false

	case transport.KindFailed:
		if e.terminalFor(ev.MessageID) {
			return false
		}
		summary := ev.Text
		if summary == "" {
			summary = "The character could not finish this reply."
		}
		e.store.Upsert(ev.MessageID, func(m *Message) {
			m.Sender = SenderAssistant
			m.Content = summary
			m.Complete = true
			m.Failed = true
		})
		e.lastError = summary
		e.recoveryOut = false

	case transport.KindLimit:
		// Flags the guard ahead of the next authoritative refresh. Text
		// bundled with the notification still lands as normal content; a
		// bare notification changes no message, so the follow controller
		// is not notified.
		e.limits.ApplyHint()
		if ev.Text == "" || e.terminalFor(ev.MessageID) {
			return true
		}
		e.store.Upsert(ev.MessageID, func(m *Message) {
			m.Sender = SenderAssistant
			m.Content += ev.Text
		})

	default:
		return false
	}

	e.follow.NoteMutation(false)
	return true
}

func (e *Engine) terminalFor(id string) bool {
	m, ok := e.store.Get(id)
	return ok && m.Terminal()
}
