package convo

// BeginHydration claims the one hydration slot for the given conversation.
// Returns false when the id is stale, a load is already in flight, or the
// history was already consumed; the caller must then not fetch.
func (e *Engine) BeginHydration(conversationID string) bool {
	if conversationID != e.conv.ID || e.hydrating || e.hydrated {
		return false
	}
	e.hydrating = true
	return true
}

// CompleteHydration seeds the store from the persisted history. A result for
// a stale conversation id is discarded, and a re-delivered batch for an
// already-consumed hydration is a no-op, so a background refresh of the data
// source cannot double-apply history.
//
// When the live stream won the race for a just-created conversation, the
// persisted sequence is reconciled by id against the already-admitted
// messages: a live record with a persisted id keeps its in-flight state but
// takes its persisted position, and live-only records are re-admitted after
// the hydrated tail, preserving their relative order. Hydration therefore
// always precedes stream-admitted messages in the final ordering.
func (e *Engine) CompleteHydration(conversationID string, events []PersistedEvent) bool {
	if conversationID != e.conv.ID {
		return false
	}
	e.hydrating = false
	if e.hydrated {
		return false
	}
	e.hydrated = true

	live := e.store.Snapshot()
	liveByID := make(map[string]Message, len(live))
	for _, m := range live {
		liveByID[m.ID] = m
	}

	e.store.Reset()
	e.seq.Reset()

	for _, ev := range events {
		if m, ok := liveByID[ev.ID]; ok {
			e.readmit(m)
			continue
		}
		ev := ev
		e.store.Upsert(ev.ID, func(m *Message) {
			m.Sender = ev.Author
			m.Content = ev.Content
			m.Thinking = ev.Thinking
			m.Timestamp = ev.CreatedAt
			m.Complete = true
		})
	}

	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		seen[ev.ID] = true
	}
	for _, m := range live {
		if !seen[m.ID] {
			e.readmit(m)
		}
	}

	// The switch target is fully rendered now; bring its tail into view.
	e.follow.NoteMutation(true)
	return true
}

// FailHydration abandons an in-flight load so a later activation can try
// again. The consumed flag stays clear.
func (e *Engine) FailHydration(conversationID string, summary string) bool {
	if conversationID != e.conv.ID {
		return false
	}
	e.hydrating = false
	if summary != "" {
		e.lastError = summary
	}
	return true
}

func (e *Engine) readmit(m Message) {
	e.store.Upsert(m.ID, func(dst *Message) {
		*dst = m
		dst.Timestamp = m.Timestamp
	})
}
