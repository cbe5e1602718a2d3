package convo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reverie/internal/transport"
)

func newActiveEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine()
	e.Activate(Conversation{ID: "conv-1", Mode: "story"})
	return e
}

func hydrateEmpty(t *testing.T, e *Engine) {
	t.Helper()
	require.True(t, e.BeginHydration("conv-1"))
	require.True(t, e.CompleteHydration("conv-1", nil))
}

func delta(id, text string) transport.Event {
	return transport.Event{ConversationID: "conv-1", MessageID: id, Kind: transport.KindContent, Text: text}
}

func done(id string) transport.Event {
	return transport.Event{ConversationID: "conv-1", MessageID: id, Kind: transport.KindDone}
}

func persisted(n int) []PersistedEvent {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	events := make([]PersistedEvent, 0, n)
	for i := 0; i < n; i++ {
		author := SenderUser
		if i%2 == 1 {
			author = SenderAssistant
		}
		events = append(events, PersistedEvent{
			ID:        string(rune('a' + i)),
			Author:    author,
			Content:   "turn",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return events
}

func TestEngine_HydrationThenLiveMessageOrders(t *testing.T) {
	e := newActiveEngine(t)
	require.True(t, e.BeginHydration("conv-1"))
	require.True(t, e.CompleteHydration("conv-1", persisted(3)))

	e.ApplyStream(delta("m4", "fresh"))
	e.ApplyStream(done("m4"))

	snap := e.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, []int{0, 1, 2, 3}, []int{snap[0].Order, snap[1].Order, snap[2].Order, snap[3].Order})
	assert.Equal(t, "m4", snap[3].ID)
}

func TestEngine_HydrationIsOneShot(t *testing.T) {
	e := newActiveEngine(t)
	require.True(t, e.BeginHydration("conv-1"))
	assert.False(t, e.BeginHydration("conv-1"), "second begin before completion must be a no-op")

	require.True(t, e.CompleteHydration("conv-1", persisted(2)))
	assert.False(t, e.BeginHydration("conv-1"))
	// A background refresh re-delivering the same batch must not double-apply.
	assert.False(t, e.CompleteHydration("conv-1", persisted(2)))
	assert.Len(t, e.Snapshot(), 2)
}

func TestEngine_StaleHydrationDiscarded(t *testing.T) {
	e := newActiveEngine(t)
	require.True(t, e.BeginHydration("conv-1"))

	// Switch away before the load lands.
	e.Activate(Conversation{ID: "conv-2", Mode: "story"})
	assert.False(t, e.CompleteHydration("conv-1", persisted(3)))
	assert.Empty(t, e.Snapshot())
	assert.False(t, e.Hydrated())
}

func TestEngine_HydrationRaceReconcilesByID(t *testing.T) {
	e := newActiveEngine(t)
	require.True(t, e.BeginHydration("conv-1"))

	// Live stream wins the race: one historical id still streaming, plus a
	// brand-new live-only message.
	e.ApplyStream(delta("b", "live copy"))
	e.ApplyStream(delta("z", "new reply"))

	events := persisted(2) // ids "a", "b"
	require.True(t, e.CompleteHydration("conv-1", events))

	snap := e.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "a", snap[0].ID)
	assert.Equal(t, "b", snap[1].ID)
	assert.Equal(t, "z", snap[2].ID)
	// The live record keeps its in-flight state; hydration did not clobber it.
	assert.Equal(t, "live copy", snap[1].Content)
	assert.False(t, snap[1].Complete)
	// Hydrated history precedes the stream-admitted tail.
	assert.Less(t, snap[1].Order, snap[2].Order)
}

func TestEngine_DeltasAccumulate(t *testing.T) {
	e := newActiveEngine(t)
	hydrateEmpty(t, e)

	e.ApplyStream(delta("m1", "Hel"))
	e.ApplyStream(delta("m1", "lo"))
	e.ApplyStream(done("m1"))

	snap := e.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "Hello", snap[0].Content)
	assert.True(t, snap[0].Complete)
	assert.False(t, snap[0].Failed)
}

func TestEngine_ThinkingAccumulatesSeparately(t *testing.T) {
	e := newActiveEngine(t)
	hydrateEmpty(t, e)

	e.ApplyStream(transport.Event{ConversationID: "conv-1", MessageID: "m1", Kind: transport.KindThinking, Text: "hmm "})
	e.ApplyStream(transport.Event{ConversationID: "conv-1", MessageID: "m1", Kind: transport.KindThinking, Text: "ok"})
	e.ApplyStream(delta("m1", "Answer"))

	m, ok := e.store.Get("m1")
	require.True(t, ok)
	assert.Equal(t, "hmm ok", m.Thinking)
	assert.Equal(t, "Answer", m.Content)
	assert.False(t, m.Complete)
}

func TestEngine_DuplicateTerminalIsIdempotent(t *testing.T) {
	e := newActiveEngine(t)
	hydrateEmpty(t, e)

	e.ApplyStream(delta("m1", "hi"))
	e.ApplyStream(done("m1"))
	e.ApplyStream(done("m1"))

	assert.Len(t, e.Snapshot(), 1)
}

func TestEngine_NoResurrectionAfterTerminal(t *testing.T) {
	e := newActiveEngine(t)
	hydrateEmpty(t, e)

	e.ApplyStream(delta("m1", "hi"))
	e.ApplyStream(done("m1"))
	assert.False(t, e.ApplyStream(delta("m1", " there")))
	assert.False(t, e.ApplyStream(transport.Event{ConversationID: "conv-1", MessageID: "m1", Kind: transport.KindThinking, Text: "late"}))

	m, _ := e.store.Get("m1")
	assert.Equal(t, "hi", m.Content)
	assert.Empty(t, m.Thinking)
}

func TestEngine_TerminalOutcomeIsImmutable(t *testing.T) {
	e := newActiveEngine(t)
	hydrateEmpty(t, e)

	// A late failure cannot overwrite a finished reply.
	e.ApplyStream(delta("m1", "final answer"))
	e.ApplyStream(done("m1"))
	assert.False(t, e.ApplyStream(transport.Event{ConversationID: "conv-1", MessageID: "m1", Kind: transport.KindFailed, Text: "stray failure"}))

	m, ok := e.store.Get("m1")
	require.True(t, ok)
	assert.Equal(t, "final answer", m.Content)
	assert.False(t, m.Failed)
	assert.Empty(t, e.LastError())

	// A late success cannot turn a failed bubble back into a reply.
	e.ApplyStream(transport.Event{ConversationID: "conv-1", MessageID: "m2", Kind: transport.KindFailed, Text: "boom"})
	assert.False(t, e.ApplyStream(done("m2")))

	m, ok = e.store.Get("m2")
	require.True(t, ok)
	assert.True(t, m.Failed)
	assert.Equal(t, "boom", m.Content)
	assert.Equal(t, "boom", e.LastError())
}

func TestEngine_FailureReplacesContentWithSummary(t *testing.T) {
	e := newActiveEngine(t)
	hydrateEmpty(t, e)

	e.ApplyStream(delta("m2", "Thinking…"))
	e.ApplyStream(transport.Event{ConversationID: "conv-1", MessageID: "m2", Kind: transport.KindFailed, Text: "generation failed"})

	snap := e.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].Failed)
	assert.True(t, snap[0].Complete)
	assert.Equal(t, "generation failed", snap[0].Content)
	assert.Equal(t, "generation failed", e.LastError())
}

func TestEngine_TerminalSuccessClearsError(t *testing.T) {
	e := newActiveEngine(t)
	hydrateEmpty(t, e)

	e.ApplyStream(transport.Event{ConversationID: "conv-1", MessageID: "m1", Kind: transport.KindFailed, Text: "boom"})
	require.NotEmpty(t, e.LastError())

	e.ApplyStream(delta("m2", "recovered"))
	e.ApplyStream(done("m2"))
	assert.Empty(t, e.LastError())
}

func TestEngine_StaleStreamEventsDiscarded(t *testing.T) {
	e := newActiveEngine(t)
	hydrateEmpty(t, e)

	stale := transport.Event{ConversationID: "conv-0", MessageID: "m1", Kind: transport.KindContent, Text: "ghost"}
	assert.False(t, e.ApplyStream(stale))
	assert.Empty(t, e.Snapshot())
}

func TestEngine_SendUserMessage(t *testing.T) {
	e := newActiveEngine(t)
	hydrateEmpty(t, e)

	msg, turns, err := e.SendUserMessage("  hello there  ")
	require.NoError(t, err)
	assert.Equal(t, SenderUser, msg.Sender)
	assert.Equal(t, "hello there", msg.Content)
	assert.True(t, msg.Complete)
	require.Len(t, turns, 1)
	assert.Equal(t, "user", turns[0].Role)

	_, _, err = e.SendUserMessage("   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestEngine_SendRejectedAtLimitWithoutTransport(t *testing.T) {
	e := newActiveEngine(t)
	hydrateEmpty(t, e)
	e.ApplyTurnStats("conv-1", TurnStats{TurnCount: 10, TurnLimit: 10})

	require.True(t, e.IsAtTurnLimit())
	_, _, err := e.SendUserMessage("one more")
	assert.ErrorIs(t, err, ErrTurnLimit)
	assert.Empty(t, e.Snapshot(), "rejected send must not admit a message")
}

func TestEngine_RetrySymmetry(t *testing.T) {
	e := newActiveEngine(t)
	hydrateEmpty(t, e)

	_, _, err := e.SendUserMessage("tell me a story")
	require.NoError(t, err)
	e.ApplyStream(transport.Event{ConversationID: "conv-1", MessageID: "m1", Kind: transport.KindFailed, Text: "timeout"})
	require.Len(t, e.Snapshot(), 2)

	turns, err := e.PrepareRetry()
	require.NoError(t, err)
	require.Len(t, e.Snapshot(), 1, "retry removes exactly the failed message")
	require.NotEmpty(t, turns)
	assert.Equal(t, "tell me a story", turns[len(turns)-1].Text)
	assert.True(t, e.RecoveryBusy())

	// Renewed attempt succeeds: exactly one new message in its place.
	e.ApplyStream(delta("m1b", "Once upon a time"))
	e.ApplyStream(done("m1b"))
	assert.False(t, e.RecoveryBusy())

	snap := e.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "m1b", snap[1].ID)
	assert.False(t, snap[1].Failed)
}

func TestEngine_RetryNotReentrant(t *testing.T) {
	e := newActiveEngine(t)
	hydrateEmpty(t, e)

	e.ApplyStream(transport.Event{ConversationID: "conv-1", MessageID: "m1", Kind: transport.KindFailed})
	_, err := e.PrepareRetry()
	require.NoError(t, err)

	_, err = e.PrepareRetry()
	assert.ErrorIs(t, err, ErrRecoveryBusy)
	_, err = e.PrepareResume()
	assert.ErrorIs(t, err, ErrRecoveryBusy)
}

func TestEngine_RetryWithoutFailure(t *testing.T) {
	e := newActiveEngine(t)
	hydrateEmpty(t, e)
	_, err := e.PrepareRetry()
	assert.ErrorIs(t, err, ErrNoFailedMessage)
}

func TestEngine_TransportRejectedSynthesizesFailure(t *testing.T) {
	e := newActiveEngine(t)
	hydrateEmpty(t, e)

	e.ApplyStream(transport.Event{ConversationID: "conv-1", MessageID: "m1", Kind: transport.KindFailed, Text: "first failure"})
	_, err := e.PrepareRetry()
	require.NoError(t, err)

	// The retry call itself rejects: a fresh failed message appears, never
	// a mutation of the removed one.
	require.True(t, e.TransportRejected("conv-1", "connection refused"))
	snap := e.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].Failed)
	assert.NotEqual(t, "m1", snap[0].ID)
	assert.Equal(t, "connection refused", snap[0].Content)
	assert.False(t, e.RecoveryBusy())

	assert.False(t, e.TransportRejected("conv-0", "stale"), "stale rejection must be discarded")
}

func TestEngine_LimitHintBlocksUntilConfirmedClears(t *testing.T) {
	e := newActiveEngine(t)
	hydrateEmpty(t, e)

	e.ApplyStream(transport.Event{ConversationID: "conv-1", Kind: transport.KindLimit})
	assert.True(t, e.IsAtTurnLimit(), "inline hint blocks before confirmation")

	// Authoritative refresh supersedes the hint either way.
	e.ApplyTurnStats("conv-1", TurnStats{TurnCount: 3, TurnLimit: 10})
	assert.False(t, e.IsAtTurnLimit())

	e.ApplyTurnStats("conv-1", TurnStats{TurnCount: 10, TurnLimit: 10})
	assert.True(t, e.IsAtTurnLimit())

	assert.False(t, e.ApplyTurnStats("conv-0", TurnStats{}), "stale stats discarded")
}

func TestEngine_LimitEventWithBundledContent(t *testing.T) {
	e := newActiveEngine(t)
	hydrateEmpty(t, e)

	e.ApplyStream(delta("m1", "Almost"))
	e.ApplyStream(transport.Event{
		ConversationID: "conv-1",
		MessageID:      "m1",
		Kind:           transport.KindLimit,
		Text:           " out of turns.",
	})

	assert.True(t, e.IsAtTurnLimit())
	msg, ok := e.Message("m1")
	require.True(t, ok)
	assert.Equal(t, "Almost out of turns.", msg.Content)
}

func TestEngine_SwitchResetsEverything(t *testing.T) {
	e := newActiveEngine(t)
	hydrateEmpty(t, e)
	_, _, err := e.SendUserMessage("hello")
	require.NoError(t, err)
	e.ApplyTurnStats("conv-1", TurnStats{LimitReached: true})

	e.Activate(Conversation{ID: "conv-2", Mode: "story"})
	assert.Empty(t, e.Snapshot())
	assert.False(t, e.IsAtTurnLimit())
	assert.False(t, e.Hydrated())

	// Sequencer restarted: the first admission in the new conversation is 0.
	require.True(t, e.BeginHydration("conv-2"))
	require.True(t, e.CompleteHydration("conv-2", persisted(1)))
	assert.Equal(t, 0, e.Snapshot()[0].Order)
}
