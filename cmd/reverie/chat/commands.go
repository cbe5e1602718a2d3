package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"reverie/internal/character"
	"reverie/internal/convo"
	"reverie/internal/history"
	"reverie/internal/logging"
	"reverie/internal/quota"
	"reverie/internal/transport"
)

// streamKind selects which transport call a stream open uses.
type streamKind int

const (
	streamSubscribe streamKind = iota
	streamRetry
	streamResume
)

// hydrateCmd loads the persisted history for a conversation. The engine's
// BeginHydration guard has already been claimed by the caller; a brand-new
// conversation gets the character's greeting appended first so hydration
// always yields at least one message.
func hydrateCmd(store *history.Store, engine *convo.Engine, conversationID string, char character.Character) tea.Cmd {
	if !engine.BeginHydration(conversationID) {
		return nil
	}
	return func() tea.Msg {
		events, err := store.LoadHistory(conversationID)
		if err != nil {
			return hydratedMsg{conversationID: conversationID, err: err}
		}
		if len(events) == 0 && char.Greeting != "" {
			greeting := history.Event{
				ID:             uuid.NewString(),
				ConversationID: conversationID,
				Author:         string(convo.SenderAssistant),
				Content:        char.Greeting,
			}
			if err := store.AppendEvent(greeting); err != nil {
				logging.Get(logging.CategoryStore).Warn("failed to persist greeting: %v", err)
			}
			greeting.CreatedAt = time.Now()
			events = append(events, greeting)
		}
		return hydratedMsg{conversationID: conversationID, events: events}
	}
}

// statsCmd fetches authoritative turn stats.
func statsCmd(provider *quota.Provider, conversationID string) tea.Cmd {
	return func() tea.Msg {
		stats, err := provider.TurnStats(conversationID)
		return statsMsg{conversationID: conversationID, stats: stats, err: err}
	}
}

// openStreamCmd invokes the transport and hands the event channel back to the
// update loop. A rejected call becomes a transportRejectedMsg; the engine
// synthesizes the failure bubble from it.
func openStreamCmd(streamer transport.Streamer, kind streamKind, conversationID, systemPrompt string, prior []transport.Turn) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithCancel(context.Background())
		var (
			ch  <-chan transport.Event
			err error
		)
		switch kind {
		case streamRetry:
			ch, err = streamer.Retry(ctx, conversationID, systemPrompt, prior)
		case streamResume:
			ch, err = streamer.Resume(ctx, conversationID, systemPrompt, prior)
		default:
			ch, err = streamer.Subscribe(ctx, conversationID, systemPrompt, prior)
		}
		if err != nil {
			cancel()
			logging.Get(logging.CategoryStream).Error("transport call rejected: conv=%s: %v", conversationID, err)
			return transportRejectedMsg{conversationID: conversationID, err: err}
		}
		return streamOpenedMsg{conversationID: conversationID, ch: ch, cancel: cancel}
	}
}

// waitEventCmd blocks for the next stream event. Re-armed by the update loop
// after each delivery until the channel closes.
func waitEventCmd(ch <-chan transport.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamEventMsg{closed: true}
		}
		return streamEventMsg{ev: ev}
	}
}

// appendEventCmd persists one settled message to the event log.
func appendEventCmd(store *history.Store, ev history.Event) tea.Cmd {
	return func() tea.Msg {
		if err := store.AppendEvent(ev); err != nil {
			return persistFailedMsg{err: err}
		}
		_ = store.TouchConversation(ev.ConversationID)
		return nil
	}
}

// sessionsCmd loads the conversation index for the picker.
func sessionsCmd(store *history.Store) tea.Cmd {
	return func() tea.Msg {
		records, err := store.ListConversations(100)
		return sessionsMsg{records: records, err: err}
	}
}

// conversationRecord builds the index row for a fresh conversation.
func conversationRecord(id string, char character.Character) history.ConversationRecord {
	return history.ConversationRecord{
		ID:        id,
		Character: char.Name,
		Mode:      char.Mode,
		Title:     "Chat with " + char.Name,
	}
}
