package chat

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"reverie/internal/convo"
	"reverie/internal/history"
	"reverie/internal/logging"
	"reverie/internal/transport"
)

// Update is the single mutation point of the engine: every async completion
// lands here as a message and is applied on this goroutine, in arrival order.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.viewMode == SessionListView {
			return m.updateSessionList(msg)
		}
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.streamCancel != nil {
				m.streamCancel()
			}
			return m, tea.Quit
		case tea.KeyEnter:
			return m.handleSubmit()
		case tea.KeyCtrlR:
			return m.handleRecovery(streamRetry)
		case tea.KeyCtrlE:
			return m.handleRecovery(streamResume)
		case tea.KeyCtrlN:
			return m, m.newConversation()
		case tea.KeyCtrlL:
			return m, sessionsCmd(m.store)
		case tea.KeyCtrlT:
			m.showThinking = !m.showThinking
			m.refreshViewport()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.FocusMsg:
		// Refocus refreshes the authoritative quota counters.
		return m, statsCmd(m.quota, m.engine.Conversation().ID)

	case spinner.TickMsg:
		if m.isStreaming {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case hydratedMsg:
		return m.handleHydrated(msg)

	case statsMsg:
		if msg.err != nil {
			logging.Get(logging.CategoryQuota).Warn("stats fetch failed: %v", msg.err)
			return m, nil
		}
		m.engine.ApplyTurnStats(msg.conversationID, msg.stats)
		return m, nil

	case streamOpenedMsg:
		if msg.conversationID != m.engine.Conversation().ID {
			// Opened for a conversation we already left.
			msg.cancel()
			return m, nil
		}
		if m.streamCancel != nil {
			m.streamCancel()
		}
		m.events = msg.ch
		m.streamCancel = msg.cancel
		m.isStreaming = true
		return m, tea.Batch(m.spinner.Tick, waitEventCmd(msg.ch))

	case streamEventMsg:
		return m.handleStreamEvent(msg)

	case transportRejectedMsg:
		m.isStreaming = false
		m.observeScroll()
		m.engine.TransportRejected(msg.conversationID, "The connection to "+m.active.Name+" failed. Try again.")
		m.refreshViewport()
		return m, nil

	case persistFailedMsg:
		logging.Get(logging.CategoryStore).Error("event append failed: %v", msg.err)
		m.err = fmt.Errorf("history not saved: %w", msg.err)
		return m, nil

	case sessionsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.setSessionItems(msg.records)
		m.viewMode = SessionListView
		return m, nil
	}

	// Forward everything else to the focused components.
	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleHydrated(msg hydratedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.engine.FailHydration(msg.conversationID, "Could not load this conversation's history.")
		m.err = msg.err
		return m, nil
	}

	events := make([]convo.PersistedEvent, 0, len(msg.events))
	for _, ev := range msg.events {
		events = append(events, convo.PersistedEvent{
			ID:        ev.ID,
			Author:    convo.Sender(ev.Author),
			Content:   ev.Content,
			Thinking:  ev.Thinking,
			CreatedAt: ev.CreatedAt,
		})
	}
	m.observeScroll()
	if m.engine.CompleteHydration(msg.conversationID, events) {
		m.refreshViewport()
	}
	return m, nil
}

func (m Model) handleStreamEvent(msg streamEventMsg) (tea.Model, tea.Cmd) {
	if msg.closed {
		m.isStreaming = false
		m.events = nil
		return m, nil
	}

	m.observeScroll()
	m.engine.ApplyStream(msg.ev)
	m.refreshViewport()

	var cmds []tea.Cmd
	if m.events != nil {
		cmds = append(cmds, waitEventCmd(m.events))
	}

	switch msg.ev.Kind {
	case transport.KindDone:
		m.isStreaming = false
		if done, ok := m.engine.Message(msg.ev.MessageID); ok {
			cmds = append(cmds, appendEventCmd(m.store, history.Event{
				ID:             done.ID,
				ConversationID: msg.ev.ConversationID,
				Author:         string(done.Sender),
				Content:        done.Content,
				Thinking:       done.Thinking,
			}))
		}
		// A finished turn changes the confirmed count.
		cmds = append(cmds, statsCmd(m.quota, m.engine.Conversation().ID))
	case transport.KindFailed:
		m.isStreaming = false
	case transport.KindLimit:
		cmds = append(cmds, statsCmd(m.quota, m.engine.Conversation().ID))
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	m.observeScroll()
	sent, turns, err := m.engine.SendUserMessage(m.textarea.Value())
	switch {
	case errors.Is(err, convo.ErrEmptyMessage):
		return m, nil
	case errors.Is(err, convo.ErrTurnLimit):
		// Rejected client-side; the transport is never contacted.
		return m, nil
	case err != nil:
		m.err = err
		return m, nil
	}

	m.textarea.Reset()
	m.refreshViewport()

	conv := m.engine.Conversation()
	return m, tea.Batch(
		appendEventCmd(m.store, history.Event{
			ID:             sent.ID,
			ConversationID: conv.ID,
			Author:         string(sent.Sender),
			Content:        sent.Content,
		}),
		openStreamCmd(m.streamer, streamSubscribe, conv.ID, m.active.SystemPrompt, turns),
	)
}

func (m Model) handleRecovery(kind streamKind) (tea.Model, tea.Cmd) {
	var (
		turns []transport.Turn
		err   error
	)
	if kind == streamResume {
		turns, err = m.engine.PrepareResume()
	} else {
		turns, err = m.engine.PrepareRetry()
	}
	switch {
	case errors.Is(err, convo.ErrRecoveryBusy), errors.Is(err, convo.ErrNoFailedMessage):
		return m, nil
	case err != nil:
		m.err = err
		return m, nil
	}

	m.refreshViewport()
	conv := m.engine.Conversation()
	return m, openStreamCmd(m.streamer, kind, conv.ID, m.active.SystemPrompt, turns)
}

func (m Model) updateSessionList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.viewMode = ChatView
		return m, nil
	case tea.KeyEnter:
		item, ok := m.list.SelectedItem().(sessionItem)
		if !ok {
			return m, nil
		}
		m.viewMode = ChatView
		char, found := m.characters.Get(item.character)
		if !found {
			char = m.active
		}
		return m, m.switchConversation(item.id, char)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}
