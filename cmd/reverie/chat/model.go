package chat

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"

	"reverie/internal/character"
	"reverie/internal/convo"
	"reverie/internal/history"
	"reverie/internal/logging"
)

// New builds the chat model over an already-activated engine.
func New(deps Deps) Model {
	ta := textarea.New()
	ta.Placeholder = "Say something..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 4000
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	li := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	li.Title = "Conversations"
	li.SetShowStatusBar(false)

	return Model{
		textarea:   ta,
		spinner:    sp,
		list:       li,
		styles:     DefaultStyles(),
		engine:     deps.Engine,
		streamer:   deps.Streamer,
		store:      deps.History,
		quota:      deps.Quota,
		characters: deps.Characters,
		active:     deps.Character,
		cfg:        deps.Config,
	}
}

// Init kicks off hydration and the activation quota refresh for the already
// active conversation.
func (m Model) Init() tea.Cmd {
	conv := m.engine.Conversation()
	logging.Get(logging.CategoryUI).Info("chat starting: conv=%s character=%s", conv.ID, m.active.Name)
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		hydrateCmd(m.store, m.engine, conv.ID, m.active),
		statsCmd(m.quota, conv.ID),
	)
}

// Run starts the program. Focus reporting feeds the quota guard's
// refresh-on-refocus rule.
func Run(deps Deps) error {
	p := tea.NewProgram(New(deps), tea.WithAltScreen(), tea.WithReportFocus())
	_, err := p.Run()
	return err
}

// switchConversation activates a new or existing conversation and restarts
// hydration and quota refresh for it. Any in-flight stream keeps running but
// its events are stale by id from here on.
func (m *Model) switchConversation(conversationID string, char character.Character) tea.Cmd {
	if m.streamCancel != nil {
		m.streamCancel()
		m.streamCancel = nil
	}
	m.events = nil
	m.isStreaming = false
	m.err = nil
	m.active = char

	m.engine.Activate(convo.Conversation{ID: conversationID, Mode: char.Mode})
	m.refreshViewport()
	logging.Get(logging.CategorySession).Info("switched conversation: conv=%s character=%s", conversationID, char.Name)
	return tea.Batch(
		hydrateCmd(m.store, m.engine, conversationID, char),
		statsCmd(m.quota, conversationID),
	)
}

// newConversation creates a fresh conversation for the active character.
func (m *Model) newConversation() tea.Cmd {
	id := uuid.NewString()
	if err := m.store.CreateConversation(conversationRecord(id, m.active)); err != nil {
		m.err = fmt.Errorf("failed to create conversation: %w", err)
		return nil
	}
	return m.switchConversation(id, m.active)
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	headerHeight := 2
	inputHeight := m.textarea.Height() + 1
	statusHeight := 1
	vpHeight := height - headerHeight - inputHeight - statusHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.renderer, _ = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	m.textarea.SetWidth(width)
	m.list.SetSize(width, height-2)
	m.refreshViewport()
	m.viewport.GotoBottom()
}

// refreshViewport re-renders the timeline and applies the engine's one-shot
// scroll intent. Every store mutation funnels through here.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTimeline())
	if m.engine.ShouldForceScrollNow() {
		m.viewport.GotoBottom()
	}
}

// observeScroll feeds the current viewport position to the follow controller
// before the next mutation lands.
func (m *Model) observeScroll() {
	if !m.ready {
		return
	}
	m.engine.ObserveScroll(m.viewport.YOffset, m.viewport.Height, m.viewport.TotalLineCount())
}

// setSessionItems fills the picker list from the conversation index.
func (m *Model) setSessionItems(records []history.ConversationRecord) {
	items := make([]list.Item, 0, len(records))
	for _, r := range records {
		items = append(items, sessionItem{
			id:        r.ID,
			character: r.Character,
			date:      timestampLabel(r.LastActiveAt),
			title:     r.Title,
		})
	}
	m.list.SetItems(items)
}

// timestampLabel formats a session timestamp for the picker.
func timestampLabel(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("Jan 02 15:04")
}
