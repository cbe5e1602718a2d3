package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"

	"reverie/internal/character"
	"reverie/internal/config"
	"reverie/internal/convo"
	"reverie/internal/history"
	"reverie/internal/quota"
	"reverie/internal/transport"
)

// ViewMode determines which component is focused/active.
type ViewMode int

const (
	ChatView ViewMode = iota
	SessionListView
)

// sessionItem is a list item for the conversation picker.
type sessionItem struct {
	id, character, date, title string
}

func (i sessionItem) Title() string       { return i.date + "  " + i.character }
func (i sessionItem) Description() string { return i.title }
func (i sessionItem) FilterValue() string { return i.character + " " + i.title }

// Deps are the collaborators the chat UI drives.
type Deps struct {
	Config     config.Config
	Engine     *convo.Engine
	Streamer   transport.Streamer
	History    *history.Store
	Quota      *quota.Provider
	Characters *character.Registry
	Character  character.Character
}

// Model is the main model for the interactive chat interface.
type Model struct {
	// UI components
	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	list     list.Model
	styles   Styles
	renderer *glamour.TermRenderer

	viewMode ViewMode

	// Backend
	engine     *convo.Engine
	streamer   transport.Streamer
	store      *history.Store
	quota      *quota.Provider
	characters *character.Registry
	active     character.Character
	cfg        config.Config

	// Live stream plumbing: the open event channel and its cancel. Replaced
	// wholesale on conversation switch; the engine discards stale events by
	// conversation id regardless.
	events       <-chan transport.Event
	streamCancel context.CancelFunc

	// State
	isStreaming  bool
	showThinking bool
	width        int
	height       int
	ready        bool
	err          error
}

// Messages for tea updates.
type (
	// hydratedMsg delivers the persisted history load for a conversation.
	hydratedMsg struct {
		conversationID string
		events         []history.Event
		err            error
	}

	// statsMsg delivers an authoritative quota fetch.
	statsMsg struct {
		conversationID string
		stats          convo.TurnStats
		err            error
	}

	// streamOpenedMsg carries a freshly opened event channel.
	streamOpenedMsg struct {
		conversationID string
		ch             <-chan transport.Event
		cancel         context.CancelFunc
	}

	// streamEventMsg carries one live event; closed marks channel end.
	streamEventMsg struct {
		ev     transport.Event
		closed bool
	}

	// transportRejectedMsg reports a subscribe/retry/resume call that threw.
	transportRejectedMsg struct {
		conversationID string
		err            error
	}

	// persistFailedMsg reports a failed event-log append. Non-fatal: the
	// in-memory timeline stays correct, the durable copy is behind.
	persistFailedMsg struct{ err error }

	// sessionsMsg delivers the conversation index for the picker.
	sessionsMsg struct {
		records []history.ConversationRecord
		err     error
	}
)
