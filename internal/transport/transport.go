// Package transport defines the streaming connection to the generation
// backend and its event contract. The engine consumes events; it never sees
// the wire protocol.
package transport

// Kind classifies one stream event.
type Kind int

const (
	// KindContent carries an incremental content delta.
	KindContent Kind = iota
	// KindThinking carries an incremental reasoning delta, accumulated
	// separately from content.
	KindThinking
	// KindDone marks successful completion of the message.
	KindDone
	// KindFailed marks failed completion; Text holds a user-facing summary.
	KindFailed
	// KindLimit is an inline turn-limit notification. It creates no message
	// by itself; content bundled with it arrives as separate KindContent
	// events.
	KindLimit
)

func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindThinking:
		return "thinking"
	case KindDone:
		return "done"
	case KindFailed:
		return "failed"
	case KindLimit:
		return "limit"
	}
	return "unknown"
}

// Event is one increment from a live stream. ConversationID tags which
// conversation the stream belongs to so late events for a switched-away
// conversation can be discarded.
type Event struct {
	ConversationID string
	MessageID      string
	Kind           Kind
	Text           string
}

// Turn is one prior exchange entry handed back to the backend on subscribe
// and retry calls.
type Turn struct {
	Role string
	Text string
}
