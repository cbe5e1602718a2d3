package transport

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Scripted is an offline Streamer that plays back canned replies as token
// deltas. It backs `reverie --offline` and the engine tests: same event
// contract as the live transport, deterministic content.
type Scripted struct {
	// Replies are consumed round-robin; empty means an echo of the last
	// user turn.
	Replies []string
	// Thinking, when set, is emitted as thinking deltas before the content.
	Thinking string
	// FailNext forces the next stream to end in terminal-failure.
	FailNext bool
	// LimitAfter, when positive, emits a limit notification once this many
	// streams have completed.
	LimitAfter int

	// Delay between deltas; zero streams instantly (tests).
	Delay time.Duration

	served int
}

// Subscribe plays the next scripted reply.
func (s *Scripted) Subscribe(ctx context.Context, conversationID, systemPrompt string, prior []Turn) (<-chan Event, error) {
	return s.play(ctx, conversationID, prior)
}

// Retry replays exactly like Subscribe.
func (s *Scripted) Retry(ctx context.Context, conversationID, systemPrompt string, prior []Turn) (<-chan Event, error) {
	return s.play(ctx, conversationID, prior)
}

// Resume replays exactly like Subscribe.
func (s *Scripted) Resume(ctx context.Context, conversationID, systemPrompt string, prior []Turn) (<-chan Event, error) {
	return s.play(ctx, conversationID, prior)
}

func (s *Scripted) play(ctx context.Context, conversationID string, prior []Turn) (<-chan Event, error) {
	messageID := uuid.NewString()
	reply := s.nextReply(prior)
	fail := s.FailNext
	s.FailNext = false
	s.served++
	limit := s.LimitAfter > 0 && s.served >= s.LimitAfter

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)

		emit := func(ev Event) bool {
			if s.Delay > 0 {
				select {
				case <-time.After(s.Delay):
				case <-ctx.Done():
					return false
				}
			}
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if fail {
			emit(Event{ConversationID: conversationID, MessageID: messageID, Kind: KindFailed, Text: "The character could not finish this reply."})
			return
		}

		if s.Thinking != "" {
			for _, word := range strings.SplitAfter(s.Thinking, " ") {
				if !emit(Event{ConversationID: conversationID, MessageID: messageID, Kind: KindThinking, Text: word}) {
					return
				}
			}
		}
		for _, word := range strings.SplitAfter(reply, " ") {
			if !emit(Event{ConversationID: conversationID, MessageID: messageID, Kind: KindContent, Text: word}) {
				return
			}
		}
		if limit {
			if !emit(Event{ConversationID: conversationID, MessageID: messageID, Kind: KindLimit}) {
				return
			}
		}
		emit(Event{ConversationID: conversationID, MessageID: messageID, Kind: KindDone})
	}()
	return ch, nil
}

func (s *Scripted) nextReply(prior []Turn) string {
	if len(s.Replies) > 0 {
		return s.Replies[s.served%len(s.Replies)]
	}
	for i := len(prior) - 1; i >= 0; i-- {
		if prior[i].Role == "user" {
			return "You said: " + prior[i].Text
		}
	}
	return "Hello."
}
