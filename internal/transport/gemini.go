package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"reverie/internal/logging"
)

// Streamer opens streaming generations. Subscribe starts a new assistant
// turn, Retry re-attempts after a failure with the same prior turns, and
// Resume asks the backend to continue an interrupted generation with no new
// user input. All three yield the same event contract; the returned channel
// is closed after the terminal event.
type Streamer interface {
	Subscribe(ctx context.Context, conversationID, systemPrompt string, prior []Turn) (<-chan Event, error)
	Retry(ctx context.Context, conversationID, systemPrompt string, prior []Turn) (<-chan Event, error)
	Resume(ctx context.Context, conversationID, systemPrompt string, prior []Turn) (<-chan Event, error)
}

// Gemini streams generations from the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini streamer.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Subscribe starts a fresh assistant turn over the prior conversation.
func (g *Gemini) Subscribe(ctx context.Context, conversationID, systemPrompt string, prior []Turn) (<-chan Event, error) {
	return g.stream(ctx, conversationID, systemPrompt, prior, "")
}

// Retry is a fresh attempt with identical inputs; the failed turn was already
// removed by the engine.
func (g *Gemini) Retry(ctx context.Context, conversationID, systemPrompt string, prior []Turn) (<-chan Event, error) {
	return g.stream(ctx, conversationID, systemPrompt, prior, "")
}

// Resume continues an interrupted generation without new user input.
func (g *Gemini) Resume(ctx context.Context, conversationID, systemPrompt string, prior []Turn) (<-chan Event, error) {
	return g.stream(ctx, conversationID, systemPrompt, prior,
		"Continue your previous reply from where it was interrupted. Do not repeat what you already said.")
}

func (g *Gemini) stream(ctx context.Context, conversationID, systemPrompt string, prior []Turn, nudge string) (<-chan Event, error) {
	contents := make([]*genai.Content, 0, len(prior)+1)
	for _, t := range prior {
		var role genai.Role = genai.RoleUser
		if t.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	if nudge != "" {
		contents = append(contents, genai.NewContentFromText(nudge, genai.RoleUser))
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("nothing to send")
	}

	cfg := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{IncludeThoughts: true},
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	messageID := uuid.NewString()
	ch := make(chan Event, 32)

	go func() {
		defer close(ch)
		log := logging.Get(logging.CategoryStream)
		log.Debug("gemini stream opened: conv=%s msg=%s model=%s", conversationID, messageID, g.model)

		// Every send must stay cancellable: once the UI abandons the
		// stream nobody drains ch, and a plain send would pin this
		// goroutine forever.
		emit := func(ev Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
			if err != nil {
				log.Error("gemini stream error: conv=%s: %v", conversationID, err)
				if isQuotaError(err) {
					if !emit(Event{ConversationID: conversationID, MessageID: messageID, Kind: KindLimit}) {
						return
					}
				}
				emit(Event{
					ConversationID: conversationID,
					MessageID:      messageID,
					Kind:           KindFailed,
					Text:           failureSummary(err),
				})
				return
			}
			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					if part.Text == "" {
						continue
					}
					kind := KindContent
					if part.Thought {
						kind = KindThinking
					}
					if !emit(Event{
						ConversationID: conversationID,
						MessageID:      messageID,
						Kind:           kind,
						Text:           part.Text,
					}) {
						return
					}
				}
			}
		}

		log.Debug("gemini stream done: conv=%s msg=%s", conversationID, messageID)
		emit(Event{ConversationID: conversationID, MessageID: messageID, Kind: KindDone})
	}()

	return ch, nil
}

func isQuotaError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "429")
}

// failureSummary converts a transport error into the user-facing summary that
// lands in the failed message bubble. Raw API errors stay in the logs.
func failureSummary(err error) string {
	switch {
	case isQuotaError(err):
		return "The character is over capacity right now. Try again in a moment."
	case strings.Contains(err.Error(), "context canceled"):
		return "The reply was interrupted."
	default:
		return "The character could not finish this reply."
	}
}
