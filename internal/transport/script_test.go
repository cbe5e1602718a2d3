package transport

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// The genai import starts an opencensus stats worker at init.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestScripted_StreamsDeltasThenDone(t *testing.T) {
	s := &Scripted{Replies: []string{"hello there friend"}}
	ch, err := s.Subscribe(context.Background(), "c1", "", []Turn{{Role: "user", Text: "hi"}})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	events := collect(t, ch)
	if len(events) < 2 {
		t.Fatalf("got %d events, want deltas plus terminal", len(events))
	}

	var content string
	for _, ev := range events[:len(events)-1] {
		if ev.Kind != KindContent {
			t.Fatalf("unexpected kind %v before terminal", ev.Kind)
		}
		if ev.ConversationID != "c1" {
			t.Fatalf("event tagged %q, want c1", ev.ConversationID)
		}
		content += ev.Text
	}
	if content != "hello there friend" {
		t.Fatalf("reassembled content %q", content)
	}
	if last := events[len(events)-1]; last.Kind != KindDone {
		t.Fatalf("terminal kind %v, want done", last.Kind)
	}
}

func TestScripted_SingleMessageID(t *testing.T) {
	s := &Scripted{Replies: []string{"a b c"}, Thinking: "let me think"}
	ch, _ := s.Subscribe(context.Background(), "c1", "", []Turn{{Role: "user", Text: "hi"}})

	events := collect(t, ch)
	id := events[0].MessageID
	for _, ev := range events {
		if ev.MessageID != id {
			t.Fatalf("message id changed mid-stream: %q vs %q", ev.MessageID, id)
		}
	}
}

func TestScripted_FailNext(t *testing.T) {
	s := &Scripted{FailNext: true}
	ch, _ := s.Subscribe(context.Background(), "c1", "", nil)

	events := collect(t, ch)
	if len(events) != 1 || events[0].Kind != KindFailed {
		t.Fatalf("events=%+v, want a single terminal failure", events)
	}
	if events[0].Text == "" {
		t.Fatal("failure must carry a user-facing summary")
	}
}

func TestScripted_LimitAfter(t *testing.T) {
	s := &Scripted{Replies: []string{"ok"}, LimitAfter: 2}

	first := collect(t, mustStream(t, s, "c1"))
	for _, ev := range first {
		if ev.Kind == KindLimit {
			t.Fatal("limit emitted too early")
		}
	}

	second := collect(t, mustStream(t, s, "c1"))
	found := false
	for _, ev := range second {
		if ev.Kind == KindLimit {
			found = true
		}
	}
	if !found {
		t.Fatal("second stream must carry the limit notification")
	}
}

func TestScripted_CancelStopsPump(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scripted{Replies: []string{"a long reply with many words to stream"}}
	ch, err := s.Subscribe(ctx, "c1", "", nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cancel()
	// Channel must close without requiring a reader to drain everything;
	// goleak verifies the pump goroutine exits.
	for range ch {
	}
}

func TestScripted_AbandonedStreamExitsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scripted{Replies: []string{strings.Repeat("word ", 40)}}
	if _, err := s.Subscribe(ctx, "c1", "", nil); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	// Nobody reads: the buffer fills and the pump parks on its next send.
	// Cancellation alone must unblock it; goleak fails the suite otherwise.
	cancel()
}

func mustStream(t *testing.T, s *Scripted, conv string) <-chan Event {
	t.Helper()
	ch, err := s.Subscribe(context.Background(), conv, "", []Turn{{Role: "user", Text: "hi"}})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	return ch
}
