package convo

import (
	"sort"
	"time"
)

// Store is the ordered, identity-keyed message collection for the active
// conversation; the single source of truth for what is rendered. Every event
// source (hydration, stream, retry) writes through Upsert so the dedupe and
// ordering invariants live in exactly one place.
type Store struct {
	seq  *Sequencer
	byID map[string]*Message
	all  []*Message
}

// NewStore returns an empty store numbering admissions from seq.
func NewStore(seq *Sequencer) *Store {
	return &Store{seq: seq, byID: make(map[string]*Message)}
}

// Upsert applies patch to the message with the given id, admitting it first
// when absent. New messages receive the next admission order and, if the
// patch left Timestamp zero, the current time. Existing messages keep their
// original order and timestamp; only mutable fields change.
func (s *Store) Upsert(id string, patch func(m *Message)) Message {
	if existing, ok := s.byID[id]; ok {
		order, ts := existing.Order, existing.Timestamp
		patch(existing)
		existing.ID = id
		existing.Order = order
		existing.Timestamp = ts
		return *existing
	}

	m := &Message{ID: id}
	patch(m)
	m.ID = id
	m.Order = s.seq.Next()
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	s.byID[id] = m
	s.all = append(s.all, m)
	return *m
}

// Get returns a copy of the message with the given id.
func (s *Store) Get(id string) (Message, bool) {
	m, ok := s.byID[id]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// Remove deletes the message with the given id. Its order is retired with it;
// orders are never reissued.
func (s *Store) Remove(id string) bool {
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, m := range s.all {
		if m.ID == id {
			s.all = append(s.all[:i], s.all[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of admitted messages.
func (s *Store) Len() int { return len(s.all) }

// Snapshot returns the renderable sequence: sorted by (order, timestamp) with
// a defensive second dedupe pass by id. Upsert should make the dedupe
// unreachable, but the render path must stay idempotent under repeated calls.
func (s *Store) Snapshot() []Message {
	out := make([]Message, 0, len(s.all))
	for _, m := range s.all {
		out = append(out, *m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	seen := make(map[string]bool, len(out))
	deduped := out[:0]
	for _, m := range out {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		deduped = append(deduped, m)
	}
	return deduped
}

// Reset discards all messages. Called on conversation switch together with
// the sequencer reset.
func (s *Store) Reset() {
	s.byID = make(map[string]*Message)
	s.all = nil
}
