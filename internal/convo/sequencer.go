package convo

// Sequencer issues monotonically increasing admission orders for one
// conversation. The conversation is the arena, the order is the index: a
// switch resets the counter along with the store it numbered.
//
// Hydration consumes orders 0..N-1 in persisted sequence before the live
// stream admits anything new, so historical messages always sort ahead of
// live ones regardless of wall-clock arrival.
type Sequencer struct {
	next int
}

// Next returns the next admission order. Never returns the same value twice
// within one conversation lifetime.
func (s *Sequencer) Next() int {
	n := s.next
	s.next++
	return n
}

// Reset rewinds the counter to zero. Called exactly when the active
// conversation changes.
func (s *Sequencer) Reset() { s.next = 0 }
