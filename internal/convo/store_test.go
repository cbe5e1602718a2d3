package convo

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	var seq Sequencer
	return NewStore(&seq)
}

func TestStore_UpsertAssignsOrderOnce(t *testing.T) {
	s := newTestStore()

	first := s.Upsert("m1", func(m *Message) { m.Content = "Hel" })
	assert.Equal(t, 0, first.Order)

	second := s.Upsert("m2", func(m *Message) { m.Content = "other" })
	assert.Equal(t, 1, second.Order)

	// Updating m1 must preserve its original order, not reassign.
	updated := s.Upsert("m1", func(m *Message) { m.Content += "lo" })
	assert.Equal(t, 0, updated.Order)
	assert.Equal(t, "Hello", updated.Content)
	assert.Equal(t, 2, s.Len())
}

func TestStore_UpsertPreservesTimestamp(t *testing.T) {
	s := newTestStore()
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	s.Upsert("m1", func(m *Message) { m.Timestamp = ts })
	got := s.Upsert("m1", func(m *Message) { m.Timestamp = time.Now() })
	assert.Equal(t, ts, got.Timestamp)
}

func TestStore_SnapshotSortedAndIdempotent(t *testing.T) {
	s := newTestStore()
	s.Upsert("a", func(m *Message) { m.Content = "first" })
	s.Upsert("b", func(m *Message) { m.Content = "second" })
	s.Upsert("c", func(m *Message) { m.Content = "third" })

	snap1 := s.Snapshot()
	snap2 := s.Snapshot()
	require.Len(t, snap1, 3)
	for i := 1; i < len(snap1); i++ {
		assert.Greater(t, snap1[i].Order, snap1[i-1].Order)
	}
	if diff := cmp.Diff(snap1, snap2, cmpopts.EquateApproxTime(0)); diff != "" {
		t.Fatalf("repeated Snapshot differs (-first +second):\n%s", diff)
	}
}

func TestStore_RemoveRetiresOrder(t *testing.T) {
	s := newTestStore()
	s.Upsert("a", func(m *Message) {})
	s.Upsert("b", func(m *Message) {})

	require.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))

	// A new admission continues the sequence; retired orders never come back.
	fresh := s.Upsert("c", func(m *Message) {})
	assert.Equal(t, 2, fresh.Order)
}

func TestStore_ResetClearsEverything(t *testing.T) {
	s := newTestStore()
	s.Upsert("a", func(m *Message) {})
	s.Reset()
	assert.Equal(t, 0, s.Len())
	_, ok := s.Get("a")
	assert.False(t, ok)
}
