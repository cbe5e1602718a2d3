// Package history persists the append-only conversation event log in SQLite.
// It is the durable side of the reconciliation engine: hydration reads from
// here, and every settled message is appended back.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"reverie/internal/logging"
)

// Event is one persisted entry. ID is the message id and the idempotency key:
// appending the same id twice is a silent no-op. Seq is the server-assigned
// position within the conversation and defines hydration order.
type Event struct {
	ID             string
	ConversationID string
	Seq            int
	Author         string
	Content        string
	Thinking       string
	CreatedAt      time.Time
}

// ConversationRecord is one row of the conversation index, for the session
// picker.
type ConversationRecord struct {
	ID           string
	Character    string
	Mode         string
	Title        string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Store is the SQLite-backed event log.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes the SQLite database at the given path, creating the
// directory and schema as needed.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "history.Open")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Get(logging.CategoryStore).Debug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Get(logging.CategoryStore).Debug("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.Get(logging.CategoryStore).Debug("failed to set synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.Get(logging.CategoryStore).Info("history store opened: %s", path)
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// CreateConversation registers a conversation in the index. Idempotent on id.
func (s *Store) CreateConversation(rec ConversationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO conversations (id, character, mode, title) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Character, rec.Mode, rec.Title,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("failed to create conversation %s: %v", rec.ID, err)
		return err
	}
	return nil
}

// TouchConversation bumps the last-active timestamp.
func (s *Store) TouchConversation(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE conversations SET last_active_at = CURRENT_TIMESTAMP WHERE id = ?`,
		conversationID,
	)
	return err
}

// ListConversations returns the index, most recently active first.
func (s *Store) ListConversations(limit int) ([]ConversationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, character, mode, title, created_at, last_active_at
		 FROM conversations
		 ORDER BY last_active_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []ConversationRecord
	for rows.Next() {
		var r ConversationRecord
		if err := rows.Scan(&r.ID, &r.Character, &r.Mode, &r.Title, &r.CreatedAt, &r.LastActiveAt); err != nil {
			continue
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// AppendEvent records one settled message. Uses INSERT OR IGNORE on the event
// id so duplicate delivery (a retried append, a re-synced batch) is silently
// skipped. A zero Seq is replaced with the next sequence for the conversation.
func (s *Store) AppendEvent(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := ev.Seq
	if seq <= 0 {
		if err := s.db.QueryRow(
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM events WHERE conversation_id = ?`,
			ev.ConversationID,
		).Scan(&seq); err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO events (id, conversation_id, seq, author, content, thinking)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ConversationID, seq, ev.Author, ev.Content, ev.Thinking,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("failed to append event %s: %v", ev.ID, err)
		return err
	}
	logging.Get(logging.CategoryStore).Debug("event appended: conv=%s seq=%d author=%s len=%d",
		ev.ConversationID, seq, ev.Author, len(ev.Content))
	return nil
}

// LoadHistory returns all events for a conversation in server sequence.
func (s *Store) LoadHistory(conversationID string) ([]Event, error) {
	timer := logging.StartTimer(logging.CategoryStore, "LoadHistory")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, conversation_id, seq, author, content, thinking, created_at
		 FROM events
		 WHERE conversation_id = ?
		 ORDER BY seq ASC`,
		conversationID,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("failed to load history for %s: %v", conversationID, err)
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.ConversationID, &ev.Seq, &ev.Author, &ev.Content, &ev.Thinking, &ev.CreatedAt); err != nil {
			continue
		}
		events = append(events, ev)
	}
	logging.Get(logging.CategoryStore).Debug("loaded %d events for conv=%s", len(events), conversationID)
	return events, rows.Err()
}

// CountUserTurns counts persisted user messages for a conversation, the basis
// of the locally computed turn count.
func (s *Store) CountUserTurns(conversationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE conversation_id = ? AND author = 'user'`,
		conversationID,
	).Scan(&n)
	return n, err
}
