package history

import (
	"database/sql"
	"fmt"

	"reverie/internal/logging"
)

// Schema versions:
// v1: conversations index + events log
// v2: thinking column on events
const currentSchemaVersion = 2

// migration adds one column to an existing table, for databases created
// before the column existed.
type migration struct {
	table  string
	column string
	def    string
}

var pendingMigrations = []migration{
	{"events", "thinking", "TEXT DEFAULT ''"},
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)`); err != nil {
		return err
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id             TEXT PRIMARY KEY,
			character      TEXT NOT NULL DEFAULT '',
			mode           TEXT NOT NULL DEFAULT '',
			title          TEXT NOT NULL DEFAULT '',
			created_at     DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_active_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return err
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			seq             INTEGER NOT NULL,
			author          TEXT NOT NULL,
			content         TEXT NOT NULL DEFAULT '',
			thinking        TEXT NOT NULL DEFAULT '',
			created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return err
	}

	if _, err := s.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_events_conv_seq
		ON events(conversation_id, seq)`); err != nil {
		return err
	}

	for _, m := range pendingMigrations {
		if err := s.addColumnIfMissing(m); err != nil {
			return fmt.Errorf("migration %s.%s: %w", m.table, m.column, err)
		}
	}

	return s.stampVersion()
}

func (s *Store) addColumnIfMissing(m migration) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", m.table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if name == m.column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	logging.Get(logging.CategoryStore).Info("migrating: adding %s.%s", m.table, m.column)
	_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, m.def))
	return err
}

func (s *Store) stampVersion() error {
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion)
		return err
	case err != nil:
		return err
	case version < currentSchemaVersion:
		_, err = s.db.Exec(`UPDATE schema_version SET version = ?`, currentSchemaVersion)
		return err
	}
	return nil
}
