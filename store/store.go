// Package store is the device-local durable mirror of ticket state:
// a SQLite-backed tickets table plus the pending-use queue that
// survives restarts and offline periods.
package store

import (
	"fmt"

	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tickets (
	id           TEXT PRIMARY KEY,
	order_id     TEXT NOT NULL DEFAULT '',
	holder_name  TEXT NOT NULL DEFAULT '',
	holder_email TEXT NOT NULL DEFAULT '',
	ticket_type  TEXT NOT NULL DEFAULT '',
	qr_code      TEXT NOT NULL,
	qr_code_url  TEXT NOT NULL DEFAULT '',
	is_used      BOOLEAN NOT NULL DEFAULT 0,
	used_at      TEXT,
	scanned_by   TEXT,
	created_at   TEXT NOT NULL DEFAULT '',
	updated_at   TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tickets_qr_code ON tickets (qr_code);

CREATE TABLE IF NOT EXISTS pending_uses (
	ticket_id  TEXT PRIMARY KEY,
	scanned_by TEXT NOT NULL DEFAULT '',
	scanned_at TEXT NOT NULL DEFAULT ''
);
`

// Store owns the local database handle. Callers construct one per
// device (or per test) and close it when done; there is no package
// singleton.
type Store struct {
	db *dbx.DB
}

// Open opens (creating if needed) the SQLite file at path and ensures
// the schema exists.
func Open(path string) (*Store, error) {
	db, err := dbx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	if _, err := db.NewQuery(schema).Execute(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
