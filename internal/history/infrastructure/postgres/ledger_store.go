package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	history "plantwatch/internal/history/domain"
)

// Schema creates the ledger table.
const Schema = `
CREATE TABLE IF NOT EXISTS history_entries (
	position     INTEGER PRIMARY KEY,
	id           TEXT NOT NULL,
	entry_date   TEXT NOT NULL,
	entry_time   TEXT NOT NULL,
	origin       TEXT NOT NULL,
	source_label TEXT NOT NULL,
	snapshot     JSONB NOT NULL
)`

// LedgerStore mirrors the whole ledger into Postgres on every save.
type LedgerStore struct {
	db *sql.DB
}

// NewLedgerStore constructs a Postgres ledger store.
func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// EnsureSchema creates the table when missing.
func (s *LedgerStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("history pg store: nil db")
	}
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// Load returns entries ordered by position.
func (s *LedgerStore) Load(ctx context.Context) ([]history.Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history pg store: nil db")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, entry_date, entry_time, origin, source_label, snapshot
FROM history_entries
ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []history.Entry
	for rows.Next() {
		var (
			entry  history.Entry
			origin string
			raw    []byte
		)
		if err := rows.Scan(&entry.ID, &entry.Date, &entry.Time, &origin, &entry.SourceLabel, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &entry.Snapshot); err != nil {
			return nil, err
		}
		if err := entry.Origin.UnmarshalText([]byte(origin)); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Save replaces the table content with entries in one transaction.
func (s *LedgerStore) Save(ctx context.Context, entries []history.Entry) error {
	if s == nil || s.db == nil {
		return errors.New("history pg store: nil db")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history_entries`); err != nil {
		return err
	}
	for i, entry := range entries {
		raw, err := json.Marshal(entry.Snapshot)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO history_entries (position, id, entry_date, entry_time, origin, source_label, snapshot)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			i, entry.ID, entry.Date, entry.Time, string(entry.Origin), entry.SourceLabel, raw); err != nil {
			return err
		}
	}
	return tx.Commit()
}
