package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	history "plantwatch/internal/history/domain"
)

// LedgerStore keeps the ledger as one indented JSON array.
type LedgerStore struct {
	path string
}

// NewLedgerStore constructs a file-backed ledger store.
func NewLedgerStore(path string) (*LedgerStore, error) {
	if path == "" {
		return nil, errors.New("history file store: empty path")
	}
	return &LedgerStore{path: path}, nil
}

// Load reads the ledger. A missing file is created empty.
func (s *LedgerStore) Load(ctx context.Context) ([]history.Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, s.Save(ctx, nil)
		}
		return nil, err
	}
	var entries []history.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("history file store: decode %s: %w", s.path, err)
	}
	return entries, nil
}

// Save overwrites the file with entries.
func (s *LedgerStore) Save(_ context.Context, entries []history.Entry) error {
	if entries == nil {
		entries = []history.Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
