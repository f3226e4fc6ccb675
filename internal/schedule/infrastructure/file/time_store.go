package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	schedule "plantwatch/internal/schedule/domain"
)

// TimeStore keeps the capture times in a JSON array of "HH:MM" strings.
type TimeStore struct {
	path string
}

// NewTimeStore constructs a file-backed time store.
func NewTimeStore(path string) (*TimeStore, error) {
	if path == "" {
		return nil, errors.New("schedule file store: empty path")
	}
	return &TimeStore{path: path}, nil
}

// Load reads the time set. A missing file is an empty set.
func (s *TimeStore) Load(_ context.Context) ([]schedule.TimeOfDay, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("schedule file store: decode %s: %w", s.path, err)
	}
	times := make([]schedule.TimeOfDay, 0, len(raw))
	for _, value := range raw {
		t, err := schedule.ParseTimeOfDay(value)
		if err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, nil
}

// Save overwrites the file with the full set.
func (s *TimeStore) Save(_ context.Context, times []schedule.TimeOfDay) error {
	raw := make([]string, 0, len(times))
	for _, t := range times {
		raw = append(raw, t.String())
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return writeFile(s.path, data)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
