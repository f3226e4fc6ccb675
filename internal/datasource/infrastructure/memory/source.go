package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	plant "plantwatch/internal/plant/domain"
	rotation "plantwatch/internal/rotation/domain"
)

// ErrDisconnected is returned while the source is marked offline.
var ErrDisconnected = errors.New("datasource memory: disconnected")

// Source keeps plant rows in memory.
type Source struct {
	mu        sync.Mutex
	rows      []plant.Snapshot
	connected bool
}

// NewSource returns a connected source seeded with rows.
func NewSource(rows ...plant.Snapshot) *Source {
	s := &Source{connected: true}
	for _, row := range rows {
		s.rows = append(s.rows, row.Clone())
	}
	return s
}

// Append adds a row at the end.
func (s *Source) Append(row plant.Snapshot) {
	s.mu.Lock()
	s.rows = append(s.rows, row.Clone())
	s.mu.Unlock()
}

// SetConnected toggles the simulated connection.
func (s *Source) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

func (s *Source) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Source) RowCount(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return 0, ErrDisconnected
	}
	return len(s.rows), nil
}

func (s *Source) FetchSnapshot(ctx context.Context, index int) (rotation.Row, error) {
	if err := ctx.Err(); err != nil {
		return rotation.Row{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return rotation.Row{}, ErrDisconnected
	}
	total := len(s.rows)
	if total == 0 {
		return rotation.Row{}, nil
	}
	if index < 0 || index >= total {
		index = 0
	}
	return rotation.Row{
		Snapshot: s.rows[index].Clone(),
		Label:    fmt.Sprintf("Row %d of %d", index+1, total),
		Total:    total,
	}, nil
}

// WriteSnapshot overwrites the first row, or appends when empty.
func (s *Source) WriteSnapshot(_ context.Context, snapshot plant.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrDisconnected
	}
	if len(s.rows) == 0 {
		s.rows = append(s.rows, snapshot.Clone())
		return nil
	}
	s.rows[0] = snapshot.Clone()
	return nil
}

// Rows returns a copy of every stored row.
func (s *Source) Rows() []plant.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]plant.Snapshot, len(s.rows))
	for i, row := range s.rows {
		out[i] = row.Clone()
	}
	return out
}
