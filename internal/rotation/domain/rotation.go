package rotation

import (
	"context"
	"fmt"
	"time"

	plant "plantwatch/internal/plant/domain"
)

// Source labels used when no row could be committed.
const (
	LabelNoData       = "no data"
	LabelError        = "error"
	LabelDisconnected = "disconnected"
)

// Outcome classifies a fetch.
type Outcome string

const (
	OutcomeData         Outcome = "data"
	OutcomeNoData       Outcome = "no_data"
	OutcomeError        Outcome = "error"
	OutcomeDisconnected Outcome = "disconnected"
)

// Cursor tracks the active row.
type Cursor struct {
	Index       int           `json:"index"`
	Total       int           `json:"total"`
	CycleActive bool          `json:"cycle_active"`
	Interval    time.Duration `json:"interval"`
}

// Position returns the one-based row description, e.g. "Row 2".
func (c Cursor) Position() string {
	return fmt.Sprintf("Row %d", c.Index+1)
}

// Live is the committed view of the active row.
type Live struct {
	Snapshot  plant.Snapshot `json:"snapshot"`
	Label     string         `json:"label"`
	Outcome   Outcome        `json:"outcome"`
	Cursor    Cursor         `json:"cursor"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// Row is one stored sample returned by a data source.
type Row struct {
	Snapshot plant.Snapshot
	Label    string
	Total    int
}

// DataSource provides the ordered rows the rotator cycles through.
type DataSource interface {
	RowCount(ctx context.Context) (int, error)
	FetchSnapshot(ctx context.Context, index int) (Row, error)
	WriteSnapshot(ctx context.Context, snapshot plant.Snapshot) error
	Connected() bool
}

// Mod returns the non-negative remainder of index modulo total.
func Mod(index, total int) int {
	if total <= 0 {
		return 0
	}
	m := index % total
	if m < 0 {
		m += total
	}
	return m
}
