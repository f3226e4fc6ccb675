package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	plant "plantwatch/internal/plant/domain"
	rotation "plantwatch/internal/rotation/domain"
)

const (
	pressureTable = "tm_sol_09"
	unitTable     = "uma_09"
	pingTimeout   = 2 * time.Second
)

// unitColumns maps air-handling-unit columns to instrument keys.
var unitColumns = []struct {
	column string
	key    string
}{
	{"temperatura", plant.KeyTemperature},
	{"humedad", plant.KeyHumidity},
	{"fel_1", plant.KeyFilter1},
	{"fel_2", plant.KeyFilter2},
	{"fel_3", plant.KeyFilter3},
	{"fel_ng", plant.KeyFinalStage},
}

// Source reads plant rows from the pressure and air-handling-unit tables.
type Source struct {
	db        *sql.DB
	connected atomic.Bool
}

// NewSource constructs a Postgres data source. Call Connect before the first fetch.
func NewSource(db *sql.DB) (*Source, error) {
	if db == nil {
		return nil, errors.New("datasource pg: nil db")
	}
	return &Source{db: db}, nil
}

// Connect verifies the connection and records the result.
func (s *Source) Connect(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	s.connected.Store(err == nil)
	return err
}

// Connected reports whether the last round trip reached the database.
// A false value does not stop later calls from trying again.
func (s *Source) Connected() bool {
	return s.connected.Load()
}

// RowCount returns the number of rows both tables can serve.
func (s *Source) RowCount(ctx context.Context) (int, error) {
	pressure, err := s.count(ctx, pressureTable)
	if err != nil {
		return 0, s.observe(ctx, err)
	}
	unit, err := s.count(ctx, unitTable)
	if err != nil {
		return 0, s.observe(ctx, err)
	}
	return min(pressure, unit), nil
}

// FetchSnapshot merges the row at index from both tables; an index past the end selects the first row.
func (s *Source) FetchSnapshot(ctx context.Context, index int) (rotation.Row, error) {
	pressureTotal, err := s.count(ctx, pressureTable)
	if err != nil {
		return rotation.Row{}, s.observe(ctx, err)
	}
	unitTotal, err := s.count(ctx, unitTable)
	if err != nil {
		return rotation.Row{}, s.observe(ctx, err)
	}
	s.connected.Store(true)

	snapshot := plant.Snapshot{}
	if pressureTotal > 0 {
		if err := s.readPressure(ctx, wrap(index, pressureTotal), snapshot); err != nil {
			return rotation.Row{}, s.observe(ctx, err)
		}
	}
	if unitTotal > 0 {
		if err := s.readUnit(ctx, wrap(index, unitTotal), snapshot); err != nil {
			return rotation.Row{}, s.observe(ctx, err)
		}
	}

	total := min(pressureTotal, unitTotal)
	if total == 0 {
		return rotation.Row{}, nil
	}
	row := wrap(index, total)
	return rotation.Row{
		Snapshot: snapshot,
		Label:    fmt.Sprintf("Row %d of %d", row+1, total),
		Total:    total,
	}, nil
}

// WriteSnapshot overwrites the first row of both tables. Absent readings are stored as 0.
func (s *Source) WriteSnapshot(ctx context.Context, snapshot plant.Snapshot) error {
	gauges := plant.GaugeKeys()
	sets := make([]string, 0, len(gauges))
	args := make([]any, 0, len(gauges))
	for i, number := range plant.GaugeNumbers {
		sets = append(sets, fmt.Sprintf("presion_%d = $%d", number, i+1))
		args = append(args, snapshot.Get(gauges[i]).Raw())
	}
	if err := s.updateFirst(ctx, pressureTable, sets, args); err != nil {
		return s.observe(ctx, fmt.Errorf("update %s: %w", pressureTable, err))
	}

	sets = sets[:0]
	args = args[:0]
	for i, col := range unitColumns {
		sets = append(sets, fmt.Sprintf("%s = $%d", col.column, i+1))
		args = append(args, snapshot.Get(col.key).Raw())
	}
	if err := s.updateFirst(ctx, unitTable, sets, args); err != nil {
		return s.observe(ctx, fmt.Errorf("update %s: %w", unitTable, err))
	}
	s.connected.Store(true)
	return nil
}

func (s *Source) updateFirst(ctx context.Context, table string, sets []string, args []any) error {
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = (SELECT MIN(id) FROM %s)`,
		table, strings.Join(sets, ", "), table)
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *Source) count(ctx context.Context, table string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n)
	return n, err
}

func (s *Source) readPressure(ctx context.Context, index int, into plant.Snapshot) error {
	cols := make([]string, len(plant.GaugeNumbers))
	for i, number := range plant.GaugeNumbers {
		cols[i] = fmt.Sprintf("presion_%d", number)
	}
	values := make([]sql.NullFloat64, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id OFFSET $1 LIMIT 1`, strings.Join(cols, ", "), pressureTable)
	if err := s.db.QueryRowContext(ctx, query, index).Scan(dest...); err != nil {
		return err
	}
	for i, key := range plant.GaugeKeys() {
		into[key] = plant.FromNullable(values[i].Float64, values[i].Valid)
	}
	return nil
}

func (s *Source) readUnit(ctx context.Context, index int, into plant.Snapshot) error {
	cols := make([]string, len(unitColumns))
	for i, col := range unitColumns {
		cols[i] = col.column
	}
	values := make([]sql.NullFloat64, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id OFFSET $1 LIMIT 1`, strings.Join(cols, ", "), unitTable)
	if err := s.db.QueryRowContext(ctx, query, index).Scan(dest...); err != nil {
		return err
	}
	for i, col := range unitColumns {
		into[col.key] = plant.FromNullable(values[i].Float64, values[i].Valid)
	}
	return nil
}

// observe re-checks the connection after a failed query so callers can tell errors from outages.
func (s *Source) observe(ctx context.Context, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	pingCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pingTimeout)
	defer cancel()
	s.connected.Store(s.db.PingContext(pingCtx) == nil)
	return err
}

func wrap(index, total int) int {
	if index < 0 || index >= total {
		return 0
	}
	return index
}
