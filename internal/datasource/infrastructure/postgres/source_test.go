package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	plant "plantwatch/internal/plant/domain"
	rotationapp "plantwatch/internal/rotation/application"
	rotation "plantwatch/internal/rotation/domain"
)

var errServerDown = errors.New("dial tcp: connection refused")

// fakeServer answers the queries Source issues; every column reads as 21.
type fakeServer struct {
	mu      sync.Mutex
	up      bool
	rows    int
	queries int
	execs   int
}

func (f *fakeServer) setUp(up bool) {
	f.mu.Lock()
	f.up = up
	f.mu.Unlock()
}

func (f *fakeServer) isUp() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.up
}

type fakeConnector struct{ server *fakeServer }

func (c fakeConnector) Connect(context.Context) (driver.Conn, error) {
	if !c.server.isUp() {
		return nil, errServerDown
	}
	return &fakeConn{server: c.server}, nil
}

func (c fakeConnector) Driver() driver.Driver { return fakeDriver{c} }

type fakeDriver struct{ c fakeConnector }

func (d fakeDriver) Open(string) (driver.Conn, error) { return d.c.Connect(context.Background()) }

type fakeConn struct{ server *fakeServer }

func (c *fakeConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare unsupported")
}
func (c *fakeConn) Close() error              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error) { return nil, errors.New("tx unsupported") }

func (c *fakeConn) Ping(context.Context) error {
	if !c.server.isUp() {
		return driver.ErrBadConn
	}
	return nil
}

func (c *fakeConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.up {
		return nil, driver.ErrBadConn
	}
	s.queries++
	if strings.Contains(query, "COUNT(*)") {
		return &fakeRows{cols: []string{"count"}, values: [][]driver.Value{{int64(s.rows)}}}, nil
	}
	selected := strings.TrimPrefix(query[:strings.Index(query, " FROM ")], "SELECT ")
	cols := strings.Split(selected, ", ")
	row := make([]driver.Value, len(cols))
	for i := range row {
		row[i] = float64(21)
	}
	return &fakeRows{cols: cols, values: [][]driver.Value{row}}, nil
}

func (c *fakeConn) ExecContext(context.Context, string, []driver.NamedValue) (driver.Result, error) {
	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.up {
		return nil, driver.ErrBadConn
	}
	s.execs++
	return driver.RowsAffected(1), nil
}

type fakeRows struct {
	cols   []string
	values [][]driver.Value
	next   int
}

func (r *fakeRows) Columns() []string { return r.cols }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.next >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.next])
	r.next++
	return nil
}

func TestSourceRecoversAfterOutage(t *testing.T) {
	server := &fakeServer{rows: 2}
	db := sql.OpenDB(fakeConnector{server: server})
	t.Cleanup(func() { db.Close() })
	src, err := NewSource(db)
	require.NoError(t, err)
	ctx := context.Background()

	require.Error(t, src.Connect(ctx))
	assert.False(t, src.Connected())

	rot := rotationapp.NewRotator(src, log.New(io.Discard, "", 0))
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	live := rot.Tick(ctx, now)
	assert.Equal(t, rotation.LabelDisconnected, live.Label)

	server.setUp(true)
	live = rot.Tick(ctx, now.Add(time.Second))
	require.Equal(t, rotation.OutcomeData, live.Outcome)
	assert.Contains(t, live.Label, "Row 1 of 2")
	assert.True(t, src.Connected())
	v, ok := live.Snapshot.Get(plant.KeyTemperature).Value()
	require.True(t, ok)
	assert.Equal(t, 21.0, v)

	require.NoError(t, rot.WriteBack(ctx, live.Snapshot))
	assert.Equal(t, 2, server.execs)

	server.setUp(false)
	live = rot.Tick(ctx, now.Add(2*time.Second))
	assert.Equal(t, rotation.LabelDisconnected, live.Label)
	assert.False(t, src.Connected())
	assert.Error(t, rot.WriteBack(ctx, live.Snapshot))

	server.setUp(true)
	live = rot.Tick(ctx, now.Add(3*time.Second))
	assert.Equal(t, rotation.OutcomeData, live.Outcome)
	assert.True(t, src.Connected())
}
