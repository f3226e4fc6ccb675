package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"plantwatch/internal/observability/metrics"
	plant "plantwatch/internal/plant/domain"
	rotation "plantwatch/internal/rotation/domain"
)

const (
	defaultInterval     = 5 * time.Second
	defaultFetchTimeout = 5 * time.Second
	manualLabelPrefix   = "Manual: "
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// CommitHook receives every committed row in the tick that committed it.
type CommitHook func(ctx context.Context, live rotation.Live)

// Rotator advances through the data source rows and keeps the live snapshot.
type Rotator struct {
	// fetchMu serializes fetch-and-commit so a manual step never interleaves with a tick.
	fetchMu sync.Mutex

	mu          sync.Mutex
	source      rotation.DataSource
	logger      *log.Logger
	clock       Clock
	keys        []string
	cursor      rotation.Cursor
	lastAdvance time.Time
	live        rotation.Live
	hooks       []CommitHook
	timeout     time.Duration
}

// RotatorOption customizes the rotator.
type RotatorOption func(*Rotator)

// WithInterval sets the automatic advance cadence.
func WithInterval(interval time.Duration) RotatorOption {
	return func(r *Rotator) {
		if interval > 0 {
			r.cursor.Interval = interval
		}
	}
}

// WithFetchTimeout bounds each data source call; zero disables the bound.
func WithFetchTimeout(timeout time.Duration) RotatorOption {
	return func(r *Rotator) {
		if timeout >= 0 {
			r.timeout = timeout
		}
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) RotatorOption {
	return func(r *Rotator) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithKeys sets the instrument keys of the fallback snapshot.
func WithKeys(keys []string) RotatorOption {
	return func(r *Rotator) {
		if len(keys) > 0 {
			r.keys = append([]string(nil), keys...)
		}
	}
}

// WithStartIndex sets the initial row.
func WithStartIndex(index int) RotatorOption {
	return func(r *Rotator) {
		if index >= 0 {
			r.cursor.Index = index
		}
	}
}

// NewRotator constructs a rotator with cycling enabled. A nil source behaves as disconnected.
func NewRotator(source rotation.DataSource, logger *log.Logger, opts ...RotatorOption) *Rotator {
	if logger == nil {
		logger = log.Default()
	}
	r := &Rotator{
		source:  source,
		logger:  logger,
		clock:   systemClock{},
		keys:    plant.DefaultKeys(),
		timeout: defaultFetchTimeout,
		cursor: rotation.Cursor{
			CycleActive: true,
			Interval:    defaultInterval,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.lastAdvance = r.clock.Now()
	r.live = rotation.Live{
		Snapshot: plant.AllAbsent(r.keys),
		Label:    rotation.LabelNoData,
		Outcome:  rotation.OutcomeNoData,
		Cursor:   r.cursor,
	}
	return r
}

// OnCommit registers a hook run after every commit, in registration order.
func (r *Rotator) OnCommit(hook CommitHook) {
	if hook == nil {
		return
	}
	r.mu.Lock()
	r.hooks = append(r.hooks, hook)
	r.mu.Unlock()
}

// Tick advances the row when the interval elapsed and fetches the active row.
func (r *Rotator) Tick(ctx context.Context, now time.Time) rotation.Live {
	r.fetchMu.Lock()
	defer r.fetchMu.Unlock()

	r.mu.Lock()
	c := r.cursor
	if c.CycleActive && c.Total > 1 && now.Sub(r.lastAdvance) >= c.Interval {
		r.cursor.Index = rotation.Mod(c.Index+1, c.Total)
		r.lastAdvance = now
		metrics.ObserveAdvance("cycle", r.cursor.Index)
	}
	index := r.cursor.Index
	r.mu.Unlock()

	return r.fetch(ctx, index, now, "")
}

// StepManual moves the active row by delta immediately and fetches it.
func (r *Rotator) StepManual(ctx context.Context, delta int) rotation.Live {
	r.fetchMu.Lock()
	defer r.fetchMu.Unlock()

	r.mu.Lock()
	if r.cursor.Total > 0 {
		r.cursor.Index = rotation.Mod(r.cursor.Index+delta, r.cursor.Total)
		metrics.ObserveAdvance("manual", r.cursor.Index)
	}
	index := r.cursor.Index
	r.mu.Unlock()

	return r.fetch(ctx, index, r.clock.Now(), manualLabelPrefix)
}

// SetCycleActive toggles automatic advancement without moving the row.
func (r *Rotator) SetCycleActive(active bool) {
	r.mu.Lock()
	r.cursor.CycleActive = active
	r.live.Cursor.CycleActive = active
	r.mu.Unlock()
}

// Current returns the last committed row.
func (r *Rotator) Current() rotation.Live {
	r.mu.Lock()
	defer r.mu.Unlock()
	live := r.live
	live.Snapshot = live.Snapshot.Clone()
	return live
}

// Cursor returns the cursor state.
func (r *Rotator) Cursor() rotation.Cursor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

func (r *Rotator) fetch(ctx context.Context, index int, now time.Time, labelPrefix string) rotation.Live {
	start := time.Now()
	row, outcome, err := r.query(ctx, index)
	metrics.ObserveFetch(string(outcome), time.Since(start))

	var (
		snapshot plant.Snapshot
		label    string
	)
	switch outcome {
	case rotation.OutcomeData:
		snapshot = row.Snapshot.Clone()
		label = labelPrefix + row.Label
	case rotation.OutcomeNoData:
		snapshot = plant.AllAbsent(r.keys)
		label = rotation.LabelNoData
	case rotation.OutcomeError:
		r.logger.Printf("rotator fetch error: row=%d err=%v", index+1, err)
		snapshot = plant.AllAbsent(r.keys)
		label = rotation.LabelError
	default:
		snapshot = plant.AllAbsent(r.keys)
		label = rotation.LabelDisconnected
	}

	r.mu.Lock()
	if outcome == rotation.OutcomeData {
		r.cursor.Total = row.Total
		if r.cursor.Index >= r.cursor.Total {
			r.cursor.Index = 0
		}
	}
	r.live = rotation.Live{
		Snapshot:  snapshot,
		Label:     label,
		Outcome:   outcome,
		Cursor:    r.cursor,
		FetchedAt: now,
	}
	live := r.live
	hooks := make([]CommitHook, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.Unlock()

	for i, hook := range hooks {
		if err := safeHook(ctx, hook, live); err != nil {
			r.logger.Printf("rotator commit hook error: index=%d err=%v", i, err)
		}
	}
	return live
}

func (r *Rotator) query(ctx context.Context, index int) (rotation.Row, rotation.Outcome, error) {
	if r.source == nil {
		return rotation.Row{}, rotation.OutcomeDisconnected, nil
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	// A disconnected source is still asked: every tick is a reconnect attempt.
	row, err := r.source.FetchSnapshot(ctx, index)
	if err != nil {
		if !r.source.Connected() {
			return rotation.Row{}, rotation.OutcomeDisconnected, err
		}
		return rotation.Row{}, rotation.OutcomeError, err
	}
	if len(row.Snapshot) == 0 || row.Total <= 0 {
		return rotation.Row{}, rotation.OutcomeNoData, nil
	}
	return row, rotation.OutcomeData, nil
}

func safeHook(ctx context.Context, hook CommitHook, live rotation.Live) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("hook panic: %v", rec)
		}
	}()
	hook(ctx, live)
	return nil
}

// ErrNoSource is returned by WriteBack when no data source is configured.
var ErrNoSource = errors.New("rotator: no data source")

// WriteBack stores snapshot into the data source; failures are reported, never retried.
func (r *Rotator) WriteBack(ctx context.Context, snapshot plant.Snapshot) error {
	if r.source == nil {
		return ErrNoSource
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.source.WriteSnapshot(ctx, snapshot)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
