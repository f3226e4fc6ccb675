package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"plantwatch/internal/observability/metrics"
	schedule "plantwatch/internal/schedule/domain"
)

// Callback runs when a registered capture time is reached.
type Callback func(ctx context.Context, at schedule.TimeOfDay) error

type firingKey struct {
	date   string
	hour   int
	minute int
}

// Scheduler fires callbacks at registered times of day, at most once per time and calendar minute.
type Scheduler struct {
	mu        sync.Mutex
	store     schedule.TimeStore
	logger    *log.Logger
	times     []schedule.TimeOfDay
	fired     map[firingKey]struct{}
	callbacks []Callback
	running   bool
}

// NewScheduler loads the persisted time set and returns a running scheduler.
// A missing or unreadable set starts empty.
func NewScheduler(ctx context.Context, store schedule.TimeStore, logger *log.Logger) (*Scheduler, error) {
	if store == nil {
		return nil, errors.New("schedule: nil time store")
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Scheduler{
		store:   store,
		logger:  logger,
		fired:   make(map[firingKey]struct{}),
		running: true,
	}
	times, err := store.Load(ctx)
	if err != nil {
		logger.Printf("schedule load error: %v", err)
		metrics.IncPersistError("schedule", "load")
		times = nil
	}
	s.times = dedupe(times)
	metrics.SetScheduleTimes(len(s.times))
	return s, nil
}

// AddTime registers t. It returns false when t is already registered.
func (s *Scheduler) AddTime(ctx context.Context, t schedule.TimeOfDay) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOf(s.times, t) >= 0 {
		return false
	}
	s.times = append(s.times, t)
	s.persistLocked(ctx)
	s.logger.Printf("schedule time added: %s", t.Display())
	return true
}

// RemoveTime unregisters t. It returns false when t is not registered.
func (s *Scheduler) RemoveTime(ctx context.Context, t schedule.TimeOfDay) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := indexOf(s.times, t)
	if idx < 0 {
		return false
	}
	s.times = append(s.times[:idx], s.times[idx+1:]...)
	s.persistLocked(ctx)
	s.logger.Printf("schedule time removed: %s", t.Display())
	return true
}

// Times returns the registered times in insertion order.
func (s *Scheduler) Times() []schedule.TimeOfDay {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schedule.TimeOfDay, len(s.times))
	copy(out, s.times)
	return out
}

// RegisterCallback appends fn to the subscriber list.
func (s *Scheduler) RegisterCallback(fn Callback) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.callbacks = append(s.callbacks, fn)
	s.mu.Unlock()
}

// Start resumes a stopped scheduler.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return schedule.ErrAlreadyRunning
	}
	s.running = true
	s.logger.Printf("schedule started")
	return nil
}

// Stop pauses firing; ticks are ignored until Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.logger.Printf("schedule stopped")
}

// Running reports the lifecycle state.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Tick evaluates the wall clock reading now and returns the times that fired.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) []schedule.TimeOfDay {
	if now.Second() != 0 {
		return nil
	}
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	current := schedule.Of(now)
	date := now.Format("2006-01-02")
	var due []schedule.TimeOfDay
	for _, t := range s.times {
		if t != current {
			continue
		}
		key := firingKey{date: date, hour: t.Hour, minute: t.Minute}
		if _, seen := s.fired[key]; seen {
			continue
		}
		s.fired[key] = struct{}{}
		due = append(due, t)
	}
	callbacks := make([]Callback, len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.mu.Unlock()

	for _, t := range due {
		metrics.IncScheduleFire(t.String())
		s.logger.Printf("schedule alarm reached: %s", t.Display())
		for i, cb := range callbacks {
			if err := invoke(ctx, cb, t); err != nil {
				metrics.IncScheduleCallbackFailure()
				s.logger.Printf("schedule callback error: index=%d time=%s err=%v", i, t, err)
			}
		}
	}
	return due
}

func (s *Scheduler) persistLocked(ctx context.Context) {
	metrics.SetScheduleTimes(len(s.times))
	snapshot := make([]schedule.TimeOfDay, len(s.times))
	copy(snapshot, s.times)
	if err := s.store.Save(ctx, snapshot); err != nil {
		metrics.IncPersistError("schedule", "save")
		s.logger.Printf("schedule save error: %v", err)
	}
}

func invoke(ctx context.Context, cb Callback, t schedule.TimeOfDay) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panic: %v", r)
		}
	}()
	return cb(ctx, t)
}

func indexOf(times []schedule.TimeOfDay, t schedule.TimeOfDay) int {
	for i, existing := range times {
		if existing == t {
			return i
		}
	}
	return -1
}

func dedupe(times []schedule.TimeOfDay) []schedule.TimeOfDay {
	out := make([]schedule.TimeOfDay, 0, len(times))
	for _, t := range times {
		if indexOf(out, t) < 0 {
			out = append(out, t)
		}
	}
	return out
}
