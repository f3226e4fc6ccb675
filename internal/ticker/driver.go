// Package ticker drives every periodic task of the service from one time source.
package ticker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrRunning is returned when tasks are registered after Run started.
var ErrRunning = errors.New("ticker: driver already running")

// Task is invoked once per delivered tick.
type Task func(ctx context.Context, now time.Time)

type task struct {
	name    string
	fn      Task
	mailbox chan time.Time
	dropped atomic.Int64
}

// Driver fans one ticker out to registered tasks. Each task has a one-slot
// mailbox, so a slow task skips ticks instead of delaying the others.
type Driver struct {
	interval time.Duration
	align    bool
	logger   *log.Logger

	mu      sync.Mutex
	tasks   []*task
	running bool
}

// Option configures the driver.
type Option func(*Driver)

// WithInterval overrides the default one second period.
func WithInterval(interval time.Duration) Option {
	return func(d *Driver) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// WithSecondAlignment delays the first tick to the next whole second.
func WithSecondAlignment(align bool) Option {
	return func(d *Driver) {
		d.align = align
	}
}

// NewDriver constructs a driver.
func NewDriver(logger *log.Logger, opts ...Option) *Driver {
	if logger == nil {
		logger = log.Default()
	}
	d := &Driver{interval: time.Second, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a named task. Tasks must be registered before Run.
func (d *Driver) Register(name string, fn Task) error {
	if fn == nil {
		return fmt.Errorf("ticker: nil task %q", name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrRunning
	}
	d.tasks = append(d.tasks, &task{name: name, fn: fn, mailbox: make(chan time.Time, 1)})
	return nil
}

// Dropped returns how many ticks the named task skipped.
func (d *Driver) Dropped(name string) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.tasks {
		if t.name == name {
			return t.dropped.Load()
		}
	}
	return 0
}

// Run delivers ticks until ctx is cancelled, then waits for every task to return.
func (d *Driver) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrRunning
	}
	d.running = true
	tasks := append([]*task(nil), d.tasks...)
	d.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t *task) {
			defer wg.Done()
			d.work(ctx, t)
		}(t)
	}
	defer wg.Wait()

	if d.align {
		wait := time.Until(time.Now().Truncate(time.Second).Add(time.Second))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			for _, t := range tasks {
				select {
				case t.mailbox <- now:
				default:
					if t.dropped.Add(1)%60 == 1 {
						d.logger.Printf("ticker task %s lagging: dropped=%d", t.name, t.dropped.Load())
					}
				}
			}
		}
	}
}

func (d *Driver) work(ctx context.Context, t *task) {
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.mailbox:
			d.invoke(ctx, t, now)
		}
	}
}

func (d *Driver) invoke(ctx context.Context, t *task, now time.Time) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Printf("ticker task %s panic: %v", t.name, rec)
		}
	}()
	t.fn(ctx, now)
}
