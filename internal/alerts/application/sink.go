package application

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	alerts "plantwatch/internal/alerts/domain"
	"plantwatch/internal/observability/metrics"
)

// Notifier receives every new alert record.
type Notifier interface {
	Notify(ctx context.Context, record alerts.Record)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// MemorySink keeps outstanding alerts in memory until cleared.
type MemorySink struct {
	mu          sync.Mutex
	records     []alerts.Record
	subscribers []func()
	notifier    Notifier
	clock       Clock
	logger      *log.Logger
}

// SinkOption customizes the sink.
type SinkOption func(*MemorySink)

// WithNotifier forwards every new record to notifier.
func WithNotifier(notifier Notifier) SinkOption {
	return func(s *MemorySink) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) SinkOption {
	return func(s *MemorySink) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemorySink constructs an empty sink.
func NewMemorySink(logger *log.Logger, opts ...SinkOption) *MemorySink {
	if logger == nil {
		logger = log.Default()
	}
	s := &MemorySink{clock: systemClock{}, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record stores a new alert and notifies subscribers.
func (s *MemorySink) Record(ctx context.Context, cause, page, element string) alerts.Record {
	record := alerts.Record{
		ID:      uuid.NewString(),
		Cause:   cause,
		Page:    page,
		Element: element,
		At:      s.clock.Now(),
	}
	s.mu.Lock()
	s.records = append(s.records, record)
	count := len(s.records)
	s.mu.Unlock()

	metrics.IncAlertRecorded(page)
	metrics.SetAlertsOutstanding(count)
	if s.notifier != nil {
		s.notifier.Notify(ctx, record)
	}
	s.changed()
	return record
}

// CountOutstanding returns the number of uncleared alerts.
func (s *MemorySink) CountOutstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// List returns outstanding alerts, newest first.
func (s *MemorySink) List() []alerts.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]alerts.Record, len(s.records))
	for i, record := range s.records {
		out[len(s.records)-1-i] = record
	}
	return out
}

// Get returns a single alert by id.
func (s *MemorySink) Get(id string) (alerts.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.ID == id {
			return record, nil
		}
	}
	return alerts.Record{}, alerts.ErrNotFound
}

// ClearAll drops every outstanding alert.
func (s *MemorySink) ClearAll(context.Context) {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()
	metrics.SetAlertsOutstanding(0)
	s.changed()
}

// SubscribeOnChange registers fn for record and clear events.
func (s *MemorySink) SubscribeOnChange(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

func (s *MemorySink) changed() {
	s.mu.Lock()
	subs := make([]func(), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()
	for i, fn := range subs {
		if err := safeCall(fn); err != nil {
			s.logger.Printf("alert sink subscriber error: index=%d err=%v", i, err)
		}
	}
}

func safeCall(fn func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("subscriber panic: %v", rec)
		}
	}()
	fn()
	return nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

var _ alerts.Sink = (*MemorySink)(nil)
