package application

import (
	"context"
	"fmt"
	"log"
	"sync"

	alerts "plantwatch/internal/alerts/domain"
	"plantwatch/internal/observability/metrics"
)

// DefaultQueueSize bounds the records waiting for delivery.
const DefaultQueueSize = 256

// Dispatcher hands records to a notifier from its own goroutine so slow
// channels never hold up the caller. Records arriving while the queue is full are dropped.
type Dispatcher struct {
	next   Notifier
	logger *log.Logger
	queue  chan alerts.Record
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts delivering to next. Call Close to drain and stop.
func NewDispatcher(next Notifier, size int, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	d := &Dispatcher{
		next:   next,
		logger: logger,
		queue:  make(chan alerts.Record, size),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues record without blocking.
func (d *Dispatcher) Notify(_ context.Context, record alerts.Record) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.IncAlertNotifyDropped("closed")
		return
	}
	select {
	case d.queue <- record:
	default:
		metrics.IncAlertNotifyDropped("queue_full")
		d.logger.Printf("alert notify dropped: queue full id=%s", record.ID)
	}
}

// Close stops accepting records and waits until the queued ones are delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for record := range d.queue {
		if d.next == nil {
			continue
		}
		if err := d.deliver(record); err != nil {
			d.logger.Printf("alert notify error: id=%s err=%v", record.ID, err)
		}
	}
}

func (d *Dispatcher) deliver(record alerts.Record) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("notifier panic: %v", rec)
		}
	}()
	d.next.Notify(context.Background(), record)
	return nil
}
