package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	history "plantwatch/internal/history/domain"
	"plantwatch/internal/observability/metrics"
	plant "plantwatch/internal/plant/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Ledger is the append-only history of captured snapshots.
type Ledger struct {
	mu          sync.Mutex
	store       history.Store
	logger      *log.Logger
	clock       Clock
	entries     []history.Entry
	subscribers []func()
}

// LedgerOption customizes the ledger.
type LedgerOption func(*Ledger)

// WithClock assigns a clock.
func WithClock(clock Clock) LedgerOption {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// NewLedger loads the persisted ledger. An unreadable ledger starts empty.
func NewLedger(ctx context.Context, store history.Store, logger *log.Logger, opts ...LedgerOption) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("history: nil store")
	}
	if logger == nil {
		logger = log.Default()
	}
	l := &Ledger{
		store:  store,
		logger: logger,
		clock:  systemClock{},
	}
	for _, opt := range opts {
		opt(l)
	}

	entries, err := store.Load(ctx)
	if err != nil {
		logger.Printf("history load error: %v", err)
		metrics.IncPersistError("history", "load")
		entries = nil
	}
	loc := l.clock.Now().Location()
	for i := range entries {
		entries[i].ResolveAt(loc)
	}
	l.entries = entries
	metrics.ObserveLedgerMutation("load", "", len(entries))
	logger.Printf("history loaded: %d entries", len(entries))
	return l, nil
}

// Append records snapshot with the current date and time and returns the new entry.
func (l *Ledger) Append(ctx context.Context, snapshot plant.Snapshot, origin history.Origin, sourceLabel string) history.Entry {
	entry := history.Entry{
		ID:          uuid.NewString(),
		Snapshot:    snapshot.Clone(),
		Origin:      origin,
		SourceLabel: sourceLabel,
	}
	if entry.Snapshot == nil {
		entry.Snapshot = plant.Snapshot{}
	}
	entry.Stamp(l.clock.Now())

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	size := len(l.entries)
	l.persistLocked(ctx)
	l.mu.Unlock()

	metrics.ObserveLedgerMutation("append", string(origin), size)
	l.notify()
	return entry
}

// Clear removes every entry.
func (l *Ledger) Clear(ctx context.Context) {
	l.mu.Lock()
	l.entries = nil
	l.persistLocked(ctx)
	l.mu.Unlock()

	metrics.ObserveLedgerMutation("clear", "", 0)
	l.logger.Printf("history cleared")
	l.notify()
}

// QueryByInstrument returns up to limit of the most recent entries holding key, oldest first.
func (l *Ledger) QueryByInstrument(key string, limit int) []history.Sample {
	if limit <= 0 || key == "" {
		return nil
	}
	l.mu.Lock()
	picked := make([]history.Entry, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(picked) < limit; i-- {
		if l.entries[i].Snapshot.Has(key) {
			picked = append(picked, l.entries[i])
		}
	}
	l.mu.Unlock()

	// Back to append order so equal timestamps keep it under the stable sort.
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	sort.SliceStable(picked, func(i, j int) bool {
		return picked[i].At.Before(picked[j].At)
	})

	samples := make([]history.Sample, 0, len(picked))
	for _, entry := range picked {
		samples = append(samples, history.Sample{
			Date:        entry.Date,
			Time:        entry.Time,
			At:          entry.At,
			Reading:     entry.Snapshot.Get(key),
			Origin:      entry.Origin,
			SourceLabel: entry.SourceLabel,
		})
	}
	return samples
}

// Entries returns a copy of the ledger in append order.
func (l *Ledger) Entries() []history.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]history.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// SubscribeOnLedgerChanged registers fn to run after every append or clear.
func (l *Ledger) SubscribeOnLedgerChanged(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.subscribers = append(l.subscribers, fn)
	l.mu.Unlock()
}

func (l *Ledger) persistLocked(ctx context.Context) {
	snapshot := make([]history.Entry, len(l.entries))
	copy(snapshot, l.entries)
	if err := l.store.Save(ctx, snapshot); err != nil {
		metrics.IncPersistError("history", "save")
		l.logger.Printf("history save error: %v", err)
	}
}

func (l *Ledger) notify() {
	l.mu.Lock()
	subscribers := make([]func(), len(l.subscribers))
	copy(subscribers, l.subscribers)
	l.mu.Unlock()

	for i, fn := range subscribers {
		if err := safeCall(fn); err != nil {
			l.logger.Printf("history subscriber error: index=%d err=%v", i, err)
		}
	}
}

func safeCall(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	fn()
	return nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
