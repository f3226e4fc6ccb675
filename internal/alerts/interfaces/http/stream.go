package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	alerts "plantwatch/internal/alerts/domain"
)

const (
	subscriberBuffer  = 16
	defaultKeepAlive  = 15 * time.Second
	reconnectDelayMs  = 3000
	streamEventReady  = "ready"
	streamEventRecord = "alert"
)

type streamEvent struct {
	id   string
	data []byte
}

// Subscription is one connected dashboard.
type Subscription struct {
	events  chan streamEvent
	dropped int
}

// SSEBroker fans alert records out to dashboards. A subscriber that falls
// behind loses records instead of slowing the sender.
type SSEBroker struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{subs: make(map[*Subscription]struct{})}
}

// Notify sends record to every subscriber.
func (b *SSEBroker) Notify(_ context.Context, record alerts.Record) {
	if b == nil {
		return
	}
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	ev := streamEvent{id: record.ID, data: data}

	// Sends and closes both happen under mu, so a subscriber is never closed mid-send.
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.events <- ev:
		default:
			sub.dropped++
		}
	}
}

// Subscribe registers a subscriber.
func (b *SSEBroker) Subscribe() *Subscription {
	sub := &Subscription{events: make(chan streamEvent, subscriberBuffer)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel. Repeated calls are no-ops.
func (b *SSEBroker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.events)
}

// Clients returns the number of subscribers.
func (b *SSEBroker) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many records sub missed because its buffer was full.
func (b *SSEBroker) Dropped(sub *Subscription) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sub.dropped
}

// StreamHandler serves GET /api/v1/alerts/stream as server-sent events.
type StreamHandler struct {
	broker    *SSEBroker
	keepAlive time.Duration
}

// NewStreamHandler constructs a stream handler. keepAlive <= 0 uses 15s.
func NewStreamHandler(broker *SSEBroker, keepAlive time.Duration) *StreamHandler {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &StreamHandler{broker: broker, keepAlive: keepAlive}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := h.broker.Subscribe()
	defer h.broker.Unsubscribe(sub)

	fmt.Fprintf(w, "retry: %d\nevent: %s\ndata: {}\n\n", reconnectDelayMs, streamEventReady)
	flusher.Flush()

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case ev, ok := <-sub.events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.id, streamEventRecord, ev.data)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
