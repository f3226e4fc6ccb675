package application

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alerts "plantwatch/internal/alerts/domain"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type recordingNotifier struct {
	records []alerts.Record
}

func (n *recordingNotifier) Notify(_ context.Context, record alerts.Record) {
	n.records = append(n.records, record)
}

func TestMemorySinkRecordCountListClear(t *testing.T) {
	at := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	notifier := &recordingNotifier{}
	sink := NewMemorySink(log.New(io.Discard, "", 0), WithClock(fixedClock{now: at}), WithNotifier(notifier))

	changes := 0
	sink.SubscribeOnChange(func() { panic("badge gone") })
	sink.SubscribeOnChange(func() { changes++ })

	first := sink.Record(context.Background(), "Humidity out of specification: 70 % (Row 1)", "AHU 09", "(Ret. Hum.)")
	second := sink.Record(context.Background(), "Automatic capture executed (Row 1)", "Configuration", "(Clock)")

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, at, first.At)
	assert.Equal(t, 2, sink.CountOutstanding())
	assert.Equal(t, 2, changes)
	require.Len(t, notifier.records, 2)

	list := sink.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	got, err := sink.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "AHU 09", got.Page)
	_, err = sink.Get("missing")
	assert.ErrorIs(t, err, alerts.ErrNotFound)

	sink.ClearAll(context.Background())
	assert.Zero(t, sink.CountOutstanding())
	assert.Empty(t, sink.List())
	assert.Equal(t, 3, changes)
}
