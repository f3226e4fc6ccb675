package notify

import (
	"context"

	alertapp "plantwatch/internal/alerts/application"
	alerts "plantwatch/internal/alerts/domain"
)

// MultiNotifier dispatches alert records to multiple notifiers.
type MultiNotifier struct {
	notifiers []alertapp.Notifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...alertapp.Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Add appends a notifier.
func (m *MultiNotifier) Add(notifier alertapp.Notifier) {
	if m == nil || notifier == nil {
		return
	}
	m.notifiers = append(m.notifiers, notifier)
}

// Notify forwards records to all notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, record alerts.Record) {
	if m == nil {
		return
	}
	for _, notifier := range m.notifiers {
		if notifier != nil {
			notifier.Notify(ctx, record)
		}
	}
}
