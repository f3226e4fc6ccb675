package alerts

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a missing alert record.
var ErrNotFound = errors.New("alerts: not found")

// Record is one alert raised for the operator.
type Record struct {
	ID      string    `json:"id"`
	Cause   string    `json:"cause"`
	Page    string    `json:"page"`
	Element string    `json:"element"`
	At      time.Time `json:"at"`
}

// Sink stores alert records until the operator clears them.
type Sink interface {
	Record(ctx context.Context, cause, page, element string) Record
	CountOutstanding() int
	List() []Record
	ClearAll(ctx context.Context)
	SubscribeOnChange(fn func())
}
