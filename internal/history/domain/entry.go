package history

import (
	"context"
	"errors"
	"strings"
	"time"

	plant "plantwatch/internal/plant/domain"
)

const (
	// DateLayout is the stored date form (DD/MM/YY).
	DateLayout = "02/01/06"
	// TimeLayout is the stored time form (hh:mm AM/PM).
	TimeLayout = "03:04 PM"
)

// ErrInvalidOrigin indicates an unknown entry origin.
var ErrInvalidOrigin = errors.New("history: invalid origin")

// Origin tells how an entry was captured.
type Origin string

const (
	OriginManual    Origin = "Manual"
	OriginAutomatic Origin = "Automatic"
)

// ParseOrigin normalizes an origin string.
func ParseOrigin(value string) (Origin, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "manual":
		return OriginManual, nil
	case "automatic", "automatico":
		return OriginAutomatic, nil
	default:
		return "", ErrInvalidOrigin
	}
}

// Entry is one recorded snapshot. Entries are never modified after append.
type Entry struct {
	ID          string         `json:"id,omitempty"`
	Date        string         `json:"date"`
	Time        string         `json:"time"`
	Snapshot    plant.Snapshot `json:"snapshot"`
	Origin      Origin         `json:"origin"`
	SourceLabel string         `json:"source_label"`

	// At is derived from Date and Time; zero when they do not parse.
	At time.Time `json:"-"`
}

// Stamp fills Date, Time and At from now, truncated to the minute.
func (e *Entry) Stamp(now time.Time) {
	e.Date = now.Format(DateLayout)
	e.Time = now.Format(TimeLayout)
	e.At = e.parseAt(now.Location())
}

// ResolveAt recomputes At from the stored Date and Time.
func (e *Entry) ResolveAt(loc *time.Location) {
	e.At = e.parseAt(loc)
}

func (e Entry) parseAt(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	at, err := time.ParseInLocation(DateLayout+" "+TimeLayout, e.Date+" "+e.Time, loc)
	if err != nil {
		return time.Time{}
	}
	return at
}

// Sample is one instrument reading extracted from the ledger.
type Sample struct {
	Date        string        `json:"date"`
	Time        string        `json:"time"`
	At          time.Time     `json:"at"`
	Reading     plant.Reading `json:"reading"`
	Origin      Origin        `json:"origin"`
	SourceLabel string        `json:"source_label"`
}

// Store persists the whole ledger; Save overwrites previous content.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
}

// UnmarshalText accepts legacy spellings and keeps unknown values verbatim.
func (o *Origin) UnmarshalText(data []byte) error {
	parsed, err := ParseOrigin(string(data))
	if err != nil {
		*o = Origin(data)
		return nil
	}
	*o = parsed
	return nil
}
