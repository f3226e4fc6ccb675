package plant

import (
	"encoding/json"
	"sort"
)

// Reading is an optional instrument value.
type Reading struct {
	value   float64
	present bool
}

// Absent is the reading used when an instrument has no data.
var Absent = Reading{}

// Present wraps a measured value.
func Present(value float64) Reading {
	return Reading{value: value, present: true}
}

// FromRaw decodes a stored or fetched value. Zero is the legacy "no data" marker
// and decodes to Absent, so a true zero reading cannot be represented yet.
func FromRaw(value float64) Reading {
	if value == 0 {
		return Absent
	}
	return Present(value)
}

// FromNullable decodes a nullable column value.
func FromNullable(value float64, valid bool) Reading {
	if !valid {
		return Absent
	}
	return FromRaw(value)
}

// Value returns the reading and whether it is present.
func (r Reading) Value() (float64, bool) {
	return r.value, r.present
}

// IsPresent reports whether the reading carries data.
func (r Reading) IsPresent() bool {
	return r.present
}

// Raw encodes the reading in the stored form, absent as zero.
func (r Reading) Raw() float64 {
	if !r.present {
		return 0
	}
	return r.value
}

// MarshalJSON writes the stored form.
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Raw())
}

// UnmarshalJSON reads the stored form.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw *float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*r = Absent
		return nil
	}
	*r = FromRaw(*raw)
	return nil
}

// Snapshot maps instrument keys to readings at one point in time.
type Snapshot map[string]Reading

// AllAbsent builds a snapshot where every key has no data.
func AllAbsent(keys []string) Snapshot {
	s := make(Snapshot, len(keys))
	for _, key := range keys {
		s[key] = Absent
	}
	return s
}

// SnapshotFromRaw decodes a stored snapshot.
func SnapshotFromRaw(raw map[string]float64) Snapshot {
	s := make(Snapshot, len(raw))
	for key, value := range raw {
		s[key] = FromRaw(value)
	}
	return s
}

// Get returns the reading for key; a missing key is Absent.
func (s Snapshot) Get(key string) Reading {
	if s == nil {
		return Absent
	}
	return s[key]
}

// Has reports whether key is part of the snapshot, with or without data.
func (s Snapshot) Has(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s[key]
	return ok
}

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for key, value := range s {
		out[key] = value
	}
	return out
}

// Raw encodes the snapshot in the stored form.
func (s Snapshot) Raw() map[string]float64 {
	out := make(map[string]float64, len(s))
	for key, value := range s {
		out[key] = value.Raw()
	}
	return out
}

// Keys returns the sorted instrument keys.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// HasData reports whether any reading is present.
func (s Snapshot) HasData() bool {
	for _, value := range s {
		if value.present {
			return true
		}
	}
	return false
}
