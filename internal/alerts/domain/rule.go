package alerts

import (
	"errors"
	"fmt"
	"strconv"

	plant "plantwatch/internal/plant/domain"
)

var (
	// ErrInvalidRule indicates a rule that cannot be evaluated.
	ErrInvalidRule = errors.New("alerts: invalid rule")
)

// ThresholdRule is the operating envelope of one instrument. A nil bound is not checked.
type ThresholdRule struct {
	InstrumentKey string
	Lower         *float64
	Upper         *float64
	Page          string
	Element       string
	Label         string
	Unit          string
}

// Validate checks the rule shape.
func (r ThresholdRule) Validate() error {
	if r.InstrumentKey == "" {
		return fmt.Errorf("%w: instrument key required", ErrInvalidRule)
	}
	if r.Lower == nil && r.Upper == nil {
		return fmt.Errorf("%w: %s has no bounds", ErrInvalidRule, r.InstrumentKey)
	}
	if r.Lower != nil && r.Upper != nil && *r.Lower > *r.Upper {
		return fmt.Errorf("%w: %s lower bound above upper bound", ErrInvalidRule, r.InstrumentKey)
	}
	return nil
}

// Violated reports whether value falls strictly outside the envelope.
func (r ThresholdRule) Violated(value float64) bool {
	if r.Lower != nil && value < *r.Lower {
		return true
	}
	return r.Upper != nil && value > *r.Upper
}

// Cause describes a violation for the operator.
func (r ThresholdRule) Cause(value float64, rowContext string) string {
	label := r.Label
	if label == "" {
		label = r.InstrumentKey
	}
	var cause string
	if r.Lower == nil {
		cause = fmt.Sprintf("%s exceeds limit: %s %s (Max: %s %s)", label, formatValue(value), r.Unit, formatValue(*r.Upper), r.Unit)
	} else {
		cause = fmt.Sprintf("%s out of specification: %s %s", label, formatValue(value), r.Unit)
	}
	if rowContext != "" {
		cause += " (" + rowContext + ")"
	}
	return cause
}

// Violation is one rule broken by one snapshot.
type Violation struct {
	Rule  ThresholdRule
	Value float64
	Cause string
}

// Bound returns a pointer to v for rule literals.
func Bound(v float64) *float64 {
	return &v
}

// DefaultRules returns the operating envelopes of room TM-SOL-09 and AHU 09.
func DefaultRules() []ThresholdRule {
	return []ThresholdRule{
		{InstrumentKey: plant.KeyTemperature, Lower: Bound(18), Upper: Bound(25), Page: "AHU 09", Element: "(Ret. Temp.)", Label: "Temperature", Unit: "°C"},
		{InstrumentKey: plant.KeyHumidity, Lower: Bound(30), Upper: Bound(65), Page: "AHU 09", Element: "(Ret. Hum.)", Label: "Humidity", Unit: "%"},
		{InstrumentKey: plant.GaugeKey(24), Lower: Bound(-25), Upper: Bound(-13), Page: "TM-SOL", Element: "(M-COM-177)", Label: "Pressure", Unit: "Pa"},
		{InstrumentKey: plant.KeyFilter1, Upper: Bound(150), Page: "AHU 09", Element: "(FEL 1)", Label: "FEL 1 pressure", Unit: "Pa"},
		{InstrumentKey: plant.KeyFilter2, Upper: Bound(300), Page: "AHU 09", Element: "(FEL 2)", Label: "FEL 2 pressure", Unit: "Pa"},
		{InstrumentKey: plant.KeyFilter3, Upper: Bound(450), Page: "AHU 09", Element: "(FEL 3)", Label: "FEL 3 pressure", Unit: "Pa"},
		{InstrumentKey: plant.KeyFinalStage, Upper: Bound(600), Page: "AHU 09", Element: "(NG)", Label: "NG pressure", Unit: "Pa"},
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
