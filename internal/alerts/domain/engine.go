package alerts

import (
	plant "plantwatch/internal/plant/domain"
)

// Engine evaluates snapshots against a fixed rule table.
type Engine struct {
	rules []ThresholdRule
}

// NewEngine validates rules and builds an engine.
func NewEngine(rules []ThresholdRule) (*Engine, error) {
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
	}
	return &Engine{rules: append([]ThresholdRule(nil), rules...)}, nil
}

// Rules returns a copy of the rule table.
func (e *Engine) Rules() []ThresholdRule {
	return append([]ThresholdRule(nil), e.rules...)
}

// Evaluate returns one violation per broken rule in rule order. Absent readings never violate.
func (e *Engine) Evaluate(snapshot plant.Snapshot, rowContext string) []Violation {
	if e == nil {
		return nil
	}
	var out []Violation
	for _, rule := range e.rules {
		value, ok := snapshot.Get(rule.InstrumentKey).Value()
		if !ok || !rule.Violated(value) {
			continue
		}
		out = append(out, Violation{
			Rule:  rule,
			Value: value,
			Cause: rule.Cause(value, rowContext),
		})
	}
	return out
}
