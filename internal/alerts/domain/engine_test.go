package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	plant "plantwatch/internal/plant/domain"
)

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(DefaultRules())
	require.NoError(t, err)
	return engine
}

func TestEngineTemperatureBoundaries(t *testing.T) {
	engine := defaultEngine(t)
	cases := []struct {
		name     string
		reading  plant.Reading
		violated bool
	}{
		{"lower bound", plant.Present(18.0), false},
		{"below lower", plant.Present(17.9), true},
		{"upper bound", plant.Present(25.0), false},
		{"above upper", plant.Present(25.1), true},
		{"sentinel zero", plant.FromRaw(0), false},
		{"absent", plant.Absent, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.Evaluate(plant.Snapshot{plant.KeyTemperature: tc.reading}, "Row 1")
			if tc.violated {
				require.Len(t, got, 1)
				assert.Equal(t, "AHU 09", got[0].Rule.Page)
				assert.Contains(t, got[0].Cause, "(Row 1)")
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestEngineUpperOnlyRules(t *testing.T) {
	engine := defaultEngine(t)
	snapshot := plant.Snapshot{
		plant.KeyFilter1:    plant.Present(150),
		plant.KeyFilter2:    plant.Present(300.5),
		plant.KeyFilter3:    plant.Present(-1000),
		plant.KeyFinalStage: plant.Present(601),
	}
	got := engine.Evaluate(snapshot, "Row 4")
	require.Len(t, got, 2)
	assert.Equal(t, plant.KeyFilter2, got[0].Rule.InstrumentKey)
	assert.Equal(t, "FEL 2 pressure exceeds limit: 300.5 Pa (Max: 300 Pa) (Row 4)", got[0].Cause)
	assert.Equal(t, plant.KeyFinalStage, got[1].Rule.InstrumentKey)
}

func TestEngineOneViolationPerRulePerEvaluation(t *testing.T) {
	engine := defaultEngine(t)
	snapshot := plant.Snapshot{
		plant.KeyTemperature: plant.Present(30),
		plant.KeyHumidity:    plant.Present(10),
		plant.GaugeKey(24):   plant.Present(-30),
	}
	first := engine.Evaluate(snapshot, "Row 1")
	second := engine.Evaluate(snapshot, "Row 1")
	assert.Len(t, first, 3)
	assert.Len(t, second, 3)
	assert.Equal(t, "Pressure out of specification: -30 Pa (Row 1)", first[2].Cause)
}

func TestNewEngineRejectsInvalidRules(t *testing.T) {
	_, err := NewEngine([]ThresholdRule{{InstrumentKey: "x"}})
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = NewEngine([]ThresholdRule{{Lower: Bound(1)}})
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = NewEngine([]ThresholdRule{{InstrumentKey: "x", Lower: Bound(5), Upper: Bound(1)}})
	assert.ErrorIs(t, err, ErrInvalidRule)
}
