package metrics

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gathered(t *testing.T, name string) map[string]float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	out := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			label := ""
			for _, lp := range m.GetLabel() {
				label += lp.GetName() + "=" + lp.GetValue() + ";"
			}
			switch {
			case m.GetCounter() != nil:
				out[label] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[label] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[label] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestHelpersRecordAfterInit(t *testing.T) {
	Init(nil, log.New(io.Discard, "", 0))
	Init(nil, nil)

	IncScheduleFire("08:00")
	IncScheduleFire("")
	ObserveLedgerMutation("append", "Automatic", 3)
	ObserveFetch(FetchResultData, 20*time.Millisecond)
	ObserveFetch("", time.Millisecond)
	ObserveAdvance("cycle", 2)
	SetAlertsOutstanding(4)
	IncWriteBack("")

	fires := gathered(t, "plantwatch_schedule_fires_total")
	assert.GreaterOrEqual(t, fires["time=08:00;"], 1.0)
	assert.GreaterOrEqual(t, fires["time=unknown;"], 1.0)

	assert.Equal(t, 3.0, gathered(t, "plantwatch_ledger_entries")[""])
	assert.Equal(t, 2.0, gathered(t, "plantwatch_rotator_row_index")[""])
	assert.Equal(t, 4.0, gathered(t, "plantwatch_alerts_outstanding")[""])

	fetches := gathered(t, "plantwatch_rotator_fetch_total")
	assert.GreaterOrEqual(t, fetches["result=data;"], 1.0)
	assert.GreaterOrEqual(t, fetches["result=error;"], 1.0)
	assert.GreaterOrEqual(t, gathered(t, "plantwatch_source_write_total")["result=success;"], 1.0)
}
