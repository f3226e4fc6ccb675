package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "plantwatch_"

	resultSuccess = "success"
	resultError   = "error"

	fetchResultData         = "data"
	fetchResultNoData       = "no_data"
	fetchResultError        = "error"
	fetchResultDisconnected = "disconnected"
)

var (
	registerOnce sync.Once

	scheduleFiresTotal      *prometheus.CounterVec
	scheduleCallbackFailure prometheus.Counter
	scheduleTimes           prometheus.Gauge

	ledgerMutationsTotal *prometheus.CounterVec
	ledgerEntries        prometheus.Gauge
	ledgerPersistErrors  *prometheus.CounterVec

	rotatorFetchTotal   *prometheus.CounterVec
	rotatorFetchLatency *prometheus.HistogramVec
	rotatorAdvances     *prometheus.CounterVec
	rotatorRowIndex     prometheus.Gauge

	alertsRecordedTotal *prometheus.CounterVec
	alertsOutstanding   prometheus.Gauge

	writeBackTotal *prometheus.CounterVec

	alertNotifyDropped *prometheus.CounterVec
)

// Init registers acquisition metrics and, when db is set, source-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		scheduleFiresTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "schedule_fires_total",
				Help: "Total scheduled capture firings by time of day",
			},
			[]string{"time"},
		)
		scheduleCallbackFailure = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "schedule_callback_failures_total",
				Help: "Total failed alarm callbacks",
			},
		)
		scheduleTimes = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "schedule_times",
				Help: "Registered capture times",
			},
		)

		ledgerMutationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ledger_mutations_total",
				Help: "Total ledger mutations by kind and origin",
			},
			[]string{"kind", "origin"},
		)
		ledgerEntries = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "ledger_entries",
				Help: "Entries currently held in the history ledger",
			},
		)
		ledgerPersistErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "persist_errors_total",
				Help: "Total persistence failures by store and operation",
			},
			[]string{"store", "op"},
		)

		rotatorFetchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rotator_fetch_total",
				Help: "Total active row fetches by outcome",
			},
			[]string{"result"},
		)
		rotatorFetchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "rotator_fetch_latency_seconds",
				Help:    "Active row fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		rotatorAdvances = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rotator_advances_total",
				Help: "Total active row changes by trigger",
			},
			[]string{"trigger"},
		)
		rotatorRowIndex = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "rotator_row_index",
				Help: "Zero-based index of the active row",
			},
		)

		alertsRecordedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_recorded_total",
				Help: "Total alert records by page",
			},
			[]string{"page"},
		)
		alertsOutstanding = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "alerts_outstanding",
				Help: "Alert records not yet cleared",
			},
		)

		alertNotifyDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_notify_dropped_total",
				Help: "Alert records not handed to notifiers by reason",
			},
			[]string{"reason"},
		)

		writeBackTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "source_write_total",
				Help: "Total snapshot write-backs to the data source by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			scheduleFiresTotal,
			scheduleCallbackFailure,
			scheduleTimes,
			ledgerMutationsTotal,
			ledgerEntries,
			ledgerPersistErrors,
			rotatorFetchTotal,
			rotatorFetchLatency,
			rotatorAdvances,
			rotatorRowIndex,
			alertsRecordedTotal,
			alertsOutstanding,
			writeBackTotal,
			alertNotifyDropped,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// IncScheduleFire counts one alarm firing.
func IncScheduleFire(at string) {
	if at == "" {
		at = "unknown"
	}
	if scheduleFiresTotal != nil {
		scheduleFiresTotal.WithLabelValues(at).Inc()
	}
}

// IncScheduleCallbackFailure counts one failed alarm callback.
func IncScheduleCallbackFailure() {
	if scheduleCallbackFailure != nil {
		scheduleCallbackFailure.Inc()
	}
}

// SetScheduleTimes sets the registered capture time count.
func SetScheduleTimes(count int) {
	if scheduleTimes != nil {
		scheduleTimes.Set(float64(count))
	}
}

// ObserveLedgerMutation records a ledger append or clear and the resulting size.
func ObserveLedgerMutation(kind, origin string, size int) {
	if kind == "" {
		kind = "unknown"
	}
	if origin == "" {
		origin = "none"
	}
	if ledgerMutationsTotal != nil {
		ledgerMutationsTotal.WithLabelValues(kind, origin).Inc()
	}
	if ledgerEntries != nil {
		ledgerEntries.Set(float64(size))
	}
}

// IncPersistError counts a failed load or save.
func IncPersistError(store, op string) {
	if ledgerPersistErrors != nil {
		ledgerPersistErrors.WithLabelValues(store, op).Inc()
	}
}

// ObserveFetch records fetch latency and outcome.
func ObserveFetch(result string, duration time.Duration) {
	if result == "" {
		result = fetchResultError
	}
	if rotatorFetchTotal != nil {
		rotatorFetchTotal.WithLabelValues(result).Inc()
	}
	if rotatorFetchLatency != nil {
		rotatorFetchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveAdvance records a row change and the new index.
func ObserveAdvance(trigger string, index int) {
	if trigger == "" {
		trigger = "unknown"
	}
	if rotatorAdvances != nil {
		rotatorAdvances.WithLabelValues(trigger).Inc()
	}
	if rotatorRowIndex != nil {
		rotatorRowIndex.Set(float64(index))
	}
}

// IncAlertRecorded counts one alert record.
func IncAlertRecorded(page string) {
	if page == "" {
		page = "unknown"
	}
	if alertsRecordedTotal != nil {
		alertsRecordedTotal.WithLabelValues(page).Inc()
	}
}

// SetAlertsOutstanding sets the outstanding alert count.
func SetAlertsOutstanding(count int) {
	if alertsOutstanding != nil {
		alertsOutstanding.Set(float64(count))
	}
}

// IncAlertNotifyDropped counts one record that never reached the notifiers.
func IncAlertNotifyDropped(reason string) {
	if alertNotifyDropped != nil {
		alertNotifyDropped.WithLabelValues(reason).Inc()
	}
}

// IncWriteBack counts a snapshot write-back.
func IncWriteBack(result string) {
	if result == "" {
		result = resultSuccess
	}
	if writeBackTotal != nil {
		writeBackTotal.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	FetchResultData         = fetchResultData
	FetchResultNoData       = fetchResultNoData
	FetchResultError        = fetchResultError
	FetchResultDisconnected = fetchResultDisconnected
)
