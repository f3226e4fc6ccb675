package metrics

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const sourceCountTimeout = 2 * time.Second

// sourceTables are the external data source tables reported as row gauges.
var sourceTables = map[string]string{
	"pressure": "SELECT COUNT(*) FROM tm_sol_09",
	"unit":     "SELECT COUNT(*) FROM uma_09",
	"history":  "SELECT COUNT(*) FROM history_entries",
}

// sourceRowsCollector counts rows lazily on every scrape.
type sourceRowsCollector struct {
	db     *sql.DB
	logger *log.Logger
	desc   *prometheus.Desc
}

func newSourceRowsCollector(db *sql.DB, logger *log.Logger) *sourceRowsCollector {
	return &sourceRowsCollector{
		db:     db,
		logger: logger,
		desc: prometheus.NewDesc(
			metricPrefix+"db_rows",
			"Rows stored per plantwatch table",
			[]string{"table"}, nil,
		),
	}
}

func (c *sourceRowsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *sourceRowsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), sourceCountTimeout)
	defer cancel()
	for table, query := range sourceTables {
		var count int64
		if err := c.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
			// Tables may be absent depending on the configured backends.
			if c.logger != nil {
				c.logger.Printf("metrics count error: table=%s err=%v", table, err)
			}
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(count), table)
	}
}

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	if db == nil {
		return
	}
	prometheus.MustRegister(newSourceRowsCollector(db, logger))
}
