package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg              *prometheus.Registry
	RunsTotal        *prometheus.CounterVec
	RecordsProcessed *prometheus.CounterVec
	FeedFetchErrors  prometheus.Counter
	RunDurationSec   prometheus.Histogram
	LastApplyAgeSec  prometheus.Gauge
	CompletionsTotal *prometheus.CounterVec
	BulkRowsTotal    *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "elmsync_runs_total"}, []string{"trigger"})
	records := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "elmsync_records_processed_total"}, []string{"outcome"})
	fetchErrors := prometheus.NewCounter(prometheus.CounterOpts{Name: "elmsync_feed_fetch_errors_total"})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "elmsync_run_duration_seconds",
		Buckets: prometheus.DefBuckets,
	})
	lastApplyAge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "elmsync_last_apply_age_seconds"})
	completions := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "elmsync_completions_total"}, []string{"outcome"})
	bulkRows := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "elmsync_bulk_rows_total"}, []string{"outcome"})

	r.MustRegister(runs, records, fetchErrors, runDuration, lastApplyAge, completions, bulkRows)
	return &Registry{
		reg:              r,
		RunsTotal:        runs,
		RecordsProcessed: records,
		FeedFetchErrors:  fetchErrors,
		RunDurationSec:   runDuration,
		LastApplyAgeSec:  lastApplyAge,
		CompletionsTotal: completions,
		BulkRowsTotal:    bulkRows,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
