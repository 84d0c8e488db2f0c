// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	searchRequestsTotal        *prometheus.CounterVec
	quotaWaitsTotal            *prometheus.CounterVec
	quotaWaitSeconds           *prometheus.HistogramVec
	windowSplitsTotal          *prometheus.CounterVec
	fragmentsWrittenTotal      prometheus.Counter
	recordsWrittenTotal        prometheus.Counter
	transportFailuresTotal     *prometheus.CounterVec
	ledgerEntriesTotal         prometheus.Counter
	shardsWrittenTotal         prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		searchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_search_requests_total",
				Help: "Total number of search API requests, labeled by kind (probe or page).",
			},
			[]string{"kind"},
		)

		quotaWaitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_quota_waits_total",
				Help: "Total number of times the quota gate blocked, labeled by resource.",
			},
			[]string{"resource"},
		)

		quotaWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_quota_wait_seconds",
				Help:    "Histogram of quota gate wait durations.",
				Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 3600},
			},
			[]string{"resource"},
		)

		windowSplitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_window_splits_total",
				Help: "Total number of windows split for exceeding the result cap, labeled by level.",
			},
			[]string{"level"},
		)

		fragmentsWrittenTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_fragments_written_total",
				Help: "Total number of page fragments written.",
			},
		)

		recordsWrittenTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_records_written_total",
				Help: "Total number of records written into fragments.",
			},
		)

		transportFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_transport_failures_total",
				Help: "Total number of failed HTTP attempts, labeled by outcome (retried or exhausted).",
			},
			[]string{"outcome"},
		)

		ledgerEntriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_ledger_entries_total",
				Help: "Total number of progress ledger entries appended.",
			},
		)

		shardsWrittenTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_shards_written_total",
				Help: "Total number of dataset shards written.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSearch counts one search request of the given kind.
func ObserveSearch(kind string) {
	Init()
	searchRequestsTotal.WithLabelValues(kind).Inc()
}

// ObserveQuotaWait records one blocking wait on a quota resource.
func ObserveQuotaWait(resource string, duration time.Duration) {
	Init()
	quotaWaitsTotal.WithLabelValues(resource).Inc()
	quotaWaitSeconds.WithLabelValues(resource).Observe(duration.Seconds())
}

// ObserveSplit counts one window split at the given level.
func ObserveSplit(level string) {
	Init()
	windowSplitsTotal.WithLabelValues(level).Inc()
}

// ObserveFragment counts one written fragment and its records.
func ObserveFragment(records int) {
	Init()
	fragmentsWrittenTotal.Inc()
	if records > 0 {
		recordsWrittenTotal.Add(float64(records))
	}
}

// ObserveTransportFailure counts a failed HTTP attempt.
func ObserveTransportFailure(outcome string) {
	Init()
	transportFailuresTotal.WithLabelValues(outcome).Inc()
}

// ObserveLedgerEntry counts one appended ledger entry.
func ObserveLedgerEntry() {
	Init()
	ledgerEntriesTotal.Inc()
}

// ObserveShard counts one written shard.
func ObserveShard() {
	Init()
	shardsWrittenTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
