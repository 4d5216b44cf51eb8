package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbound call Prometheus metrics (IQR service and document index).
var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of outbound requests",
		},
		[]string{"service", "op", "status"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Outbound request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service", "op"},
	)

	UpstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Total number of retried outbound requests",
		},
		[]string{"service", "op"},
	)

	ResultDocuments = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "result_documents",
			Help:      "Documents returned per results page",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 11),
		},
	)
)

var registerOnce sync.Once

// RegisterUpstreamMetrics registers outbound call metrics. Safe to call more than once.
func RegisterUpstreamMetrics(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(UpstreamRequestsTotal, UpstreamRequestDuration, UpstreamRetriesTotal, ResultDocuments)
	})
}

// ObserveUpstream records one outbound call. status 0 means no response was received.
func ObserveUpstream(service, op string, status int, start time.Time) {
	label := "error"
	if status != 0 {
		label = strconv.Itoa(status)
	}
	UpstreamRequestsTotal.WithLabelValues(service, op, label).Inc()
	UpstreamRequestDuration.WithLabelValues(service, op).Observe(time.Since(start).Seconds())
}
