// Package metrics provides Prometheus metrics for the Sevara BAA service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the request-path metric vectors.
type Metrics struct {
	TransitionCounter *prometheus.CounterVec
	DocumentDownloads prometheus.Counter
	RequestDuration   *prometheus.HistogramVec
}

// NewMetrics creates and registers the metric vectors on the registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		TransitionCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sevara_baa_transitions_total",
				Help: "Total number of agreement lifecycle transitions by action and result",
			},
			[]string{"action", "result"},
		),
		DocumentDownloads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sevara_baa_document_downloads_total",
				Help: "Total number of executed agreement document downloads",
			},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sevara_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	for _, c := range []prometheus.Collector{m.TransitionCounter, m.DocumentDownloads, m.RequestDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordTransition increments the transition counter.
func (m *Metrics) RecordTransition(action, result string) {
	m.TransitionCounter.WithLabelValues(action, result).Inc()
}
