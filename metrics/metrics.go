// Package metrics exposes the Prometheus counters and histograms the
// connection worker and panic recovery paths update.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "httpx"

var (
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connections_total",
		Help:      "Accepted TCP/TLS connections.",
	})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_active",
		Help:      "Connections currently being served.",
	})

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Requests handled, labeled by status class.",
	}, []string{"status_class"})

	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Time spent in handle_one from request parse to response Done.",
		Buckets:   prometheus.DefBuckets,
	})

	PanicTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "panic_total",
		Help:      "Handler panics recovered by the connection worker.",
	})
)
