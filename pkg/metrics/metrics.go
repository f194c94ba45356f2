// Package metrics provides access to Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tiv"

// Cache
var (
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
		},
		[]string{"cache"},
	)
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
		},
		[]string{"cache"},
	)
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
		},
		[]string{"cache"},
	)
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "size_bytes",
		},
		[]string{"cache"},
	)
)

// Loads
var (
	Loads = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "total",
		},
	)
	LoadErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "errors_total",
		},
	)
	LoadsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "deduplicated_total",
		},
	)
	DecodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "decode_duration_seconds",
			Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5},
		},
	)
	UploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "upload_duration_seconds",
			Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
		},
	)
)

// Init values for common labels.
func init() {
	for _, cache := range []string{"bitmap", "image"} {
		CacheHits.With(prometheus.Labels{"cache": cache}).Add(0)
		CacheMisses.With(prometheus.Labels{"cache": cache}).Add(0)
		CacheEvictions.With(prometheus.Labels{"cache": cache}).Add(0)
		CacheSize.With(prometheus.Labels{"cache": cache}).Set(0)
	}
}
