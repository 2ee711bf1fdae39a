package jobworker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsProcessed counts jobs by terminal status.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evalforge",
		Subsystem: "worker",
		Name:      "jobs_processed_total",
		Help:      "Jobs processed by terminal status.",
	}, []string{"status"})

	// JobsInFlight gauges jobs currently owned by the worker.
	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "evalforge",
		Subsystem: "worker",
		Name:      "jobs_in_flight",
		Help:      "Jobs currently being processed.",
	})

	// LLMCallDuration observes wall-clock seconds per LLM call.
	LLMCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evalforge",
		Subsystem: "llm",
		Name:      "call_duration_seconds",
		Help:      "LLM call duration by provider and method.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"provider", "method"})
)
