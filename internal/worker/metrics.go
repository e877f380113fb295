package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rolemirror",
		Subsystem: "worker",
		Name:      "jobs_total",
		Help:      "Processed sync jobs by lane and outcome.",
	}, []string{"lane", "outcome"})
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rolemirror",
		Subsystem: "worker",
		Name:      "tick_duration_seconds",
		Help:      "Duration of worker ticks that picked up at least one job.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), //nolint:mnd
	})
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rolemirror",
		Subsystem: "queue",
		Name:      "jobs",
		Help:      "Sync jobs by lane and status, refreshed by maintenance.",
	}, []string{"lane", "status"})
)
