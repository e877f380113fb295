package logger

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	registerOnce sync.Once //nolint:gochecknoglobals
	statements   *prometheus.CounterVec

	writeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rolemirror",
		Subsystem: "log",
		Name:      "write_failures_total",
		Help:      "Log events that could not be written.",
	})
)

// PrometheusHook counts log statements per level.
type PrometheusHook struct {
	service string
}

// Run implements zerolog.Hook.
func (h PrometheusHook) Run(_ *zerolog.Event, level zerolog.Level, _ string) {
	if level == zerolog.NoLevel || statements == nil {
		return
	}

	statements.WithLabelValues(h.service, level.String()).Inc()
}

// NewPrometheusHook returns the hook. The counter is registered on first use; Init may run
// more than once in tests.
func NewPrometheusHook(service string) PrometheusHook {
	registerOnce.Do(func() {
		statements = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rolemirror",
			Subsystem: "log",
			Name:      "statements_total",
			Help:      "Log statements by service and level.",
		}, []string{"service", "level"})
	})

	return PrometheusHook{service: service}
}
