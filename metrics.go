package blade

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	compiles *prometheus.CounterVec
	lookups  *prometheus.CounterVec
	renders  *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		compiles: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blade_compiles_total",
				Help: "Total number of template compilations",
			},
			[]string{"kind"},
		)),
		lookups: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blade_cache_lookups_total",
				Help: "Compiled template cache lookups by layer and result",
			},
			[]string{"layer", "result"},
		)),
		renders: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blade_render_duration_seconds",
				Help:    "Top-level render duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)),
		failures: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blade_render_errors_total",
				Help: "Total number of failed top-level renders",
			},
			[]string{"kind"},
		)),
	}
}

// register adds c to reg. Engines sharing a registry share the collectors
// registered first.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *metrics) lookup(layer string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(layer, result).Inc()
}

func (m *metrics) observe(kind string, start time.Time, err error) {
	m.renders.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(kind).Inc()
	}
}
