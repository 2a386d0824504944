package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ridesDispatched     *prometheus.CounterVec
	ridesCompleted      prometheus.Counter
	driversAvailable    prometheus.Gauge
	invariantViolations prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Counter, prometheus.Gauge, prometheus.Counter) {
	rides := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rides_dispatched_total",
			Help: "Number of ride requests processed, by outcome",
		},
		[]string{"outcome"},
	)
	completed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rides_completed_total",
			Help: "Number of rides completed",
		},
	)
	avail := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "drivers_available",
			Help: "Number of drivers currently available",
		},
	)
	viol := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_invariant_violations_total",
			Help: "Number of lifecycle invariant violations detected",
		},
	)
	return rides, completed, avail, viol
}

func init() {
	ridesDispatched, ridesCompleted, driversAvailable, invariantViolations = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(ridesDispatched, ridesCompleted, driversAvailable, invariantViolations)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	ridesDispatched, ridesCompleted, driversAvailable, invariantViolations = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
