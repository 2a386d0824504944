package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records ride events in Prometheus metrics.
type PromSink struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPromSink registers ride metrics on the provided Prometheus registerer.
// If reg is nil, the default registerer is used. If the collectors are
// already registered, the existing ones are reused.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ride_events_total",
		Help: "Total number of ride events",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ride_duration_seconds",
		Help:    "Time between assignment and completion",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	if err := reg.Register(events); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			events = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(duration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			duration = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{events: events, duration: duration}, nil
}

// RecordRide increments the event counter and, for completions, observes
// the ride duration.
func (s *PromSink) RecordRide(ev RideEvent) error {
	s.events.WithLabelValues(ev.Outcome).Inc()
	if ev.Outcome == OutcomeCompleted && ev.Duration > 0 {
		s.duration.WithLabelValues(ev.Outcome).Observe(ev.Duration.Seconds())
	}
	return nil
}
