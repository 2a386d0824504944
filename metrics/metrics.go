// Package metrics records dispatch outcomes in pluggable sinks.
package metrics

import "time"

// Outcome labels the result of a dispatch or completion event.
const (
	OutcomeAssigned     = "assigned"
	OutcomeUnassignable = "unassignable"
	OutcomeRejected     = "rejected"
	OutcomeCompleted    = "completed"
)

// RideEvent captures one ride transition for the metrics pipeline.
type RideEvent struct {
	RideID   string
	DriverID string
	Outcome  string
	Time     time.Time
	// Duration is set on completion events: time between assignment and
	// the completion firing.
	Duration time.Duration
}

// Sink records ride events.
type Sink interface {
	RecordRide(RideEvent) error
}

// NopSink discards all events.
type NopSink struct{}

// RecordRide implements Sink.
func (NopSink) RecordRide(RideEvent) error { return nil }

// Config holds metrics sink settings.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}
