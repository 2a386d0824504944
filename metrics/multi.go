package metrics

// MultiSink fans ride events out to multiple sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordRide forwards the event to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordRide(ev RideEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordRide(ev); err != nil {
			return err
		}
	}
	return nil
}
