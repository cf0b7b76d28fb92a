package metrics

import "time"

// MultiSink fanouts protocol events to multiple sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordEnvelopeSent forwards the event to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordEnvelopeSent(docType, precedence string) error {
	for _, s := range m.Sinks {
		if err := s.RecordEnvelopeSent(docType, precedence); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordEnvelopeReceived(docType string) error {
	for _, s := range m.Sinks {
		if err := s.RecordEnvelopeReceived(docType); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordRejection(reason string) error {
	for _, s := range m.Sinks {
		if err := s.RecordRejection(reason); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordEscalation(precedence string) error {
	for _, s := range m.Sinks {
		if err := s.RecordEscalation(precedence); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordAckLatency(precedence string, latency time.Duration) error {
	for _, s := range m.Sinks {
		if err := s.RecordAckLatency(precedence, latency); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordPhaseTransition(phase string) error {
	for _, s := range m.Sinks {
		if err := s.RecordPhaseTransition(phase); err != nil {
			return err
		}
	}
	return nil
}
