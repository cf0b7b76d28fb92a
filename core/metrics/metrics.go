// Package metrics defines the sink interface the protocol core records
// observations through. Implementations live under infra/metrics.
package metrics

import (
	"time"

	"github.com/kilianp07/usef/core/factory"
)

// Sink receives protocol-level observations. Implementations must be
// safe for concurrent use.
type Sink interface {
	// RecordEnvelopeSent counts an outbound envelope by document type and
	// precedence.
	RecordEnvelopeSent(docType, precedence string) error
	// RecordEnvelopeReceived counts a verified inbound envelope.
	RecordEnvelopeReceived(docType string) error
	// RecordRejection counts an inbound document rejected with reason.
	RecordRejection(reason string) error
	// RecordEscalation counts a tracked envelope whose deadline expired.
	RecordEscalation(precedence string) error
	// RecordAckLatency observes the time between send and correlated
	// response for a tracked envelope.
	RecordAckLatency(precedence string, latency time.Duration) error
	// RecordPhaseTransition counts a PTU lifecycle transition.
	RecordPhaseTransition(phase string) error
}

// NopSink discards all observations.
type NopSink struct{}

func (NopSink) RecordEnvelopeSent(string, string) error          { return nil }
func (NopSink) RecordEnvelopeReceived(string) error              { return nil }
func (NopSink) RecordRejection(string) error                     { return nil }
func (NopSink) RecordEscalation(string) error                    { return nil }
func (NopSink) RecordAckLatency(string, time.Duration) error     { return nil }
func (NopSink) RecordPhaseTransition(string) error               { return nil }

// Config defines settings for metric sinks. PrometheusPort is used by the
// exposition server only; the sinks themselves don't read it.
type Config struct {
	Sinks          []factory.ModuleConfig `json:"sinks"`
	PrometheusPort string                 `json:"prometheus_port"`
}
