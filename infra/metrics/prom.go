package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/usef/core/metrics"
)

// PromSink records protocol events in Prometheus metrics.
type PromSink struct {
	sent        *prometheus.CounterVec
	received    *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	escalations *prometheus.CounterVec
	ackLatency  *prometheus.HistogramVec
	phases      *prometheus.CounterVec
}

// NewPromSink registers protocol metrics on the default Prometheus registerer.
// The exposition server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	sent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usef_envelopes_sent_total",
		Help: "Total number of outbound envelopes",
	}, []string{"document_type", "precedence"})
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usef_envelopes_received_total",
		Help: "Total number of verified inbound envelopes",
	}, []string{"document_type"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usef_rejections_total",
		Help: "Total number of rejected inbound documents",
	}, []string{"reason"})
	escalations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usef_escalations_total",
		Help: "Tracked envelopes whose acknowledgement deadline expired",
	}, []string{"precedence"})
	ackLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "usef_ack_latency_seconds",
		Help:    "Time between envelope send and correlated response",
		Buckets: prometheus.DefBuckets,
	}, []string{"precedence"})
	phases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usef_phase_transitions_total",
		Help: "PTU lifecycle phase transitions",
	}, []string{"phase"})

	s := &PromSink{
		sent:        sent,
		received:    received,
		rejections:  rejections,
		escalations: escalations,
		ackLatency:  ackLatency,
		phases:      phases,
	}
	collectors := []prometheus.Collector{sent, received, rejections, escalations, ackLatency, phases}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			switch i {
			case 0:
				s.sent = are.ExistingCollector.(*prometheus.CounterVec)
			case 1:
				s.received = are.ExistingCollector.(*prometheus.CounterVec)
			case 2:
				s.rejections = are.ExistingCollector.(*prometheus.CounterVec)
			case 3:
				s.escalations = are.ExistingCollector.(*prometheus.CounterVec)
			case 4:
				s.ackLatency = are.ExistingCollector.(*prometheus.HistogramVec)
			case 5:
				s.phases = are.ExistingCollector.(*prometheus.CounterVec)
			}
		}
	}
	return s, nil
}

func (s *PromSink) RecordEnvelopeSent(docType, precedence string) error {
	s.sent.WithLabelValues(docType, precedence).Inc()
	return nil
}

func (s *PromSink) RecordEnvelopeReceived(docType string) error {
	s.received.WithLabelValues(docType).Inc()
	return nil
}

func (s *PromSink) RecordRejection(reason string) error {
	s.rejections.WithLabelValues(reason).Inc()
	return nil
}

func (s *PromSink) RecordEscalation(precedence string) error {
	s.escalations.WithLabelValues(precedence).Inc()
	return nil
}

func (s *PromSink) RecordAckLatency(precedence string, latency time.Duration) error {
	s.ackLatency.WithLabelValues(precedence).Observe(latency.Seconds())
	return nil
}

func (s *PromSink) RecordPhaseTransition(phase string) error {
	s.phases.WithLabelValues(phase).Inc()
	return nil
}
