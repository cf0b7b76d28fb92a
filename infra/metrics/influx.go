package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/usef/core/metrics"
	"github.com/kilianp07/usef/infra/logger"
)

// InfluxSink writes protocol events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordEnvelopeSent writes an outbound envelope event.
func (s *InfluxSink) RecordEnvelopeSent(docType, precedence string) error {
	p := write.NewPointWithMeasurement("envelope_sent").
		AddTag("document_type", docType).
		AddTag("precedence", precedence).
		AddTag("component", "exchange").
		AddField("count", 1).
		SetTime(time.Now())
	return s.write(p)
}

// RecordEnvelopeReceived writes a verified inbound envelope event.
func (s *InfluxSink) RecordEnvelopeReceived(docType string) error {
	p := write.NewPointWithMeasurement("envelope_received").
		AddTag("document_type", docType).
		AddTag("component", "exchange").
		AddField("count", 1).
		SetTime(time.Now())
	return s.write(p)
}

// RecordRejection writes a rejection with its protocol reason token.
func (s *InfluxSink) RecordRejection(reason string) error {
	p := write.NewPointWithMeasurement("envelope_rejected").
		AddTag("reason", reason).
		AddTag("component", "exchange").
		AddField("count", 1).
		SetTime(time.Now())
	return s.write(p)
}

// RecordEscalation writes an expired acknowledgement deadline event.
func (s *InfluxSink) RecordEscalation(precedence string) error {
	p := write.NewPointWithMeasurement("ack_escalation").
		AddTag("precedence", precedence).
		AddTag("component", "exchange").
		AddField("count", 1).
		SetTime(time.Now())
	return s.write(p)
}

// RecordAckLatency writes the observed round-trip of a tracked envelope.
func (s *InfluxSink) RecordAckLatency(precedence string, latency time.Duration) error {
	p := write.NewPointWithMeasurement("ack_latency").
		AddTag("precedence", precedence).
		AddTag("component", "exchange").
		AddField("latency_ms", float64(latency.Milliseconds())).
		SetTime(time.Now())
	return s.write(p)
}

// RecordPhaseTransition writes a PTU lifecycle transition.
func (s *InfluxSink) RecordPhaseTransition(phase string) error {
	p := write.NewPointWithMeasurement("phase_transition").
		AddTag("phase", phase).
		AddTag("component", "lifecycle").
		AddField("count", 1).
		SetTime(time.Now())
	return s.write(p)
}
