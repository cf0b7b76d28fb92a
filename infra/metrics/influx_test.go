package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	coremetrics "github.com/kilianp07/usef/core/metrics"
)

func TestInfluxSink_RecordEnvelopeSent(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	if err := sink.RecordEnvelopeSent("Prognosis", "ROUTINE"); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if !strings.HasPrefix(body, "envelope_sent,") {
		t.Errorf("unexpected measurement: %s", body)
	}
	if !strings.Contains(body, "document_type=Prognosis") || !strings.Contains(body, "precedence=ROUTINE") {
		t.Errorf("missing tags: %s", body)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if _, ok := sink.(coremetrics.NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", sink)
	}
	if !called {
		t.Fatal("health endpoint not called")
	}
}

func TestPromSink_RegistersOnce(t *testing.T) {
	// Registering twice on the same registerer must reuse the existing
	// collectors instead of failing.
	s1, err := NewPromSink(coremetrics.Config{})
	if err != nil {
		t.Fatalf("first registration: %v", err)
	}
	s2, err := NewPromSink(coremetrics.Config{})
	if err != nil {
		t.Fatalf("second registration: %v", err)
	}
	if err := s1.RecordEnvelopeSent("FlexOrder", "CRITICAL"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s2.RecordRejection("InvalidMessage"); err != nil {
		t.Fatalf("record: %v", err)
	}
}
