// Package transport moves signed envelopes between role nodes: outbound
// payloads are POSTed to the recipient's resolved endpoint, inbound
// payloads arrive on an HTTP receiving endpoint that feeds the incoming
// queue.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kilianp07/usef/core/exchange"
	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/registry"
	"github.com/kilianp07/usef/infra/logger"
)

// Poster delivers outbound envelopes over HTTP.
type Poster struct {
	client *http.Client
	dir    registry.Directory
	log    logger.Logger
}

// NewPoster creates a Poster with the given request timeout.
func NewPoster(dir registry.Directory, timeout time.Duration, log logger.Logger) *Poster {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Poster{client: &http.Client{Timeout: timeout}, dir: dir, log: log}
}

// recipientOf extracts the addressing fields from a serialized envelope.
func recipientOf(payload []byte) (model.Participant, error) {
	var meta struct {
		RecipientDomain string `json:"recipient_domain"`
		RecipientRole   string `json:"recipient_role"`
	}
	if err := json.Unmarshal(payload, &meta); err != nil {
		return model.Participant{}, fmt.Errorf("parse envelope addressing: %w", err)
	}
	role, ok := model.ParseRole(meta.RecipientRole)
	if !ok {
		return model.Participant{}, fmt.Errorf("unknown recipient role %q", meta.RecipientRole)
	}
	return model.Participant{Role: role, Domain: meta.RecipientDomain}, nil
}

// Deliver posts the payload to the recipient named inside it.
func (p *Poster) Deliver(ctx context.Context, payload []byte) error {
	recipient, err := recipientOf(payload)
	if err != nil {
		return err
	}
	endpoint, err := p.dir.Endpoint(recipient)
	if err != nil {
		return fmt.Errorf("resolve endpoint of %s: %w", recipient, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to %s: %w", endpoint, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post to %s: status %s", endpoint, resp.Status)
	}
	p.log.Debugw("envelope delivered", map[string]any{"recipient": recipient.String(), "endpoint": endpoint})
	return nil
}

// NewReceiver returns the HTTP handler counterpart: it accepts POSTed
// envelopes and feeds them to the incoming queue. Verification happens
// later, on the queue consumer side.
func NewReceiver(incoming exchange.Queue, maxBytes int64, log logger.Logger) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		if len(payload) == 0 {
			http.Error(w, "empty message", http.StatusBadRequest)
			return
		}
		if err := incoming.Publish(payload); err != nil {
			log.Errorf("enqueue inbound envelope: %v", err)
			http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
}
