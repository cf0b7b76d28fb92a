// Package exchange implements the delivery engine: outbound envelopes
// get precedence-based reliability (fire-and-forget, or tracked with a
// per-conversation acknowledgement deadline and escalation), inbound
// envelopes are verified, deduplicated and routed to their registered
// handler.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/usef/core/events"
	"github.com/kilianp07/usef/core/metrics"
	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/planboard"
	"github.com/kilianp07/usef/core/registry"
	"github.com/kilianp07/usef/core/router"
	"github.com/kilianp07/usef/core/scheduler"
	"github.com/kilianp07/usef/core/sign"
	"github.com/kilianp07/usef/infra/logger"
	"github.com/kilianp07/usef/internal/eventbus"
)

// pendingAck tracks one tracked outbound envelope until its correlated
// response arrives or its deadline fires. The mutex is the single
// mutual-exclusion point per conversation: whichever of the two paths
// flips resolved first wins, the loser becomes a no-op.
type pendingAck struct {
	mu          sync.Mutex
	resolved    bool
	armedAt     time.Time
	deadline    time.Duration
	payload     []byte
	envelope    model.Envelope
	cancelTimer func() bool
}

// Engine is the delivery engine of one role instance.
type Engine struct {
	me     model.Participant
	cfg    Config
	signer *sign.Signer
	dir    registry.Directory
	sched  scheduler.Scheduler
	rt     *router.Router

	outgoing Queue
	notSent  Queue

	msgLog planboard.MessageLog
	docs   planboard.DocumentStore

	sink     metrics.Sink
	failures *eventbus.Bus[events.DeliveryFailedEvent]
	log      logger.Logger

	mu      sync.Mutex
	pending map[string]*pendingAck
	seq     int64

	now   func() time.Time
	newID func() string
}

// New creates an Engine for the local participant me.
func New(me model.Participant, cfg Config, signer *sign.Signer, dir registry.Directory, sched scheduler.Scheduler, outgoing, notSent Queue, rt *router.Router, msgLog planboard.MessageLog, docs planboard.DocumentStore, sink metrics.Sink, failures *eventbus.Bus[events.DeliveryFailedEvent], log logger.Logger) (*Engine, error) {
	if signer == nil || dir == nil || sched == nil || outgoing == nil || notSent == nil || rt == nil {
		return nil, fmt.Errorf("exchange: nil parameter provided to New")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if failures == nil {
		failures = eventbus.New[events.DeliveryFailedEvent]()
	}
	return &Engine{
		me:       me,
		cfg:      cfg,
		signer:   signer,
		dir:      dir,
		sched:    sched,
		outgoing: outgoing,
		notSent:  notSent,
		rt:       rt,
		msgLog:   msgLog,
		docs:     docs,
		sink:     sink,
		failures: failures,
		log:      log,
		pending:  make(map[string]*pendingAck),
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// Deadline returns the acknowledgement deadline of a tracked precedence:
// the PTU duration scaled by the precedence's notification factor.
func (e *Engine) Deadline(p model.Precedence) time.Duration {
	factor := e.cfg.TransactionalFactor
	if p == model.PrecedenceCritical {
		factor = e.cfg.CriticalFactor
	}
	ms := float64(e.cfg.PtuDurationMinutes) * factor * float64(time.Minute/time.Millisecond)
	return time.Duration(ms) * time.Millisecond
}

// Send serializes, signs and enqueues the document, opening a new
// conversation. TRANSACTIONAL and CRITICAL sends arm a pending
// acknowledgement.
func (e *Engine) Send(doc model.Document, precedence model.Precedence) (model.Envelope, error) {
	return e.send(doc, precedence, e.newID(), false)
}

// Respond sends the document as the correlated answer within an existing
// conversation.
func (e *Engine) Respond(doc model.Document, precedence model.Precedence, conversationID string) (model.Envelope, error) {
	return e.send(doc, precedence, conversationID, true)
}

func (e *Engine) send(doc model.Document, precedence model.Precedence, conversationID string, response bool) (model.Envelope, error) {
	e.mu.Lock()
	e.seq++
	seq := doc.SequenceNumber
	if seq == 0 {
		seq = e.seq
	}
	e.mu.Unlock()

	env := model.Envelope{
		MessageID:      e.newID(),
		ConversationID: conversationID,
		Sender:         e.me,
		Recipient:      doc.Recipient,
		Precedence:     precedence,
		DocumentType:   doc.Type,
		SequenceNumber: seq,
		CreatedAt:      e.now(),
		Expiration:     doc.Expiration,
		ContentHash:    contentHash(doc.Body),
		Body:           doc.Body,
		Response:       response,
		Direction:      model.Outbound,
	}
	w := toWire(env)
	payload, err := signingBytes(w)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("serialize envelope: %w", err)
	}
	sig, err := e.signer.SignFor(e.me, payload)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("sign envelope: %w", err)
	}
	env.Signature = sig
	w.Signature = sig
	raw, err := json.Marshal(w)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("serialize envelope: %w", err)
	}
	if e.docs != nil {
		doc.Sender = e.me
		doc.SequenceNumber = seq
		doc.Status = model.StatusSent
		if doc.Period.IsZero() {
			doc.Period = env.CreatedAt
		}
		if err := e.docs.SaveDocument(doc); err != nil {
			e.log.Errorf("record sent document %d: %v", seq, err)
		}
	}
	// The acknowledgement must be armed before the envelope can reach the
	// counterpart: over a synchronous transport the correlated response
	// arrives before Publish returns.
	if precedence.Tracked() {
		e.arm(env, raw)
	}
	if err := e.outgoing.Publish(raw); err != nil {
		if precedence.Tracked() {
			e.disarm(env.ConversationID)
		}
		if e.docs != nil {
			if uerr := e.docs.UpdateStatus(seq, e.me.Domain, model.StatusToBeRecreated); uerr != nil {
				e.log.Errorf("flag unsent document %d for re-creation: %v", seq, uerr)
			}
		}
		return model.Envelope{}, fmt.Errorf("enqueue outbound envelope: %w", err)
	}
	if err := e.sink.RecordEnvelopeSent(string(env.DocumentType), precedence.String()); err != nil {
		e.log.Errorf("metrics: %v", err)
	}
	e.log.Debugw("envelope sent", map[string]any{
		"message_id": env.MessageID, "conversation_id": env.ConversationID,
		"document_type": string(env.DocumentType), "precedence": precedence.String(),
	})
	return env, nil
}

// arm registers a pending acknowledgement and schedules its deadline.
// The entry only becomes visible once its cancel timer is in place, so
// a response racing in can always cancel the deadline it loses to.
func (e *Engine) arm(env model.Envelope, raw []byte) {
	p := &pendingAck{
		armedAt:  e.now(),
		deadline: e.Deadline(env.Precedence),
		payload:  raw,
		envelope: env,
	}
	p.mu.Lock()
	p.cancelTimer = e.sched.ScheduleOnce("ack-deadline "+env.ConversationID, p.deadline, func() {
		e.onDeadlineExpired(p)
	})
	e.mu.Lock()
	e.pending[env.ConversationID] = p
	e.mu.Unlock()
	p.mu.Unlock()
}

// disarm withdraws a pending acknowledgement whose envelope never left
// the node.
func (e *Engine) disarm(conversationID string) {
	e.mu.Lock()
	p, ok := e.pending[conversationID]
	delete(e.pending, conversationID)
	e.mu.Unlock()
	if !ok {
		return
	}
	p.mu.Lock()
	p.resolved = true
	if p.cancelTimer != nil {
		p.cancelTimer()
	}
	p.mu.Unlock()
}

// PendingCount returns the number of armed acknowledgements.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// onDeadlineExpired escalates a conversation whose correlated response
// never arrived: the original payload moves to the not-sent queue and
// the delivery-failure handler for the document type, if any, runs.
func (e *Engine) onDeadlineExpired(p *pendingAck) {
	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		return
	}
	p.resolved = true
	p.mu.Unlock()

	env := p.envelope
	e.mu.Lock()
	delete(e.pending, env.ConversationID)
	e.mu.Unlock()

	if err := e.notSent.Publish(p.payload); err != nil {
		e.log.Errorf("enqueue %s conversation %s on not-sent queue: %v", env.Precedence, env.ConversationID, err)
	}
	e.log.Warnf("no response for %s %s conversation %s within %s, escalated",
		env.Precedence, env.DocumentType, env.ConversationID, p.deadline)
	if err := e.sink.RecordEscalation(env.Precedence.String()); err != nil {
		e.log.Errorf("metrics: %v", err)
	}
	if e.docs != nil {
		if err := e.docs.UpdateStatus(env.SequenceNumber, env.Sender.Domain, model.StatusToBeRecreated); err != nil {
			e.log.Errorf("flag document %d for re-creation: %v", env.SequenceNumber, err)
		}
	}
	env.Disposition = model.DispositionEscalated
	e.failures.Publish(events.DeliveryFailedEvent{Envelope: env})
	if h, ok := e.rt.ResolveRecovery(env.DocumentType); ok {
		if err := h.HandleDeliveryFailure(context.Background(), env); err != nil {
			e.log.Errorf("delivery-failure handler for %s: %v", env.DocumentType, err)
		}
	}
}

// resolvePending tries to win the conversation's mutual-exclusion point
// for the inbound-response path.
func (e *Engine) resolvePending(conversationID string) (*pendingAck, bool) {
	e.mu.Lock()
	p, ok := e.pending[conversationID]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return p, false
	}
	p.resolved = true
	if p.cancelTimer != nil {
		p.cancelTimer()
	}
	e.mu.Lock()
	delete(e.pending, conversationID)
	e.mu.Unlock()
	return p, true
}

// OnInbound verifies and processes one received envelope. A returned
// *Rejection is a business outcome: a rejection response has already
// been produced for the sender where one could be addressed. Any other
// error is technical and propagates to the queue-consumption boundary.
func (e *Engine) OnInbound(ctx context.Context, raw []byte) error {
	if len(raw) == 0 {
		if err := e.sink.RecordRejection(ReasonInvalidMessage.Token()); err != nil {
			e.log.Errorf("metrics: %v", err)
		}
		return Reject(ReasonInvalidMessage, "empty message")
	}
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		if err := e.sink.RecordRejection(ReasonInvalidMessage.Token()); err != nil {
			e.log.Errorf("metrics: %v", err)
		}
		return Reject(ReasonInvalidMessage, err.Error())
	}
	env, err := fromWire(w)
	if err != nil {
		return e.reject(model.Envelope{}, Reject(ReasonInvalidMessage, err.Error()))
	}
	env.Direction = model.Inbound

	if rej := e.verify(w, env); rej != nil {
		return e.reject(env, rej)
	}
	if env.Expired(e.now()) {
		return e.reject(env, Reject(ReasonExpired, env.MessageID, env.Expiration))
	}
	if e.msgLog != nil {
		done, err := e.msgLog.Processed(env.MessageID)
		if err != nil {
			return fmt.Errorf("look up message %s: %w", env.MessageID, err)
		}
		if done {
			return e.reject(env, Reject(ReasonDuplicateIdentifier, env.MessageID))
		}
	}

	// A correlated response consumes the pending acknowledgement instead
	// of being routed.
	if p, won := e.resolvePending(env.ConversationID); won {
		latency := e.now().Sub(p.armedAt)
		if err := e.sink.RecordAckLatency(p.envelope.Precedence.String(), latency); err != nil {
			e.log.Errorf("metrics: %v", err)
		}
		if e.docs != nil {
			if err := e.docs.UpdateStatus(p.envelope.SequenceNumber, p.envelope.Sender.Domain, model.StatusAccepted); err != nil {
				e.log.Errorf("update document %d status: %v", p.envelope.SequenceNumber, err)
			}
		}
		e.markProcessed(env.MessageID)
		e.log.Debugw("conversation acknowledged", map[string]any{
			"conversation_id": env.ConversationID, "latency": latency.String(),
		})
		return nil
	}
	if env.Response {
		// A response that correlates to nothing: either never requested or
		// already escalated. It must not resurrect the conversation.
		return e.reject(env, Reject(ReasonUnknownConversation, env.ConversationID))
	}

	handler, ok := e.rt.Resolve(env.DocumentType)
	if !ok {
		return fmt.Errorf("no handler registered for document type %s", env.DocumentType)
	}
	if err := handler.Handle(ctx, env); err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			return e.reject(env, rej)
		}
		return fmt.Errorf("handle %s %s: %w", env.DocumentType, env.MessageID, err)
	}
	e.markProcessed(env.MessageID)
	if err := e.sink.RecordEnvelopeReceived(string(env.DocumentType)); err != nil {
		e.log.Errorf("metrics: %v", err)
	}
	return nil
}

// verify checks signature and sender standing; a nil return means the
// envelope is authentic and the sender is admitted.
func (e *Engine) verify(w wireEnvelope, env model.Envelope) *Rejection {
	blob, err := e.dir.PublicBlob(env.Sender)
	if err != nil {
		return Reject(ReasonBarredSender, env.Sender.String(), "unknown participant")
	}
	payload, err := signingBytes(w)
	if err != nil {
		return Reject(ReasonInvalidMessage, err.Error())
	}
	if err := sign.Verify(payload, env.Signature, blob); err != nil {
		return Reject(ReasonInvalidMessage, "signature verification failed")
	}
	if slices.Contains(e.cfg.BarredSenders, env.Sender.Domain) {
		return Reject(ReasonBarredSender, env.Sender.String())
	}
	if len(e.cfg.AllowedSenders) > 0 && !slices.Contains(e.cfg.AllowedSenders, env.Sender.Domain) {
		return Reject(ReasonBarredSender, env.Sender.String())
	}
	return nil
}

// reject records the rejection, answers the sender where one is known,
// and returns the rejection for the transport boundary.
func (e *Engine) reject(env model.Envelope, rej *Rejection) error {
	if err := e.sink.RecordRejection(rej.Reason.Token()); err != nil {
		e.log.Errorf("metrics: %v", err)
	}
	e.log.Warnf("inbound %s %s rejected: %s", env.DocumentType, env.MessageID, rej.Describe())
	if env.Sender.Domain == "" || env.Response {
		// Nobody to answer, or the rejected message is itself a response;
		// answering would loop.
		return rej
	}
	body, err := json.Marshal(responseBody{
		Result:    "Rejected",
		Reason:    rej.Reason.Token(),
		MessageID: env.MessageID,
	})
	if err != nil {
		return rej
	}
	doc := model.Document{
		Type:      model.DocMessageResponse,
		Recipient: env.Sender,
		Period:    env.CreatedAt,
		Body:      body,
	}
	if _, err := e.Respond(doc, model.PrecedenceRoutine, env.ConversationID); err != nil {
		e.log.Errorf("send rejection response to %s: %v", env.Sender, err)
	}
	return rej
}

// responseBody is the payload of a MessageResponse document.
type responseBody struct {
	Result    string `json:"result"`
	Reason    string `json:"reason,omitempty"`
	MessageID string `json:"message_id"`
}

func (e *Engine) markProcessed(messageID string) {
	if e.msgLog == nil {
		return
	}
	if _, err := e.msgLog.MarkProcessed(messageID); err != nil {
		e.log.Errorf("record processed message %s: %v", messageID, err)
	}
}
