// Package router maps inbound document types to their processing
// handlers. Handlers self-register at startup; resolving an unknown
// type returns absent rather than an error, the caller decides how to
// treat unroutable documents.
package router

import (
	"context"
	"sync"

	"github.com/kilianp07/usef/core/model"
)

// Handler processes one verified inbound document type.
type Handler interface {
	// DocumentType declares which document family this handler accepts.
	DocumentType() model.DocumentType
	// Handle processes a verified inbound envelope.
	Handle(ctx context.Context, env model.Envelope) error
}

// RecoveryHandler reacts to a previously sent document whose counterpart
// response never arrived or was rejected at transport level.
type RecoveryHandler interface {
	DocumentType() model.DocumentType
	HandleDeliveryFailure(ctx context.Context, env model.Envelope) error
}

// Router holds the two registration tables: inbound handlers and
// delivery-failure handlers. Both are written during startup and
// read-only afterwards.
type Router struct {
	mu       sync.RWMutex
	handlers map[model.DocumentType]Handler
	recovery map[model.DocumentType]RecoveryHandler
}

// New returns an empty Router.
func New() *Router {
	return &Router{
		handlers: make(map[model.DocumentType]Handler),
		recovery: make(map[model.DocumentType]RecoveryHandler),
	}
}

// Register records h under its declared document type. Registration is
// last-wins, so repeating a startup scan yields the same table.
func (r *Router) Register(h Handler) {
	r.mu.Lock()
	r.handlers[h.DocumentType()] = h
	r.mu.Unlock()
}

// RegisterRecovery records h in the delivery-failure table.
func (r *Router) RegisterRecovery(h RecoveryHandler) {
	r.mu.Lock()
	r.recovery[h.DocumentType()] = h
	r.mu.Unlock()
}

// Resolve returns the handler registered for t, if any.
func (r *Router) Resolve(t model.DocumentType) (Handler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[t]
	r.mu.RUnlock()
	return h, ok
}

// ResolveRecovery returns the delivery-failure handler for t, if any.
func (r *Router) ResolveRecovery(t model.DocumentType) (RecoveryHandler, bool) {
	r.mu.RLock()
	h, ok := r.recovery[t]
	r.mu.RUnlock()
	return h, ok
}

// Types lists the registered inbound document types.
func (r *Router) Types() []model.DocumentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.DocumentType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}
