package router

import (
	"context"
	"testing"

	"github.com/kilianp07/usef/core/model"
)

type stubHandler struct {
	docType model.DocumentType
	calls   int
}

func (h *stubHandler) DocumentType() model.DocumentType { return h.docType }
func (h *stubHandler) Handle(context.Context, model.Envelope) error {
	h.calls++
	return nil
}

type stubRecovery struct {
	docType model.DocumentType
}

func (h *stubRecovery) DocumentType() model.DocumentType { return h.docType }
func (h *stubRecovery) HandleDeliveryFailure(context.Context, model.Envelope) error {
	return nil
}

func TestResolveRegisteredHandlers(t *testing.T) {
	r := New()
	handlers := []*stubHandler{
		{docType: model.DocPrognosis},
		{docType: model.DocFlexRequest},
		{docType: model.DocFlexOffer},
		{docType: model.DocFlexOrder},
	}
	for _, h := range handlers {
		r.Register(h)
	}
	for _, h := range handlers {
		got, ok := r.Resolve(h.docType)
		if !ok {
			t.Fatalf("%s not resolvable", h.docType)
		}
		if got != h {
			t.Fatalf("%s resolved to the wrong handler", h.docType)
		}
	}
	if len(r.Types()) != len(handlers) {
		t.Fatalf("expected %d registered types, got %d", len(handlers), len(r.Types()))
	}
}

func TestResolveUnknownTypeIsAbsent(t *testing.T) {
	r := New()
	if _, ok := r.Resolve(model.DocFlexSettlement); ok {
		t.Fatal("unregistered type must resolve to absent")
	}
	if _, ok := r.ResolveRecovery(model.DocFlexOrder); ok {
		t.Fatal("unregistered recovery type must resolve to absent")
	}
}

func TestRegistrationIsIdempotent(t *testing.T) {
	r := New()
	h := &stubHandler{docType: model.DocPrognosis}
	r.Register(h)
	r.Register(h)
	got, ok := r.Resolve(model.DocPrognosis)
	if !ok || got != h {
		t.Fatal("repeated registration changed the mapping")
	}
	if len(r.Types()) != 1 {
		t.Fatalf("expected 1 registered type, got %d", len(r.Types()))
	}
}

func TestRecoveryTableIsIndependent(t *testing.T) {
	r := New()
	r.Register(&stubHandler{docType: model.DocFlexOrder})
	rec := &stubRecovery{docType: model.DocFlexOrder}
	r.RegisterRecovery(rec)

	got, ok := r.ResolveRecovery(model.DocFlexOrder)
	if !ok || got != rec {
		t.Fatal("recovery handler not resolvable")
	}
	if _, ok := r.ResolveRecovery(model.DocPrognosis); ok {
		t.Fatal("recovery table leaked an inbound registration")
	}
}
