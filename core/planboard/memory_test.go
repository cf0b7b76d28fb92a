package planboard

import (
	"testing"
	"time"

	"github.com/kilianp07/usef/core/model"
)

func TestMemoryStorePhaseForwardOnly(t *testing.T) {
	s := NewMemoryStore(model.ConnectionGroup{ID: "cg.1"})
	ptu := model.Ptu{Period: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), Index: 4}

	phase, known, err := s.Phase("cg.1", ptu)
	if err != nil || known {
		t.Fatalf("untouched PTU: phase %s known %v err %v", phase, known, err)
	}
	if err := s.AdvancePhase("cg.1", ptu, model.PhaseOperate); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := s.AdvancePhase("cg.1", ptu, model.PhaseDayAheadClosed); err != nil {
		t.Fatalf("advance backwards: %v", err)
	}
	phase, known, err = s.Phase("cg.1", ptu)
	if err != nil || !known || phase != model.PhaseOperate {
		t.Fatalf("backwards write took effect: phase %s known %v err %v", phase, known, err)
	}
}

func TestMemoryStoreDocumentsByDaySorted(t *testing.T) {
	s := NewMemoryStore()
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	for _, seq := range []int64{9, 3, 7} {
		doc := model.Document{
			Type:           model.DocPrognosis,
			SequenceNumber: seq,
			Period:         day.Add(time.Duration(seq) * time.Hour),
			Sender:         model.Participant{Role: model.RoleAGR, Domain: "agr.example.com"},
			Status:         model.StatusReceived,
		}
		if err := s.SaveDocument(doc); err != nil {
			t.Fatalf("save %d: %v", seq, err)
		}
	}
	docs, err := s.DocumentsByDay(day)
	if err != nil {
		t.Fatalf("documents: %v", err)
	}
	if len(docs) != 3 || docs[0].SequenceNumber != 3 || docs[2].SequenceNumber != 9 {
		t.Fatalf("unexpected listing %v", docs)
	}
	other, err := s.DocumentsByDay(day.AddDate(0, 0, 1))
	if err != nil || len(other) != 0 {
		t.Fatalf("next day not empty: %v (%v)", other, err)
	}
}
