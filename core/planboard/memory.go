package planboard

import (
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/usef/core/model"
)

type ptuKey struct {
	group string
	day   time.Time
	index int
}

type docKey struct {
	seq    int64
	domain string
}

// MemoryStore is an in-process implementation of all planboard
// contracts. It backs tests and single-node development setups.
type MemoryStore struct {
	mu        sync.Mutex
	groups    []model.ConnectionGroup
	phases    map[ptuKey]model.Phase
	documents map[docKey]model.Document
	processed map[string]struct{}
}

// NewMemoryStore creates a store tracking the given connection groups.
func NewMemoryStore(groups ...model.ConnectionGroup) *MemoryStore {
	return &MemoryStore{
		groups:    groups,
		phases:    make(map[ptuKey]model.Phase),
		documents: make(map[docKey]model.Document),
		processed: make(map[string]struct{}),
	}
}

func (s *MemoryStore) EnsureGroups(groups []model.ConnectionGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range groups {
		known := false
		for i, have := range s.groups {
			if have.ID == g.ID {
				s.groups[i] = g
				known = true
				break
			}
		}
		if !known {
			s.groups = append(s.groups, g)
		}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) ConnectionGroups() ([]model.ConnectionGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ConnectionGroup, len(s.groups))
	copy(out, s.groups)
	return out, nil
}

func (s *MemoryStore) Phase(group string, ptu model.Ptu) (model.Phase, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.phases[ptuKey{group, day(ptu.Period), ptu.Index}]
	return p, ok, nil
}

func (s *MemoryStore) AdvancePhase(group string, ptu model.Ptu, phase model.Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := ptuKey{group, day(ptu.Period), ptu.Index}
	if cur, ok := s.phases[k]; ok && !phase.After(cur) {
		return nil
	}
	s.phases[k] = phase
	return nil
}

func (s *MemoryStore) SaveDocument(doc model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[docKey{doc.SequenceNumber, doc.Sender.Domain}] = doc
	return nil
}

func (s *MemoryStore) UpdateStatus(seq int64, senderDomain string, status model.DocumentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := docKey{seq, senderDomain}
	if doc, ok := s.documents[k]; ok {
		doc.Status = status
		s.documents[k] = doc
	}
	return nil
}

func (s *MemoryStore) ToBeRecreated() ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Document
	for _, doc := range s.documents {
		if doc.Status == model.StatusToBeRecreated {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *MemoryStore) DocumentsByDay(period time.Time) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := day(period)
	var out []model.Document
	for _, doc := range s.documents {
		if day(doc.Period).Equal(d) {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

func (s *MemoryStore) CleanupDay(period time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := day(period)
	for k, doc := range s.documents {
		if day(doc.Period).Equal(d) {
			doc.Status = model.StatusArchived
			s.documents[k] = doc
		}
	}
	return nil
}

func (s *MemoryStore) Processed(messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[messageID]
	return ok, nil
}

func (s *MemoryStore) MarkProcessed(messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[messageID]; ok {
		return false, nil
	}
	s.processed[messageID] = struct{}{}
	return true, nil
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
