package main

import "testing"

func TestPlayDayAllAcknowledged(t *testing.T) {
	cfg := Config{Groups: 2, Conversations: 5, Seed: 42}
	m, err := newMarket(cfg)
	if err != nil {
		t.Fatalf("build market: %v", err)
	}
	defer m.close()

	if err := m.playDay(func(string, ...any) {}); err != nil {
		t.Fatalf("play day: %v", err)
	}
	// 2 documents per conversation plus 1 settlement per group.
	want := cfg.Groups*cfg.Conversations*2 + cfg.Groups
	if m.sent != want {
		t.Fatalf("sent %d documents, want %d", m.sent, want)
	}
	if m.escalated != 0 {
		t.Fatalf("lossless run left %d conversations unacknowledged", m.escalated)
	}
	if m.acked != want {
		t.Fatalf("acknowledged %d, want %d", m.acked, want)
	}
}

func TestPlayDayCountsDrops(t *testing.T) {
	cfg := Config{Groups: 1, Conversations: 20, DropRate: 0.5, Seed: 7}
	m, err := newMarket(cfg)
	if err != nil {
		t.Fatalf("build market: %v", err)
	}
	defer m.close()

	if err := m.playDay(func(string, ...any) {}); err != nil {
		t.Fatalf("play day: %v", err)
	}
	if m.escalated == 0 {
		t.Fatal("half the deliveries dropped but every conversation acknowledged")
	}
	if m.acked+m.escalated != m.sent {
		t.Fatalf("counters disagree: %d acked + %d open != %d sent", m.acked, m.escalated, m.sent)
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		{Groups: 0, Conversations: 1},
		{Groups: 1, Conversations: 1, DisputeRate: 1.5},
		{Groups: 1, Conversations: 1, DropRate: -0.1},
	}
	for _, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("config %+v passed validation", cfg)
		}
	}
	good := Config{Groups: 1, Conversations: 1, DisputeRate: 0.2}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
