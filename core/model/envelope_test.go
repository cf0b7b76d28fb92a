package model

import (
	"testing"
	"time"
)

func TestEnvelopeExpired(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	var env Envelope
	if env.Expired(now) {
		t.Fatal("zero expiration must never expire")
	}
	env.Expiration = now.Add(-time.Second)
	if !env.Expired(now) {
		t.Fatal("past expiration not detected")
	}
	env.Expiration = now
	if env.Expired(now) {
		t.Fatal("expiration is inclusive of its own instant")
	}
	env.Expiration = now.Add(time.Second)
	if env.Expired(now) {
		t.Fatal("future expiration flagged as expired")
	}
}

func TestPrecedenceTracked(t *testing.T) {
	if PrecedenceRoutine.Tracked() {
		t.Fatal("routine traffic must be fire-and-forget")
	}
	if !PrecedenceTransactional.Tracked() || !PrecedenceCritical.Tracked() {
		t.Fatal("transactional and critical traffic must be tracked")
	}
}
