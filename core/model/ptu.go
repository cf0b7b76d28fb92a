package model

import "time"

// Ptu identifies one program time unit: a fixed-duration slice of a
// calendar day. Index is 1-based; index 1 starts at midnight.
type Ptu struct {
	Period time.Time // midnight of the day, location-normalized
	Index  int
}

// Phase is the lifecycle state of a PTU for one connection group.
type Phase int

const (
	PhasePlan Phase = iota
	PhaseValidate
	PhaseDayAheadClosed
	PhaseIntradayClosed
	PhaseOperate
	PhasePendingSettlement
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhasePlan:
		return "PLAN"
	case PhaseValidate:
		return "VALIDATE"
	case PhaseDayAheadClosed:
		return "DAY_AHEAD_CLOSED"
	case PhaseIntradayClosed:
		return "INTRADAY_CLOSED"
	case PhaseOperate:
		return "OPERATE"
	case PhasePendingSettlement:
		return "PENDING_SETTLEMENT"
	default:
		return "unknown"
	}
}

// After reports whether p is a later lifecycle phase than q. Phases only
// move forward; the lifecycle scheduler uses this to skip stale writes.
func (p Phase) After(q Phase) bool { return p > q }

// PtuState is the lifecycle record of one (connection group, PTU) pair.
type PtuState struct {
	ConnectionGroup string
	Ptu             Ptu
	Phase           Phase
}

// ConnectionGroup is an addressable aggregation of metering points:
// a balance group, a congestion point or an aggregator portfolio.
type ConnectionGroup struct {
	ID    string // USEF identifier, e.g. "ea1.2026-01.net.example:group.1"
	Owner Participant
}

// PtusPerDay returns the number of PTUs in a day of the given PTU
// duration in minutes. Duration values not dividing 24h evenly are
// rejected at configuration time.
func PtusPerDay(durationMinutes int) int {
	return 24 * 60 / durationMinutes
}
