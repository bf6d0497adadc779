package pool

import "time"

// State is the coordinator's derived status name.
type State string

const (
	StateReady    State = "READY"
	StateOverflow State = "OVERFLOW"
	StateFull     State = "FULL"
)

// deriveState is the pure function of (idle, overflow, max_overflow) that
// names the pool's current state. It is the only place that decides READY
// vs OVERFLOW vs FULL; Status and Snapshot both call through it so the two
// read paths can never disagree.
func deriveState(idle, overflow, maxOverflow int) State {
	switch {
	case overflow >= 1 && overflow == maxOverflow:
		return StateFull
	case overflow >= 1:
		return StateOverflow
	case overflow == 0 && idle == 0 && maxOverflow == 0:
		return StateFull
	case overflow == 0 && idle == 0:
		return StateOverflow
	default:
		return StateReady
	}
}

// Status is a point-in-time summary: the derived state name plus the three
// counts it is derived from.
type Status struct {
	State    State
	Idle     int
	Overflow int
	Busy     int
}

// WorkerSnapshot describes one worker at the moment Snapshot was taken.
type WorkerSnapshot struct {
	Worker      string
	Busy        bool
	LastUpdated time.Time
}

// Snapshot is a read-only projection of the coordinator's full state,
// including per-worker detail, for the dashboard and for tests that want
// to assert invariants without racing the coordinator's event loop.
type Snapshot struct {
	Status  Status
	Waiters int
	Workers []WorkerSnapshot
}
