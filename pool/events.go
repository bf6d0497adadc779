package pool

import "time"

// EventKind identifies a pool lifecycle event, published over the pool's
// pubsub broker for introspection/dashboard consumers.
type EventKind string

const (
	EventWorkerSpawned   EventKind = "worker_spawned"
	EventWorkerDismissed EventKind = "worker_dismissed"
	EventWorkerCrashed   EventKind = "worker_crashed"
	EventCheckout        EventKind = "checkout"
	EventCheckin         EventKind = "checkin"
	EventWaiterEnqueued  EventKind = "waiter_enqueued"
	EventWaiterCancelled EventKind = "waiter_cancelled"
	EventOverflowSpawn   EventKind = "overflow_spawn"
	EventClientDown      EventKind = "client_down"
)

// Event is a single pool lifecycle transition, carrying enough of the
// coordinator's state to render a live status line without a second round
// trip (Status/Snapshot remain the authoritative read path for callers that
// need a point-in-time count rather than a transition log).
type Event struct {
	Kind        EventKind
	Worker      string
	IdleCount   int
	BusyCount   int
	Overflow    int
	WaiterCount int
	At          time.Time
}
