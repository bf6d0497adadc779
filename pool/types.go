package pool

import (
	"context"

	"github.com/google/uuid"
)

// WorkerHandle identifies a spawned worker. Implementations are supplied by
// the worker factory/supervisor collaborator (out of scope for this
// package, see the Supervisor interface) and are treated as opaque,
// comparable values: the coordinator only ever stores, compares, and hands
// them back. Supervisor implementations must return handles whose dynamic
// type is comparable (safe to use as a map key).
type WorkerHandle interface {
	// String returns a stable, human-readable identifier for logging.
	String() string
}

// Message is an opaque unit of work handed to a worker.
type Message any

// Reply is an opaque result produced by a worker.
type Reply any

// Replier is a one-shot callback a worker invokes with its reply. Dispatch
// implementations must guarantee it is called at most once per dispatched
// message; the pool relies on that guarantee to drive the automatic
// checkin that follows a work() call.
type Replier func(Reply)

// Dispatcher delivers a message to a worker's own inbox and returns
// immediately; the worker replies asynchronously by invoking the supplied
// Replier. The coordinator never inspects message payloads and never
// blocks on dispatch.
type Dispatcher interface {
	Dispatch(handle WorkerHandle, msg Message, reply Replier)
}

// Supervisor spawns and terminates worker processes on the coordinator's
// behalf and reports unexpected exits.
type Supervisor interface {
	// StartChild spawns a new worker. A non-nil error is a spawn failure;
	// see pool.go and DESIGN.md for how this package handles spawn
	// failures at startup versus at runtime.
	StartChild(ctx context.Context) (WorkerHandle, error)

	// TerminateChild tells the supervisor to stop a worker it started.
	// TerminateChild must unlink the child first, so its eventual exit is
	// not reported on Exits() — a deliberate termination is never a crash.
	TerminateChild(handle WorkerHandle)

	// Exits reports workers that died for any reason other than a
	// TerminateChild call. The coordinator treats every value received
	// here as an unexpected worker exit.
	Exits() <-chan WorkerHandle
}

// Strategy selects which end of the idle set a checked-in worker is
// reinserted at. Idle-worker removal is always from the front regardless
// of Strategy: Strategy only governs reinsertion.
type Strategy int

const (
	// LIFO reinserts at the front, so the most recently checked-in worker
	// is the next one checked out (a recently-used worker stays warm).
	LIFO Strategy = iota
	// FIFO reinserts at the back, rotating workers round-robin.
	FIFO
)

func (s Strategy) String() string {
	switch s {
	case LIFO:
		return "LIFO"
	case FIFO:
		return "FIFO"
	default:
		return "UNKNOWN"
	}
}

// CancelToken uniquely identifies a single checkout/work call so an
// in-flight or queued request can be cancelled.
type CancelToken uuid.UUID

func newCancelToken() CancelToken { return CancelToken(uuid.New()) }

func (t CancelToken) String() string { return uuid.UUID(t).String() }

// MonitorToken is the liveness handle associated with a CancelToken. When a
// caller's liveness token is deemed dead — via context cancellation or the
// TTL sweep in liveness.go — the coordinator treats the owning request as
// abandoned and releases whatever it held or was waiting for.
type MonitorToken uuid.UUID

func newMonitorToken() MonitorToken { return MonitorToken(uuid.New()) }

func (t MonitorToken) String() string { return uuid.UUID(t).String() }
