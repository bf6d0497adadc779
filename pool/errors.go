package pool

import "errors"

var (
	// ErrPoolFull is returned by a non-blocking checkout/work call when no
	// idle worker and no overflow slot is available.
	ErrPoolFull = errors.New("pool: no worker available")

	// ErrPoolClosed is returned by any client-facing call made after Stop.
	ErrPoolClosed = errors.New("pool: stopped")

	// ErrInvalidMessage is reserved for malformed coordinator requests; the
	// state is left unchanged when returned.
	ErrInvalidMessage = errors.New("pool: invalid message")

	// ErrSpawnFailed wraps a Supervisor.StartChild error encountered while
	// the pool is already running (overflow admission or crash
	// replacement). See DESIGN.md for why this is not fatal to the pool.
	ErrSpawnFailed = errors.New("pool: worker spawn failed")

	// ErrTimeout is returned when a blocking checkout/work call's context
	// is done before a worker became available.
	ErrTimeout = errors.New("pool: timed out waiting for a worker")
)
