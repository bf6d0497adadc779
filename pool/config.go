package pool

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	DefaultSize        = 5
	DefaultMaxOverflow = 10
	DefaultStrategy    = LIFO
	DefaultLivenessTTL = 30 * time.Second
	DefaultInboxSize   = 256
	minLivenessCleanup = time.Second
)

// Config holds configuration for creating a Pool.
type Config struct {
	// Name optionally labels the pool for the caller's own bookkeeping and
	// for log lines. Unused internally otherwise.
	Name string

	// Size is the steady-state worker count, spawned at startup.
	Size int

	// MaxOverflow is the number of additional workers allowed under load,
	// spawned on demand and dismissed on checkin.
	MaxOverflow int

	// Strategy selects the idle-worker reinsertion end.
	Strategy Strategy

	// Supervisor spawns and terminates workers. Required.
	Supervisor Supervisor

	// Dispatcher delivers work() messages to workers. Required only if
	// Work() is called; Checkout()/Checkin() never use it.
	Dispatcher Dispatcher

	// LivenessTTL bounds how long an abandoned waiter or monitor can
	// survive without being explicitly released before the liveness sweep
	// fires a synthetic client-down notification. The fast path — context
	// cancellation on an active checkout/work call — does not wait for
	// this TTL.
	LivenessTTL time.Duration

	// InboxSize sets the coordinator's command channel buffer. The
	// coordinator is a single-threaded actor; this only bounds how many
	// concurrent callers can have a request in flight to it before their
	// Checkout/Work call blocks on the send.
	InboxSize int
}

// Defaults returns a Config with every field at its recommended default,
// and a nil Supervisor/Dispatcher that the caller must fill in.
func Defaults() Config {
	return Config{
		Size:        DefaultSize,
		MaxOverflow: DefaultMaxOverflow,
		Strategy:    DefaultStrategy,
		LivenessTTL: DefaultLivenessTTL,
		InboxSize:   DefaultInboxSize,
	}
}

// setDefaults clamps a negative Size or MaxOverflow to zero (a zero value
// is kept as given) and fills a non-positive LivenessTTL or InboxSize with
// its default, mirroring the teacher's NewWorkerPool pattern of defaulting
// a caller-supplied Config rather than requiring every field to be set.
func (c *Config) setDefaults() {
	if c.Size < 0 {
		c.Size = 0
	}
	if c.MaxOverflow < 0 {
		c.MaxOverflow = 0
	}
	if c.LivenessTTL <= 0 {
		c.LivenessTTL = DefaultLivenessTTL
	}
	if c.InboxSize <= 0 {
		c.InboxSize = DefaultInboxSize
	}
}

func (c Config) validate() error {
	if c.Supervisor == nil {
		return fmt.Errorf("pool: Config.Supervisor is required")
	}
	if c.Strategy != LIFO && c.Strategy != FIFO {
		return fmt.Errorf("pool: unknown strategy %v", c.Strategy)
	}
	return nil
}
