// Package pool implements a generic worker pool coordinator: a fixed
// number of steady-state workers plus a bounded number of overflow
// workers, checked out by callers and returned either explicitly or
// automatically after a dispatched unit of work completes.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zjrosen/agentpool/internal/log"
	"github.com/zjrosen/agentpool/internal/pubsub"
)

// Pool is the public handle to a running coordinator. All methods are safe
// to call from any number of goroutines.
type Pool struct {
	name     string
	c        *coordinator
	stopOnce sync.Once
}

// New starts a pool with the given configuration, spawning its
// steady-state workers synchronously. A spawn failure during startup
// returns a non-nil error and no Pool.
func New(cfg Config) (*Pool, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c, err := newCoordinator(cfg)
	if err != nil {
		return nil, err
	}
	c.start()
	log.Info(log.CatPool, "pool started",
		"name", cfg.Name, "size", cfg.Size, "max_overflow", cfg.MaxOverflow, "strategy", cfg.Strategy.String())
	return &Pool{name: cfg.Name, c: c}, nil
}

// Checkout hands the caller a WorkerHandle for exclusive use until it is
// returned via Checkin or the pool considers the caller's liveness token
// dead. If block is false and no worker is immediately available,
// Checkout returns ErrPoolFull without queuing. If block is true, Checkout
// waits until ctx is done, a worker becomes available, or the pool is
// stopped.
func (p *Pool) Checkout(ctx context.Context, block bool) (WorkerHandle, error) {
	res, err := p.request(ctx, requestCmd{
		clientRef: newCancelToken(),
		liveness:  newMonitorToken(),
		block:     block,
		isWork:    false,
	})
	if err != nil {
		return nil, err
	}
	return res.worker, nil
}

// Checkin returns a previously checked-out worker to the pool. Checking in
// a worker that is already idle, or one the pool does not recognize, is a
// silent no-op. Checkin after Stop is also a no-op.
func (p *Pool) Checkin(h WorkerHandle) {
	select {
	case p.c.inbox <- checkinCmd{worker: h}:
	case <-p.c.quit:
	}
}

// Work checks out a worker, dispatches msg to it via the pool's
// Dispatcher, and returns the worker's reply. The worker is automatically
// checked back in once it replies. If ctx is done before the worker
// replies, Work returns an error wrapping ctx.Err(); once the request has
// reached the coordinator that error also matches ErrTimeout, and the
// underlying request, if still outstanding, is cancelled.
func (p *Pool) Work(ctx context.Context, msg Message) (Reply, error) {
	res, err := p.request(ctx, requestCmd{
		clientRef: newCancelToken(),
		liveness:  newMonitorToken(),
		block:     true,
		isWork:    true,
		msg:       msg,
	})
	if err != nil {
		return nil, err
	}
	return res.reply, nil
}

// Transaction checks out a worker, runs fn with it, and checks the worker
// back in when fn returns, regardless of whether fn returned an error.
// This is the recommended way to use Checkout/Checkin together: fn cannot
// forget the matching Checkin.
func (p *Pool) Transaction(ctx context.Context, fn func(WorkerHandle) error) error {
	h, err := p.Checkout(ctx, true)
	if err != nil {
		return err
	}
	defer p.Checkin(h)
	return fn(h)
}

// request sends cmd to the coordinator and waits for its result, honoring
// ctx cancellation and registering the request's liveness token as the
// fast-path complement to the background TTL sweep.
//
// Releasing that token is split between here and the coordinator. Once a
// monitor or waiter has been created for it (cmd reached the coordinator
// and did not get an immediate error reply), only the coordinator releases
// it, at the matching checkin or cancel (handleCheckin, handleCancel) —
// releasing it here instead would delete it out from under an active
// monitor and, since go-cache's Delete fires the same OnEvicted callback a
// real expiry does, the coordinator would treat that as the holding
// client going down and check the worker back in while the caller still
// holds it. request only releases the token itself for the cases where no
// monitor or waiter was ever created: cmd never reached the coordinator,
// or it did and came back with an immediate error.
func (p *Pool) request(ctx context.Context, cmd requestCmd) (requestResult, error) {
	cmd.reply = make(chan requestResult, 1)
	p.c.liveness.register(cmd.liveness)

	select {
	case p.c.inbox <- cmd:
	case <-ctx.Done():
		p.c.liveness.release(cmd.liveness)
		return requestResult{}, fmt.Errorf("pool: %w", ctx.Err())
	case <-p.c.quit:
		p.c.liveness.release(cmd.liveness)
		return requestResult{}, ErrPoolClosed
	}

	select {
	case res := <-cmd.reply:
		if res.err != nil {
			p.c.liveness.release(cmd.liveness)
			return requestResult{}, res.err
		}
		return res, nil
	case <-ctx.Done():
		select {
		case p.c.inbox <- cancelCmd{clientRef: cmd.clientRef}:
		case <-p.c.quit:
			p.c.liveness.release(cmd.liveness)
			return requestResult{}, ErrPoolClosed
		}
		res, err := salvageAfterCancel(cmd.isWork, cmd.reply)
		if errors.Is(err, ErrTimeout) {
			err = fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
		return res, err
	case <-p.c.quit:
		p.c.liveness.release(cmd.liveness)
		return requestResult{}, ErrPoolClosed
	}
}

// salvageAfterCancel resolves a request whose cancelCmd has already been
// sent to the coordinator. A work reply can legitimately race the
// cancellation and land in replyCh anyway; honoring it is safe because the
// worker is already checked in by the time it replies. A checkout worker
// assigned in that same window is different: handleCancel's monitor branch
// treats an already-assigned worker as checked in right away, so it must
// never reach the caller — checkout always reports a timeout here,
// regardless of what (if anything) is sitting in replyCh.
func salvageAfterCancel(isWork bool, replyCh chan requestResult) (requestResult, error) {
	if !isWork {
		return requestResult{}, ErrTimeout
	}
	select {
	case res := <-replyCh:
		if res.err != nil {
			return requestResult{}, res.err
		}
		return res, nil
	default:
		return requestResult{}, ErrTimeout
	}
}

// Status returns a point-in-time summary of the pool's idle, overflow, and
// busy counts and its derived state. It returns the zero Status if called
// after Stop.
func (p *Pool) Status() Status {
	reply := make(chan Status, 1)
	select {
	case p.c.inbox <- statusCmd{reply: reply}:
	case <-p.c.quit:
		return Status{}
	}
	select {
	case s := <-reply:
		return s
	case <-p.c.quit:
		return Status{}
	}
}

// Snapshot returns a richer, per-worker view of the pool's current state,
// for dashboards and diagnostics. It returns the zero Snapshot if called
// after Stop.
func (p *Pool) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case p.c.inbox <- snapshotCmd{reply: reply}:
	case <-p.c.quit:
		return Snapshot{}
	}
	select {
	case s := <-reply:
		return s
	case <-p.c.quit:
		return Snapshot{}
	}
}

// Reconfigure applies a new max_overflow and reinsertion strategy without
// restarting the pool. It is a no-op after Stop. Already-admitted overflow
// workers above a lowered ceiling are not evicted; they're dismissed the
// next time each is checked in, same as any other overflow checkin.
func (p *Pool) Reconfigure(maxOverflow int, strategy Strategy) {
	select {
	case p.c.inbox <- reconfigureCmd{maxOverflow: maxOverflow, strategy: strategy}:
	case <-p.c.quit:
	}
}

// Subscribe returns a channel of lifecycle events published by the
// coordinator, for live dashboards. The channel closes when ctx is done.
func (p *Pool) Subscribe(ctx context.Context) <-chan pubsub.Event[Event] {
	return p.c.broker.Subscribe(ctx)
}

// Stop terminates every worker the pool owns and shuts down the
// coordinator's event loop. Any call in flight against the pool when Stop
// runs may return ErrPoolClosed or may complete, depending on ordering;
// Stop itself blocks until shutdown is complete.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		done := make(chan struct{})
		p.c.inbox <- stopCmd{done: done}
		<-done
		p.c.broker.Close()
		log.Info(log.CatPool, "pool stopped", "name", p.name)
	})
}
