package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/zjrosen/agentpool/internal/log"
	"github.com/zjrosen/agentpool/internal/pubsub"
)

// requestResult is what a checkout/work call's result channel receives.
type requestResult struct {
	worker WorkerHandle
	reply  Reply
	err    error
}

// requestCmd is a checkout or work request from a client carrying its
// client_ref, liveness token, and blocking preference.
type requestCmd struct {
	clientRef CancelToken
	liveness  MonitorToken
	block     bool
	isWork    bool
	msg       Message
	reply     chan requestResult
}

// checkinCmd returns a worker to the pool.
type checkinCmd struct {
	worker WorkerHandle
}

// cancelCmd withdraws a specific in-flight or queued request.
type cancelCmd struct {
	clientRef CancelToken
}

// clientDownCmd reports that a caller's liveness token has expired.
type clientDownCmd struct {
	liveness MonitorToken
}

// workerExitCmd reports a worker that exited without being terminated by
// the coordinator.
type workerExitCmd struct {
	worker WorkerHandle
}

type statusCmd struct {
	reply chan Status
}

type snapshotCmd struct {
	reply chan Snapshot
}

type stopCmd struct {
	done chan struct{}
}

// reconfigureCmd applies a live config change: new admission/reinsertion
// parameters take effect on the next request or checkin, with no effect on
// work already assigned.
type reconfigureCmd struct {
	maxOverflow int
	strategy    Strategy
}

// coordinator is the pool's single serialization point: one goroutine owns
// idle, waiters, and monitors, and every event is processed to completion
// before the next begins.
type coordinator struct {
	supervisor Supervisor
	dispatcher Dispatcher

	idle     *idleSet
	waiters  *waiterQueue
	monitors *monitorTable

	size        int
	overflow    int
	maxOverflow int
	strategy    Strategy

	liveness *livenessTracker
	broker   *pubsub.Broker[Event]

	inbox chan any
	quit  chan struct{}
}

// newCoordinator spawns the steady-state workers and returns a coordinator
// ready to Start. A spawn failure here is fatal: no partial pool is
// returned, and any workers already spawned in this call are torn back
// down.
func newCoordinator(cfg Config) (*coordinator, error) {
	c := &coordinator{
		supervisor:  cfg.Supervisor,
		dispatcher:  cfg.Dispatcher,
		idle:        newIdleSet(),
		waiters:     newWaiterQueue(),
		monitors:    newMonitorTable(),
		size:        cfg.Size,
		maxOverflow: cfg.MaxOverflow,
		strategy:    cfg.Strategy,
		broker:      pubsub.NewBroker[Event](),
		inbox:       make(chan any, cfg.InboxSize),
		quit:        make(chan struct{}),
	}
	c.liveness = newLivenessTracker(cfg.LivenessTTL, c.notifyClientDown)

	spawned := make([]WorkerHandle, 0, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		h, err := c.supervisor.StartChild(context.Background())
		if err != nil {
			for _, s := range spawned {
				c.supervisor.TerminateChild(s)
			}
			return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
		}
		spawned = append(spawned, h)
		c.idle.pushBack(WorkerRecord{Handle: h, LastUpdated: time.Now()})
	}
	return c, nil
}

// notifyClientDown is the liveness tracker's eviction callback; it must
// never block the cache's janitor goroutine, so it sends onto the inbox in
// a goroutine-safe, non-blocking-ish way: the inbox is a large buffered
// channel and the coordinator is always draining it, so a direct send is
// safe in practice and keeps this notification ordered relative to other
// events the way every other command is.
func (c *coordinator) notifyClientDown(tok MonitorToken) {
	select {
	case c.inbox <- clientDownCmd{liveness: tok}:
	case <-c.quit:
	}
}

// start launches the coordinator's event loop and the goroutine that
// forwards unexpected worker exits into the same inbox, preserving the
// single-serialization-point discipline.
func (c *coordinator) start() {
	go c.forwardExits()
	go c.run()
}

func (c *coordinator) forwardExits() {
	for {
		select {
		case h, ok := <-c.supervisor.Exits():
			if !ok {
				return
			}
			select {
			case c.inbox <- workerExitCmd{worker: h}:
			case <-c.quit:
				return
			}
		case <-c.quit:
			return
		}
	}
}

func (c *coordinator) run() {
	for cmd := range c.inbox {
		switch v := cmd.(type) {
		case requestCmd:
			c.handleRequest(v)
		case checkinCmd:
			c.handleCheckin(v.worker)
		case cancelCmd:
			c.handleCancel(v.clientRef)
		case clientDownCmd:
			c.handleClientDown(v.liveness)
		case workerExitCmd:
			c.handleWorkerExit(v.worker)
		case statusCmd:
			v.reply <- c.status()
		case snapshotCmd:
			v.reply <- c.snapshot()
		case reconfigureCmd:
			c.handleReconfigure(v)
		case stopCmd:
			c.handleStop()
			close(v.done)
			return
		}
	}
}

func (c *coordinator) handleRequest(cmd requestCmd) {
	if rec, ok := c.idle.popFront(); ok {
		c.assign(rec.Handle, cmd)
		return
	}
	if c.overflow < c.maxOverflow {
		h, err := c.supervisor.StartChild(context.Background())
		if err != nil {
			log.ErrorErr(log.CatPool, "overflow spawn failed", err)
			cmd.reply <- requestResult{err: fmt.Errorf("%w: %v", ErrSpawnFailed, err)}
			return
		}
		c.overflow++
		c.publish(EventOverflowSpawn, h)
		c.assign(h, cmd)
		return
	}
	if !cmd.block {
		cmd.reply <- requestResult{err: ErrPoolFull}
		return
	}
	c.waiters.enqueue(&waiter{
		kind:      kindOf(cmd.isWork),
		msg:       cmd.msg,
		clientRef: cmd.clientRef,
		liveness:  cmd.liveness,
		resultCh:  cmd.reply,
	})
	c.publish(EventWaiterEnqueued, nil)
}

func kindOf(isWork bool) waiterKind {
	if isWork {
		return waiterWork
	}
	return waiterCheckout
}

// assign hands worker h to the request represented by cmd: registers its
// monitor, then either replies with the handle (checkout) or dispatches the
// message (work), in which case the reply arrives later via makeReplier.
func (c *coordinator) assign(h WorkerHandle, cmd requestCmd) {
	c.monitors.add(monitor{worker: h, clientRef: cmd.clientRef, liveness: cmd.liveness})
	c.publish(EventCheckout, h)
	if cmd.isWork {
		c.dispatcher.Dispatch(h, cmd.msg, c.makeReplier(h, cmd.reply))
		return
	}
	cmd.reply <- requestResult{worker: h}
}

// makeReplier builds the one-shot callback a dispatched worker invokes
// with its reply. It both forwards the reply to the caller and casts the
// automatic checkin back to the coordinator.
func (c *coordinator) makeReplier(h WorkerHandle, resultCh chan requestResult) Replier {
	return func(r Reply) {
		select {
		case resultCh <- requestResult{reply: r}:
		default:
			// The caller already gave up (timeout/cancel); the checkin
			// below still runs so the worker isn't leaked.
		}
		select {
		case c.inbox <- checkinCmd{worker: h}:
		case <-c.quit:
		}
	}
}

func (c *coordinator) handleCheckin(h WorkerHandle) {
	m, ok := c.monitors.removeByWorker(h)
	if !ok {
		return // unknown or already idle: silent no-op
	}
	c.liveness.release(m.liveness)
	c.publish(EventCheckin, h)
	c.reassign(h)
}

// reassign is the reassignment procedure run on a freed worker: hand it to
// the next waiter if any, dismiss it if it was an overflow worker, or
// return it to the idle set.
func (c *coordinator) reassign(h WorkerHandle) {
	if w, ok := c.waiters.dequeue(); ok {
		c.monitors.add(monitor{worker: h, clientRef: w.clientRef, liveness: w.liveness})
		if w.kind == waiterWork {
			c.dispatcher.Dispatch(h, w.msg, c.makeReplier(h, w.resultCh))
		} else {
			w.resultCh <- requestResult{worker: h}
		}
		return
	}
	if c.overflow > 0 {
		c.supervisor.TerminateChild(h)
		c.overflow--
		c.publish(EventWorkerDismissed, h)
		return
	}
	rec := WorkerRecord{Handle: h, LastUpdated: time.Now()}
	if c.strategy == FIFO {
		c.idle.pushBack(rec)
	} else {
		c.idle.pushFront(rec)
	}
}

func (c *coordinator) handleCancel(ref CancelToken) {
	if h, ok := c.monitors.workerForClientRef(ref); ok {
		c.handleCheckin(h)
		return
	}
	if w, ok := c.waiters.removeByClientRef(ref); ok {
		c.liveness.release(w.liveness)
		c.publish(EventWaiterCancelled, nil)
	}
}

// handleClientDown has an effect identical to handleCancel once the
// liveness token is resolved to its client_ref.
func (c *coordinator) handleClientDown(tok MonitorToken) {
	if ref, ok := c.monitors.clientRefForLiveness(tok); ok {
		c.handleCancel(ref)
		return
	}
	if _, ok := c.waiters.removeByLiveness(tok); ok {
		c.publish(EventClientDown, nil)
	}
}

func (c *coordinator) handleWorkerExit(h WorkerHandle) {
	if m, ok := c.monitors.removeByWorker(h); ok {
		c.liveness.release(m.liveness)
		c.publish(EventWorkerCrashed, h)
		c.crashReassign()
		return
	}
	if c.idle.remove(h) {
		c.publish(EventWorkerCrashed, h)
		c.spawnReplacementIdle()
		return
	}
	// Neither idle nor monitored: a late or duplicate exit notification.
}

// crashReassign is the worker-crash procedure for a busy worker that died:
// a replacement is produced only if a waiter needs one or steady state
// must be restored (not for overflow).
func (c *coordinator) crashReassign() {
	if w, ok := c.waiters.dequeue(); ok {
		h, err := c.supervisor.StartChild(context.Background())
		if err != nil {
			log.ErrorErr(log.CatPool, "crash-replacement spawn failed for waiting client", err)
			w.resultCh <- requestResult{err: fmt.Errorf("%w: %v", ErrSpawnFailed, err)}
			return
		}
		c.publish(EventWorkerSpawned, h)
		c.monitors.add(monitor{worker: h, clientRef: w.clientRef, liveness: w.liveness})
		if w.kind == waiterWork {
			c.dispatcher.Dispatch(h, w.msg, c.makeReplier(h, w.resultCh))
		} else {
			w.resultCh <- requestResult{worker: h}
		}
		return
	}
	if c.overflow > 0 {
		c.overflow--
		return
	}
	h, err := c.supervisor.StartChild(context.Background())
	if err != nil {
		log.ErrorErr(log.CatPool, "steady-state crash-replacement spawn failed, pool shrinking by one", err)
		return
	}
	c.publish(EventWorkerSpawned, h)
	c.idle.pushBack(WorkerRecord{Handle: h, LastUpdated: time.Now()})
}

// spawnReplacementIdle handles an idle worker crashing: remove it, spawn a
// replacement, insert at the head.
func (c *coordinator) spawnReplacementIdle() {
	h, err := c.supervisor.StartChild(context.Background())
	if err != nil {
		log.ErrorErr(log.CatPool, "idle crash-replacement spawn failed, pool shrinking by one", err)
		return
	}
	c.publish(EventWorkerSpawned, h)
	c.idle.pushFront(WorkerRecord{Handle: h, LastUpdated: time.Now()})
}

// handleStop unlinks and terminates every idle and every busy worker, so
// no exit recovery is attempted for any of them while the coordinator is
// stopping. See DESIGN.md for why busy workers are terminated explicitly
// here rather than left for the supervisor to reap on its own.
func (c *coordinator) handleStop() {
	for _, rec := range c.idle.records() {
		c.supervisor.TerminateChild(rec.Handle)
	}
	for _, h := range c.monitors.handles() {
		c.supervisor.TerminateChild(h)
	}
	close(c.quit)
}

// handleReconfigure swaps in a new max_overflow/strategy pair. Overflow
// workers already admitted above the new ceiling are left running and are
// dismissed as they're checked in, the same path an ordinary overflow
// checkin already takes.
func (c *coordinator) handleReconfigure(cmd reconfigureCmd) {
	c.maxOverflow = cmd.maxOverflow
	c.strategy = cmd.strategy
}

func (c *coordinator) status() Status {
	idle, overflow, busy := c.idle.len(), c.overflow, c.monitors.len()
	return Status{
		State:    deriveState(idle, overflow, c.maxOverflow),
		Idle:     idle,
		Overflow: overflow,
		Busy:     busy,
	}
}

func (c *coordinator) snapshot() Snapshot {
	workers := make([]WorkerSnapshot, 0, c.idle.len()+c.monitors.len())
	for _, rec := range c.idle.records() {
		workers = append(workers, WorkerSnapshot{Worker: rec.Handle.String(), Busy: false, LastUpdated: rec.LastUpdated})
	}
	now := time.Now()
	for _, h := range c.monitors.handles() {
		workers = append(workers, WorkerSnapshot{Worker: h.String(), Busy: true, LastUpdated: now})
	}
	return Snapshot{
		Status:  c.status(),
		Waiters: c.waiters.len(),
		Workers: workers,
	}
}

func (c *coordinator) publish(kind EventKind, h WorkerHandle) {
	worker := ""
	if h != nil {
		worker = h.String()
	}
	c.broker.Publish(pubsub.UpdatedEvent, Event{
		Kind:        kind,
		Worker:      worker,
		IdleCount:   c.idle.len(),
		BusyCount:   c.monitors.len(),
		Overflow:    c.overflow,
		WaiterCount: c.waiters.len(),
		At:          time.Now(),
	})
}
