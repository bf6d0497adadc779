// Package demoworker is a reference Supervisor/Dispatcher pair: each
// worker is its own goroutine reading from a small buffered inbox, the
// shape "cmd/agentpool serve" runs by default and the shape pool's own
// tests spawn against. Swap it out for a real process/RPC/queue-backed
// implementation without touching the pool package.
package demoworker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/agentpool/internal/log"
	"github.com/zjrosen/agentpool/pool"
)

// Handle identifies one demoworker goroutine.
type Handle struct {
	id string
}

func (h Handle) String() string { return h.id }

type job struct {
	msg   pool.Message
	reply pool.Replier
}

type worker struct {
	handle Handle
	inbox  chan job
	quit   chan struct{}
}

// SpawnFunc optionally customizes how a worker handles a dispatched
// message. The default echoes the message back after a short simulated
// delay. Tests substitute this to control timing and failure injection.
type SpawnFunc func(ctx context.Context, msg pool.Message) (pool.Reply, error)

// Pool is a Supervisor and Dispatcher backed by real goroutines. It is
// intentionally simple: no retries, no backpressure beyond the inbox
// buffer, no persistence. Good enough to drive the coordinator's protocol
// honestly; not a production worker runtime.
type Pool struct {
	mu       sync.Mutex
	workers  map[Handle]*worker
	exits    chan pool.WorkerHandle
	work     SpawnFunc
	spawned  atomic.Int64
	failNext atomic.Bool // test hook: force the next StartChild to fail
}

// New creates a demoworker Pool. If work is nil, DefaultWork is used.
func New(work SpawnFunc) *Pool {
	if work == nil {
		work = DefaultWork
	}
	return &Pool{
		workers: make(map[Handle]*worker),
		exits:   make(chan pool.WorkerHandle, 16),
		work:    work,
	}
}

// DefaultWork simulates a small unit of work (a 10ms delay) and echoes the
// message back as the reply, prefixed with "processed: ".
func DefaultWork(ctx context.Context, msg pool.Message) (pool.Reply, error) {
	select {
	case <-time.After(10 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return fmt.Sprintf("processed: %v", msg), nil
}

// FailNextSpawn makes the next StartChild call return an error, for
// exercising the coordinator's spawn-failure handling. Consumed once.
func (p *Pool) FailNextSpawn() {
	p.failNext.Store(true)
}

// StartChild implements pool.Supervisor.
func (p *Pool) StartChild(ctx context.Context) (pool.WorkerHandle, error) {
	if p.failNext.CompareAndSwap(true, false) {
		return nil, fmt.Errorf("demoworker: injected spawn failure")
	}
	n := p.spawned.Add(1)
	w := &worker{
		handle: Handle{id: fmt.Sprintf("worker-%d-%s", n, uuid.NewString()[:8])},
		inbox:  make(chan job, 1),
		quit:   make(chan struct{}),
	}
	p.mu.Lock()
	p.workers[w.handle] = w
	p.mu.Unlock()

	go p.run(w)
	log.Debug(log.CatPool, "demoworker spawned", "worker", w.handle.String())
	return w.handle, nil
}

func (p *Pool) run(w *worker) {
	for {
		select {
		case j := <-w.inbox:
			reply, err := p.work(context.Background(), j.msg)
			if err != nil {
				reply = fmt.Sprintf("error: %v", err)
			}
			j.reply(reply)
		case <-w.quit:
			return
		}
	}
}

// TerminateChild implements pool.Supervisor. It unlinks the worker first:
// its exit is never reported on Exits().
func (p *Pool) TerminateChild(h pool.WorkerHandle) {
	p.mu.Lock()
	wh, _ := h.(Handle)
	w, ok := p.workers[wh]
	if ok {
		delete(p.workers, wh)
	}
	p.mu.Unlock()
	if ok {
		close(w.quit)
	}
}

// Exits implements pool.Supervisor.
func (p *Pool) Exits() <-chan pool.WorkerHandle {
	return p.exits
}

// Crash forcibly kills a worker without unlinking it first, simulating an
// unexpected failure for tests. The exit is reported on Exits().
func (p *Pool) Crash(h pool.WorkerHandle) {
	p.mu.Lock()
	wh, _ := h.(Handle)
	w, ok := p.workers[wh]
	if ok {
		delete(p.workers, wh)
	}
	p.mu.Unlock()
	if ok {
		close(w.quit)
		p.exits <- wh
	}
}

// Dispatch implements pool.Dispatcher.
func (p *Pool) Dispatch(h pool.WorkerHandle, msg pool.Message, reply pool.Replier) {
	p.mu.Lock()
	wh, _ := h.(Handle)
	w, ok := p.workers[wh]
	p.mu.Unlock()
	if !ok {
		reply(fmt.Sprintf("error: unknown worker %s", h.String()))
		return
	}
	w.inbox <- job{msg: msg, reply: reply}
}
