// Package pool implements a generic worker pool coordinator.
//
// A Pool multiplexes a bounded set of long-lived worker agents among many
// concurrent clients. Clients either check out an idle worker, use it
// directly, then check it back in, or submit a work message and receive the
// worker's reply without ever naming the worker. The pool enforces a
// configured steady-state size, optionally admits a bounded number of
// overflow workers under load, queues excess callers when blocking is
// permitted, and survives crashes of both clients and workers without
// leaking resources.
//
// # Architecture
//
// All pool state — the idle-worker set, the waiter queue, and the table of
// busy workers and their monitors — is owned by a single coordinator
// goroutine that processes one event at a time:
//
//	Checkout/Work/Checkin  -->  coordinator inbox  -->  event handler
//	                                   |
//	                                   +-- Supervisor (spawns/terminates workers)
//	                                   +-- Dispatcher (delivers messages, one-shot reply)
//
// Every public method is safe to call from any number of goroutines;
// serialization happens at the coordinator's inbox, never via a shared
// mutex over the pool's collections.
package pool
