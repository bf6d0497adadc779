package pool

import "container/list"

type waiterKind int

const (
	waiterCheckout waiterKind = iota
	waiterWork
)

// waiter is a client blocked on checkout/work because neither an idle
// worker nor an overflow slot was available.
type waiter struct {
	kind      waiterKind
	msg       Message
	clientRef CancelToken
	liveness  MonitorToken
	resultCh  chan requestResult
}

// waiterQueue is the FIFO of pending clients. Lookup by CancelToken or
// MonitorToken is a linear scan: the queue only holds callers that are both
// blocked *and* past steady-state plus overflow capacity, so in practice it
// stays small relative to the cost of a second index.
type waiterQueue struct {
	items *list.List
}

func newWaiterQueue() *waiterQueue {
	return &waiterQueue{items: list.New()}
}

func (q *waiterQueue) len() int { return q.items.Len() }

func (q *waiterQueue) enqueue(w *waiter) {
	q.items.PushBack(w)
}

func (q *waiterQueue) dequeue() (*waiter, bool) {
	el := q.items.Front()
	if el == nil {
		return nil, false
	}
	q.items.Remove(el)
	return el.Value.(*waiter), true
}

func (q *waiterQueue) removeByClientRef(ref CancelToken) (*waiter, bool) {
	for el := q.items.Front(); el != nil; el = el.Next() {
		w := el.Value.(*waiter)
		if w.clientRef == ref {
			q.items.Remove(el)
			return w, true
		}
	}
	return nil, false
}

func (q *waiterQueue) removeByLiveness(tok MonitorToken) (*waiter, bool) {
	for el := q.items.Front(); el != nil; el = el.Next() {
		w := el.Value.(*waiter)
		if w.liveness == tok {
			q.items.Remove(el)
			return w, true
		}
	}
	return nil, false
}
