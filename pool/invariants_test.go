package pool

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fakeHandle struct{ id int }

func (f fakeHandle) String() string { return fmt.Sprintf("worker-%d", f.id) }

// TestProperty_IdleSetFrontRemovalOnly checks that popFront always returns
// whichever record is currently at the front, regardless of the mix of
// pushFront/pushBack calls that produced the set.
func TestProperty_IdleSetFrontRemovalOnly(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		set := newIdleSet()
		var front []WorkerRecord

		n := rapid.IntRange(0, 30).Draw(t, "numOps")
		for i := 0; i < n; i++ {
			h := fakeHandle{id: i}
			rec := WorkerRecord{Handle: h, LastUpdated: time.Now()}
			if rapid.Bool().Draw(t, "pushFront") {
				set.pushFront(rec)
				front = append([]WorkerRecord{rec}, front...)
			} else {
				set.pushBack(rec)
				front = append(front, rec)
			}
		}

		for len(front) > 0 {
			got, ok := set.popFront()
			require.True(t, ok)
			require.Equal(t, front[0].Handle, got.Handle)
			front = front[1:]
		}
		_, ok := set.popFront()
		require.False(t, ok)
	})
}

// TestProperty_IdleSetRemoveIsExhaustive checks that remove() only ever
// reports true for a handle that is actually still present, and that the
// set's length tracks every push/remove exactly.
func TestProperty_IdleSetRemoveIsExhaustive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		set := newIdleSet()
		present := map[int]bool{}

		n := rapid.IntRange(1, 20).Draw(t, "numHandles")
		for i := 0; i < n; i++ {
			set.pushBack(WorkerRecord{Handle: fakeHandle{id: i}})
			present[i] = true
		}

		ops := rapid.IntRange(0, 40).Draw(t, "numRemoves")
		for i := 0; i < ops; i++ {
			id := rapid.IntRange(0, n-1).Draw(t, "removeID")
			removed := set.remove(fakeHandle{id: id})
			require.Equal(t, present[id], removed)
			present[id] = false
		}

		want := 0
		for _, ok := range present {
			if ok {
				want++
			}
		}
		require.Equal(t, want, set.len())
	})
}

// TestProperty_WaiterQueueIsFIFOUnlessCancelled checks that dequeue always
// returns waiters in enqueue order, skipping any that were cancelled out
// of order.
func TestProperty_WaiterQueueIsFIFOUnlessCancelled(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := newWaiterQueue()
		var order []CancelToken

		n := rapid.IntRange(1, 20).Draw(t, "numWaiters")
		for i := 0; i < n; i++ {
			ref := newCancelToken()
			q.enqueue(&waiter{clientRef: ref})
			order = append(order, ref)
		}

		// Cancel a random subset before draining.
		cancelCount := rapid.IntRange(0, n).Draw(t, "numCancels")
		for i := 0; i < cancelCount; i++ {
			idx := rapid.IntRange(0, len(order)-1).Draw(t, "cancelIdx")
			if order[idx] == (CancelToken{}) {
				continue
			}
			w, ok := q.removeByClientRef(order[idx])
			if ok {
				require.Equal(t, order[idx], w.clientRef)
				order[idx] = CancelToken{}
			}
		}

		var remaining []CancelToken
		for _, ref := range order {
			if ref != (CancelToken{}) {
				remaining = append(remaining, ref)
			}
		}

		for _, want := range remaining {
			w, ok := q.dequeue()
			require.True(t, ok)
			require.Equal(t, want, w.clientRef)
		}
		_, ok := q.dequeue()
		require.False(t, ok)
	})
}

// TestProperty_MonitorTableIndicesStayConsistent checks that the three
// indices of a monitorTable always agree on which workers are monitored.
func TestProperty_MonitorTableIndicesStayConsistent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mt := newMonitorTable()
		active := map[int]monitor{}

		n := rapid.IntRange(1, 15).Draw(t, "numWorkers")
		ops := rapid.IntRange(0, 40).Draw(t, "numOps")
		for i := 0; i < ops; i++ {
			id := rapid.IntRange(0, n-1).Draw(t, "workerID")
			h := fakeHandle{id: id}
			if rapid.Bool().Draw(t, "addOrRemove") {
				m := monitor{worker: h, clientRef: newCancelToken(), liveness: newMonitorToken()}
				mt.add(m)
				active[id] = m
			} else {
				_, existed := active[id]
				_, ok := mt.removeByWorker(h)
				require.Equal(t, existed, ok)
				delete(active, id)
			}
		}

		require.Equal(t, len(active), mt.len())
		for id, m := range active {
			require.True(t, mt.has(fakeHandle{id: id}))
			gotWorker, ok := mt.workerForClientRef(m.clientRef)
			require.True(t, ok)
			require.Equal(t, m.worker, gotWorker)
			gotRef, ok := mt.clientRefForLiveness(m.liveness)
			require.True(t, ok)
			require.Equal(t, m.clientRef, gotRef)
		}
	})
}

// TestProperty_DeriveStateIsPure checks that deriveState depends only on
// its arguments and always returns FULL once overflow has saturated
// max_overflow.
func TestProperty_DeriveStateIsPure(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		idle := rapid.IntRange(0, 50).Draw(t, "idle")
		overflow := rapid.IntRange(0, 50).Draw(t, "overflow")
		maxOverflow := rapid.IntRange(0, 50).Draw(t, "maxOverflow")

		a := deriveState(idle, overflow, maxOverflow)
		b := deriveState(idle, overflow, maxOverflow)
		require.Equal(t, a, b)

		if overflow > 0 && overflow == maxOverflow {
			require.Equal(t, StateFull, a)
		}
		if overflow == 0 && idle > 0 {
			require.Equal(t, StateReady, a)
		}
	})
}

// TestSalvageAfterCancelNeverReturnsACheckoutWorker checks that once a
// cancel has been issued, a checkout never receives a worker that raced
// its way into replyCh, while a work reply that lands in the same window
// is still honored.
func TestSalvageAfterCancelNeverReturnsACheckoutWorker(t *testing.T) {
	checkoutReply := make(chan requestResult, 1)
	checkoutReply <- requestResult{worker: fakeHandle{id: 1}}
	res, err := salvageAfterCancel(false, checkoutReply)
	require.ErrorIs(t, err, ErrTimeout)
	require.Nil(t, res.worker)

	emptyCheckoutReply := make(chan requestResult, 1)
	res, err = salvageAfterCancel(false, emptyCheckoutReply)
	require.ErrorIs(t, err, ErrTimeout)
	require.Nil(t, res.worker)

	workReply := make(chan requestResult, 1)
	workReply <- requestResult{reply: "done"}
	res, err = salvageAfterCancel(true, workReply)
	require.NoError(t, err)
	require.Equal(t, "done", res.reply)

	emptyWorkReply := make(chan requestResult, 1)
	res, err = salvageAfterCancel(true, emptyWorkReply)
	require.ErrorIs(t, err, ErrTimeout)

	erroredWorkReply := make(chan requestResult, 1)
	erroredWorkReply <- requestResult{err: ErrSpawnFailed}
	_, err = salvageAfterCancel(true, erroredWorkReply)
	require.ErrorIs(t, err, ErrSpawnFailed)
}

// TestProperty_StatusAndSnapshotAgreeOnState checks that Status() and the
// Status embedded in Snapshot() never disagree, since both are computed
// from the same coordinator-internal counts via the same pure function.
func TestProperty_StatusAndSnapshotAgreeOnState(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		idle := rapid.IntRange(0, 10).Draw(t, "idle")
		overflow := rapid.IntRange(0, 10).Draw(t, "overflow")
		busy := rapid.IntRange(0, 10).Draw(t, "busy")
		maxOverflow := rapid.IntRange(0, 10).Draw(t, "maxOverflow")

		c := &coordinator{
			idle:        newIdleSet(),
			monitors:    newMonitorTable(),
			waiters:     newWaiterQueue(),
			overflow:    overflow,
			maxOverflow: maxOverflow,
		}
		for i := 0; i < idle; i++ {
			c.idle.pushBack(WorkerRecord{Handle: fakeHandle{id: i}})
		}
		for i := 0; i < busy; i++ {
			c.monitors.add(monitor{worker: fakeHandle{id: 1000 + i}, clientRef: newCancelToken(), liveness: newMonitorToken()})
		}

		st := c.status()
		snap := c.snapshot()
		require.Equal(t, st.State, snap.Status.State)
		require.Equal(t, st.Idle, snap.Status.Idle)
		require.Equal(t, st.Busy, snap.Status.Busy)
		require.Equal(t, st.Overflow, snap.Status.Overflow)
	})
}
