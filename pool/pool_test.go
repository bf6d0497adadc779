package pool_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/agentpool/internal/demoworker"
	"github.com/zjrosen/agentpool/pool"
)

func newTestPool(t *testing.T, size, overflow int) (*pool.Pool, *demoworker.Pool) {
	t.Helper()
	dw := demoworker.New(nil)
	p, err := pool.New(pool.Config{
		Name:        t.Name(),
		Size:        size,
		MaxOverflow: overflow,
		Strategy:    pool.LIFO,
		Supervisor:  dw,
		Dispatcher:  dw,
		LivenessTTL: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(p.Stop)
	return p, dw
}

func TestCheckoutCheckin(t *testing.T) {
	p, _ := newTestPool(t, 2, 0)
	ctx := context.Background()

	h, err := p.Checkout(ctx, false)
	require.NoError(t, err)
	require.NotNil(t, h)

	st := p.Status()
	require.Equal(t, 1, st.Idle)
	require.Equal(t, 1, st.Busy)

	p.Checkin(h)
	require.Eventually(t, func() bool {
		return p.Status().Idle == 2
	}, time.Second, time.Millisecond)
}

func TestCheckoutHeldWorkerNotReleasedBeforeCheckin(t *testing.T) {
	p, _ := newTestPool(t, 1, 0)
	ctx := context.Background()

	h, err := p.Checkout(ctx, false)
	require.NoError(t, err)

	// Wait out several liveness TTL windows while still holding the
	// worker, but less than the one-second minimum sweep interval, so no
	// sweep runs. A premature release of the held token would surface here
	// as a spurious checkin, well before we ever call Checkin ourselves.
	time.Sleep(200 * time.Millisecond)

	st := p.Status()
	require.Equal(t, 0, st.Idle)
	require.Equal(t, 1, st.Busy)

	p.Checkin(h)
	require.Eventually(t, func() bool {
		return p.Status().Idle == 1
	}, time.Second, time.Millisecond)
}

func TestCheckoutNonBlockingFullReturnsErrPoolFull(t *testing.T) {
	p, _ := newTestPool(t, 1, 0)
	ctx := context.Background()

	_, err := p.Checkout(ctx, false)
	require.NoError(t, err)

	_, err = p.Checkout(ctx, false)
	require.ErrorIs(t, err, pool.ErrPoolFull)
}

func TestOverflowAdmission(t *testing.T) {
	p, _ := newTestPool(t, 1, 1)
	ctx := context.Background()

	h1, err := p.Checkout(ctx, false)
	require.NoError(t, err)

	h2, err := p.Checkout(ctx, false)
	require.NoError(t, err)
	require.NotEqual(t, h1.String(), h2.String())

	st := p.Status()
	require.Equal(t, 0, st.Idle)
	require.Equal(t, 1, st.Overflow)
	require.Equal(t, pool.StateFull, st.State)

	_, err = p.Checkout(ctx, false)
	require.ErrorIs(t, err, pool.ErrPoolFull)
}

func TestOverflowWorkerDismissedOnCheckin(t *testing.T) {
	p, _ := newTestPool(t, 1, 1)
	ctx := context.Background()

	_, err := p.Checkout(ctx, false)
	require.NoError(t, err)
	overflowHandle, err := p.Checkout(ctx, false)
	require.NoError(t, err)

	p.Checkin(overflowHandle)
	require.Eventually(t, func() bool {
		st := p.Status()
		return st.Overflow == 0 && st.Idle == 0
	}, time.Second, time.Millisecond)
}

func TestBlockingCheckoutWaitsForCheckin(t *testing.T) {
	p, _ := newTestPool(t, 1, 0)
	ctx := context.Background()

	h, err := p.Checkout(ctx, false)
	require.NoError(t, err)

	done := make(chan struct{})
	var got pool.WorkerHandle
	go func() {
		defer close(done)
		var err error
		got, err = p.Checkout(ctx, true)
		require.NoError(t, err)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("blocking checkout returned before a worker was available")
	default:
	}

	p.Checkin(h)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocking checkout never returned")
	}
	require.Equal(t, h.String(), got.String())
}

func TestBlockingCheckoutTimesOut(t *testing.T) {
	p, _ := newTestPool(t, 1, 0)
	ctx := context.Background()

	_, err := p.Checkout(ctx, false)
	require.NoError(t, err)

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = p.Checkout(tctx, true)
	require.Error(t, err)
}

func TestWorkDispatchesAndAutoCheckin(t *testing.T) {
	p, _ := newTestPool(t, 1, 0)
	ctx := context.Background()

	reply, err := p.Work(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, "processed: hello", reply)

	require.Eventually(t, func() bool {
		return p.Status().Idle == 1 && p.Status().Busy == 0
	}, time.Second, time.Millisecond)
}

func TestTransactionChecksInOnError(t *testing.T) {
	p, _ := newTestPool(t, 1, 0)
	ctx := context.Background()

	boom := errors.New("boom")
	err := p.Transaction(ctx, func(pool.WorkerHandle) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.Eventually(t, func() bool {
		return p.Status().Idle == 1
	}, time.Second, time.Millisecond)
}

func TestCancelledBlockingCheckoutReturnsContextCanceled(t *testing.T) {
	p, _ := newTestPool(t, 1, 0)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := p.Checkout(ctx, false)
	require.NoError(t, err)

	cctx, ccancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := p.Checkout(cctx, true)
		require.ErrorIs(t, err, context.Canceled)
	}()
	time.Sleep(20 * time.Millisecond)
	ccancel()
	<-done
	cancel()
}

func TestCrashedIdleWorkerIsReplaced(t *testing.T) {
	p, dw := newTestPool(t, 2, 0)

	h, err := p.Checkout(context.Background(), false)
	require.NoError(t, err)
	p.Checkin(h)
	require.Eventually(t, func() bool { return p.Status().Idle == 2 }, time.Second, time.Millisecond)

	dw.Crash(h)

	require.Eventually(t, func() bool {
		return p.Status().Idle == 2
	}, time.Second, time.Millisecond)
}

func TestCrashedBusyWorkerReassignsToWaiter(t *testing.T) {
	p, dw := newTestPool(t, 1, 0)
	ctx := context.Background()

	h, err := p.Checkout(ctx, false)
	require.NoError(t, err)

	done := make(chan struct{})
	var waiterErr error
	go func() {
		defer close(done)
		_, waiterErr = p.Checkout(ctx, true)
	}()
	time.Sleep(20 * time.Millisecond)

	dw.Crash(h)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter was never reassigned a replacement worker")
	}
	require.NoError(t, waiterErr)
	require.Equal(t, 1, p.Status().Busy)
}

func TestStopTerminatesAllWorkers(t *testing.T) {
	dw := demoworker.New(nil)
	p, err := pool.New(pool.Config{
		Size:        3,
		MaxOverflow: 0,
		Supervisor:  dw,
		Dispatcher:  dw,
	})
	require.NoError(t, err)

	h, err := p.Checkout(context.Background(), false)
	require.NoError(t, err)
	_ = h

	p.Stop()
	// Stop is idempotent.
	p.Stop()

	_, err = p.Checkout(context.Background(), false)
	require.ErrorIs(t, err, pool.ErrPoolClosed)
}

func TestSpawnFailureAtStartupReturnsError(t *testing.T) {
	dw := demoworker.New(nil)
	dw.FailNextSpawn()
	_, err := pool.New(pool.Config{
		Size:       1,
		Supervisor: dw,
		Dispatcher: dw,
	})
	require.ErrorIs(t, err, pool.ErrSpawnFailed)
}
