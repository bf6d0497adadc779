package demoworker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/agentpool/internal/demoworker"
	"github.com/zjrosen/agentpool/pool"
)

func TestStartChildAndDispatch(t *testing.T) {
	dw := demoworker.New(nil)
	h, err := dw.StartChild(context.Background())
	require.NoError(t, err)

	replyCh := make(chan pool.Reply, 1)
	dw.Dispatch(h, "hi", func(r pool.Reply) { replyCh <- r })

	select {
	case r := <-replyCh:
		require.Equal(t, "processed: hi", r)
	case <-time.After(time.Second):
		t.Fatal("dispatch never replied")
	}
}

func TestDispatchToUnknownWorkerRepliesWithError(t *testing.T) {
	dw := demoworker.New(nil)
	replyCh := make(chan pool.Reply, 1)
	dw.Dispatch(demoworker.Handle{}, "hi", func(r pool.Reply) { replyCh <- r })

	r := <-replyCh
	require.Contains(t, r, "unknown worker")
}

func TestFailNextSpawnConsumedOnce(t *testing.T) {
	dw := demoworker.New(nil)
	dw.FailNextSpawn()

	_, err := dw.StartChild(context.Background())
	require.Error(t, err)

	_, err = dw.StartChild(context.Background())
	require.NoError(t, err)
}

func TestTerminateChildDoesNotReportExit(t *testing.T) {
	dw := demoworker.New(nil)
	h, err := dw.StartChild(context.Background())
	require.NoError(t, err)

	dw.TerminateChild(h)

	select {
	case <-dw.Exits():
		t.Fatal("TerminateChild must not report an exit")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCrashReportsExit(t *testing.T) {
	dw := demoworker.New(nil)
	h, err := dw.StartChild(context.Background())
	require.NoError(t, err)

	dw.Crash(h)

	select {
	case exited := <-dw.Exits():
		require.Equal(t, h.String(), exited.String())
	case <-time.After(time.Second):
		t.Fatal("Crash never reported an exit")
	}
}

func TestCustomSpawnFunc(t *testing.T) {
	dw := demoworker.New(func(_ context.Context, msg pool.Message) (pool.Reply, error) {
		return msg, nil
	})
	h, err := dw.StartChild(context.Background())
	require.NoError(t, err)

	replyCh := make(chan pool.Reply, 1)
	dw.Dispatch(h, "echo", func(r pool.Reply) { replyCh <- r })
	require.Equal(t, "echo", <-replyCh)
}
