package agentpool

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/agentpool/internal/demoworker"
	"github.com/zjrosen/agentpool/internal/tracing"
	"github.com/zjrosen/agentpool/pool"
)

func testPool(t *testing.T) *pool.Pool {
	t.Helper()
	dw := demoworker.New(nil)
	cfg := pool.Defaults()
	cfg.Size = 1
	cfg.MaxOverflow = 0
	cfg.Supervisor = dw
	cfg.Dispatcher = dw
	p, err := pool.New(cfg)
	require.NoError(t, err)
	t.Cleanup(p.Stop)
	return p
}

func TestStatusHandler(t *testing.T) {
	p := testPool(t)

	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	statusHandler(p)(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "Idle")
}

func TestSnapshotHandler(t *testing.T) {
	p := testPool(t)

	req := httptest.NewRequest("GET", "/snapshot", nil)
	rec := httptest.NewRecorder()
	snapshotHandler(p)(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "Workers")
}

func TestHealthHandler(t *testing.T) {
	p := testPool(t)
	tp, err := tracing.NewProvider(tracing.DefaultConfig())
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	healthHandler(p, tp)(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), `"ok"`)
}

func TestWorkHandlerDispatchesAndReturnsReply(t *testing.T) {
	p := testPool(t)
	tp, err := tracing.NewProvider(tracing.DefaultConfig())
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/work", strings.NewReader("hi"))
	rec := httptest.NewRecorder()
	workHandler(p, tp)(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "processed: hi")
}

func TestWorkHandlerRejectsNonPost(t *testing.T) {
	p := testPool(t)
	tp, err := tracing.NewProvider(tracing.DefaultConfig())
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/work", nil)
	rec := httptest.NewRecorder()
	workHandler(p, tp)(rec, req)

	require.Equal(t, 405, rec.Code)
}
