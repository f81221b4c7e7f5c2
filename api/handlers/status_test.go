package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcoord/coordinator"
	"github.com/BaSui01/agentcoord/internal/cache"
	"github.com/BaSui01/agentcoord/testutil"
	"github.com/BaSui01/agentcoord/testutil/fixtures"
	"github.com/BaSui01/agentcoord/types"
)

type failingCache struct{}

func (failingCache) ReadStatusRaw(ctx context.Context) ([]byte, error) {
	return nil, errors.New("connection reset")
}

func newStatusCache(t *testing.T) *cache.Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	m, err := cache.NewManager(cache.Config{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func getStatus(h *StatusHandler, query string) *httptest.ResponseRecorder {
	return serve("GET /api/v1/status", h.HandleStatus, httptest.NewRequest(http.MethodGet, "/api/v1/status"+query, nil))
}

func TestStatusHandler_EngineSource(t *testing.T) {
	e := newEngine(t, fixtures.NewWorker("w1", "go"))
	_, err := e.SubmitTask(testutil.TestContext(t), fixtures.SimpleTask("build", "go"))
	require.NoError(t, err)
	h := NewStatusHandler(e, zap.NewNop())

	w := getStatus(h, "")
	require.Equal(t, http.StatusOK, w.Code)
	var st coordinator.Status
	decodeData(t, w, &st)
	assert.Equal(t, 1, st.WorkerCount)
	assert.Equal(t, 1, st.InFlightCount)
	assert.Contains(t, st.Workers, "w1")

	w = getStatus(h, "?source=engine")
	assert.Equal(t, http.StatusOK, w.Code)

	w = getStatus(h, "?source=disk")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusHandler_CacheSource(t *testing.T) {
	m := newStatusCache(t)
	e := newEngine(t, fixtures.NewWorker("w1", "go"))
	h := NewStatusHandler(e, zap.NewNop(), WithStatusCache(m))

	w := getStatus(h, "?source=cache")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(types.ErrCacheUnavailable), errorCode(t, w))

	require.NoError(t, m.PublishStatus(testutil.TestContext(t), e.Status()))

	w = getStatus(h, "?source=cache")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var st coordinator.Status
	decodeData(t, w, &st)
	assert.Equal(t, 1, st.WorkerCount)
}

func TestStatusHandler_CacheUnavailable(t *testing.T) {
	e := newEngine(t)

	w := getStatus(NewStatusHandler(e, zap.NewNop()), "?source=cache")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = getStatus(NewStatusHandler(e, zap.NewNop(), WithStatusCache(failingCache{})), "?source=cache")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeData(t, w, nil)
	require.NotNil(t, resp.Error)
	assert.True(t, resp.Error.Retryable)
}

func TestStatusHandler_Stream(t *testing.T) {
	e := newEngine(t, fixtures.NewWorker("w1", "go"))
	h := NewStatusHandler(e, zap.NewNop(), WithStreamInterval(20*time.Millisecond))

	srv := httptest.NewServer(http.HandlerFunc(h.HandleStream))
	defer srv.Close()

	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var first coordinator.Status
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &first))
	assert.Equal(t, 1, first.WorkerCount)

	_, err = e.RegisterWorker(fixtures.NewWorker("w2", "rust"))
	require.NoError(t, err)

	// 后续推送反映新注册的 worker
	testutil.AssertEventuallyTrue(t, func() bool {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return false
		}
		var st coordinator.Status
		return json.Unmarshal(data, &st) == nil && st.WorkerCount == 2
	}, 3*time.Second)

	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func TestStatusHandler_StreamRejectsPlainHTTP(t *testing.T) {
	h := NewStatusHandler(newEngine(t), zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleStream(w, httptest.NewRequest(http.MethodGet, "/api/v1/status/stream", nil))
	assert.NotEqual(t, http.StatusSwitchingProtocols, w.Code)
	assert.GreaterOrEqual(t, w.Code, http.StatusBadRequest)
}
