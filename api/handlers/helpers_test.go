package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentcoord/config"
	"github.com/BaSui01/agentcoord/coordinator"
	"github.com/BaSui01/agentcoord/worker"
)

func newEngine(t *testing.T, workers ...worker.Worker) *coordinator.Engine {
	t.Helper()
	e, err := coordinator.New(
		coordinator.WithLogger(zaptest.NewLogger(t)),
		coordinator.WithConfig(config.CoordinatorConfig{
			CycleInterval: 10 * time.Millisecond,
			ProbeTimeout:  time.Second,
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Stop() })
	for _, w := range workers {
		_, err := e.RegisterWorker(w)
		require.NoError(t, err)
	}
	return e
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

// decodeData 解出 Response.Data 到 dst，并返回外层响应
func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst any) Response {
	t.Helper()
	var raw struct {
		Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw), w.Body.String())
	if dst != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, dst))
	}
	return raw.Response
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decodeData(t, w, nil)
	require.NotNil(t, resp.Error, w.Body.String())
	return resp.Error.Code
}

// serve 通过 ServeMux 路由请求，以便 PathValue 生效
func serve(pattern string, h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}
