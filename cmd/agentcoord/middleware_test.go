package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentcoord/api/handlers"
	"github.com/BaSui01/agentcoord/config"
	"github.com/BaSui01/agentcoord/internal/metrics"
	"github.com/BaSui01/agentcoord/types"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func errorCodeOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp handlers.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(okHandler(), mark("outer"), mark("inner"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = types.RequestID(r.Context())
	})
	handler := RequestID()(inner)

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get("X-Request-ID")
		assert.Contains(t, id, "req-")
		assert.Equal(t, id, seen)
	})

	t.Run("preserved", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", "client-id")
		handler.ServeHTTP(w, r)
		assert.Equal(t, "client-id", w.Header().Get("X-Request-ID"))
		assert.Equal(t, "client-id", seen)
	})
}

func TestRecovery(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := Recovery(zaptest.NewLogger(t))(panicking)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(types.ErrInternalError), errorCodeOf(t, w))
}

func TestAPIKeyAuth(t *testing.T) {
	handler := APIKeyAuth([]string{"secret"}, []string{"/health"}, true, zap.NewNop())(okHandler())

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "skip path", path: "/health", want: http.StatusOK},
		{name: "missing key", path: "/api/v1/workers", want: http.StatusUnauthorized},
		{name: "wrong key", path: "/api/v1/workers", header: "nope", want: http.StatusUnauthorized},
		{name: "header key", path: "/api/v1/workers", header: "secret", want: http.StatusOK},
		{name: "query key", path: "/api/v1/workers?api_key=secret", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				r.Header.Set("X-API-Key", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, string(types.ErrUnauthorized), errorCodeOf(t, w))
			}
		})
	}
}

func TestAPIKeyAuth_NoKeysConfigured(t *testing.T) {
	handler := APIKeyAuth(nil, nil, false, zap.NewNop())(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTAuth(t *testing.T) {
	cfg := config.JWTConfig{Secret: "s3cret", Issuer: "agentcoord"}

	var workerID, tenantID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		workerID, _ = types.WorkerID(r.Context())
		tenantID, _ = types.TenantID(r.Context())
	})
	handler := JWTAuth(cfg, []string{"/health"}, zap.NewNop())(inner)

	exp := time.Now().Add(time.Hour).Unix()
	valid := signHS256(t, "s3cret", jwt.MapClaims{
		"iss": "agentcoord", "exp": exp, "worker_id": "w1", "tenant_id": "team-a",
	})
	wrongIssuer := signHS256(t, "s3cret", jwt.MapClaims{"iss": "other", "exp": exp})
	wrongSecret := signHS256(t, "nope", jwt.MapClaims{"iss": "agentcoord", "exp": exp})
	expired := signHS256(t, "s3cret", jwt.MapClaims{"iss": "agentcoord", "exp": time.Now().Add(-time.Hour).Unix()})

	tests := []struct {
		name string
		path string
		auth string
		want int
	}{
		{name: "skip path", path: "/health", want: http.StatusOK},
		{name: "missing header", path: "/api/v1/tasks", want: http.StatusUnauthorized},
		{name: "not bearer", path: "/api/v1/tasks", auth: "Basic abc", want: http.StatusUnauthorized},
		{name: "wrong issuer", path: "/api/v1/tasks", auth: "Bearer " + wrongIssuer, want: http.StatusUnauthorized},
		{name: "wrong secret", path: "/api/v1/tasks", auth: "Bearer " + wrongSecret, want: http.StatusUnauthorized},
		{name: "expired", path: "/api/v1/tasks", auth: "Bearer " + expired, want: http.StatusUnauthorized},
		{name: "valid", path: "/api/v1/tasks", auth: "Bearer " + valid, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.auth != "" {
				r.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	// 最后一个用例注入了声明
	assert.Equal(t, "w1", workerID)
	assert.Equal(t, "team-a", tenantID)
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := RateLimiter(ctx, 1, 1, zap.NewNop())(okHandler())

	send := func(remote string, workerID string) int {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
		r.RemoteAddr = remote
		if workerID != "" {
			r = r.WithContext(types.WithWorkerID(r.Context(), workerID))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234", ""))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5678", ""))
	// 不同 IP 独立计数
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1234", ""))
	// worker 身份优先于 IP
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234", "w1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.3:1234", "w1"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := RateLimiter(ctx, 0, 0, zap.NewNop())(okHandler())
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestCORS(t *testing.T) {
	t.Run("no origins configured rejects preflight", func(t *testing.T) {
		handler := CORS(nil)(okHandler())
		r := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks", nil)
		r.Header.Set("Origin", "https://evil.example")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("allowed origin", func(t *testing.T) {
		handler := CORS([]string{"https://ui.example"})(okHandler())
		r := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks", nil)
		r.Header.Set("Origin", "https://ui.example")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://ui.example", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("other origin gets no headers", func(t *testing.T) {
		handler := CORS([]string{"https://ui.example"})(okHandler())
		r := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
		r.Header.Set("Origin", "https://other.example")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func workerRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/workers/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return RouteCapture(mux)
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	collector := metrics.NewCollector("mwtest", zap.NewNop())
	// 中间夹一层会复制 *http.Request 的中间件
	handler := Chain(workerRoutes(), MetricsMiddleware(collector), RequestID())

	for _, id := range []string{"w1", "w2", "w3"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/workers/"+id, nil))
	}

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	var count float64
	paths := map[string]bool{}
	for _, mf := range families {
		if mf.GetName() != "mwtest_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "path" {
					paths[lp.GetValue()] = true
				}
			}
			count += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]bool{"/api/v1/workers/{id}": true}, paths)
	assert.Equal(t, float64(3), count)
}

func TestOTelTracing_NamesSpanAfterRoute(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	handler := Chain(workerRoutes(), OTelTracing())
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/workers/w1", nil))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/workers/{id}", spans[0].Name())

	attrs := map[string]any{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "/api/v1/workers/{id}", attrs["http.route"])
	assert.Equal(t, int64(http.StatusNotFound), attrs["http.response.status_code"])
}

func TestStatusWriter_PassesHijackThrough(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := http.NewResponseController(w).Hijack()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer conn.Close()
		_, _ = buf.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 8\r\nConnection: close\r\n\r\nhijacked")
		_ = buf.Flush()
	})

	logger := zaptest.NewLogger(t)
	collector := metrics.NewCollector("hijacktest", logger)
	srv := httptest.NewServer(Chain(inner, OTelTracing(), MetricsMiddleware(collector), RequestLogger(logger)))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hijacked", string(body))
}
