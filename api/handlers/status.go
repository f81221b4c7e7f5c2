package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcoord/coordinator"
	"github.com/BaSui01/agentcoord/internal/cache"
	"github.com/BaSui01/agentcoord/types"
)

const (
	defaultStreamInterval = 2 * time.Second
	streamWriteTimeout    = 5 * time.Second
)

// StatusCache 读取最近一次发布到 Redis 的状态快照
type StatusCache interface {
	ReadStatusRaw(ctx context.Context) ([]byte, error)
}

// StatusOption 配置 StatusHandler
type StatusOption func(*StatusHandler)

// WithStatusCache 启用 ?source=cache
func WithStatusCache(c StatusCache) StatusOption {
	return func(h *StatusHandler) { h.cache = c }
}

// WithStreamInterval 设置 WebSocket 推送间隔
func WithStreamInterval(d time.Duration) StatusOption {
	return func(h *StatusHandler) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithOriginPatterns 允许跨域的 WebSocket 来源（同源总是允许）
func WithOriginPatterns(patterns ...string) StatusOption {
	return func(h *StatusHandler) { h.originPatterns = patterns }
}

// StatusHandler 状态快照与状态流
type StatusHandler struct {
	engine         *coordinator.Engine
	cache          StatusCache
	interval       time.Duration
	originPatterns []string
	logger         *zap.Logger
}

// NewStatusHandler 创建状态处理器
func NewStatusHandler(engine *coordinator.Engine, logger *zap.Logger, opts ...StatusOption) *StatusHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &StatusHandler{
		engine:   engine,
		interval: defaultStreamInterval,
		logger:   logger.With(zap.String("component", "status_handler")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleStatus 返回当前状态快照
// @Summary 协调状态
// @Description 默认读取引擎内存状态；source=cache 时读取最近一次发布到 Redis 的快照
// @Tags 状态
// @Produce json
// @Param source query string false "engine | cache"
// @Success 200 {object} Response{data=coordinator.Status} "状态"
// @Failure 404 {object} Response "缓存中没有快照"
// @Failure 503 {object} Response "缓存不可用"
// @Security ApiKeyAuth
// @Router /api/v1/status [get]
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	switch source := r.URL.Query().Get("source"); source {
	case "", "engine":
		WriteSuccess(w, h.engine.Status())
	case "cache":
		h.handleCached(w, r)
	default:
		WriteError(w, types.NewInvalidRequestError("unknown status source: "+source), h.logger)
	}
}

func (h *StatusHandler) handleCached(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		WriteError(w, types.NewError(types.ErrCacheUnavailable, "status cache is not configured"), h.logger)
		return
	}
	raw, err := h.cache.ReadStatusRaw(r.Context())
	switch {
	case cache.IsCacheMiss(err):
		WriteError(w, types.NewError(types.ErrCacheUnavailable, "no status snapshot published").
			WithHTTPStatus(http.StatusNotFound), h.logger)
	case err != nil:
		WriteError(w, types.WrapError(err, types.ErrCacheUnavailable, "read status snapshot").
			WithRetryable(true), h.logger)
	default:
		WriteSuccess(w, json.RawMessage(raw))
	}
}

// HandleStream 升级为 WebSocket，按固定间隔推送状态快照直到客户端断开
// @Summary 状态流
// @Tags 状态
// @Success 101 "Switching Protocols"
// @Security ApiKeyAuth
// @Router /api/v1/status/stream [get]
func (h *StatusHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	// 长连接不受服务器读写超时约束
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		// Accept 已经写出了错误响应
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 客户端不会发消息；CloseRead 负责处理对端关闭帧
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Debug("status stream opened", zap.String("remote", r.RemoteAddr))
	for {
		if err := h.push(ctx, conn); err != nil {
			h.logger.Debug("status stream closed", zap.Error(err))
			return
		}
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
		}
	}
}

func (h *StatusHandler) push(ctx context.Context, conn *websocket.Conn) error {
	data, err := json.Marshal(h.engine.Status())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
