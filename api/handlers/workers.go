package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcoord/api"
	"github.com/BaSui01/agentcoord/coordinator"
	"github.com/BaSui01/agentcoord/registry"
	"github.com/BaSui01/agentcoord/types"
	"github.com/BaSui01/agentcoord/worker"
)

// =============================================================================
// 🤖 Worker 管理 Handler
// =============================================================================

// WorkerHandler worker 注册与查询
type WorkerHandler struct {
	engine *coordinator.Engine
	client *http.Client
	logger *zap.Logger
}

// NewWorkerHandler 创建 worker 处理器。client 用于远程 worker 的投递与探测，
// 为 nil 时每个 worker 使用加固过的默认客户端。
func NewWorkerHandler(engine *coordinator.Engine, client *http.Client, logger *zap.Logger) *WorkerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerHandler{engine: engine, client: client, logger: logger}
}

// remote 由 HTTP worker 实现（含带探针的变体）
type remote interface {
	Config() worker.HTTPConfig
}

// HandleRegister 注册远程 worker
// @Summary 注册 worker
// @Description 注册一个通过 HTTP webhook 接收消息的远程 worker
// @Tags worker
// @Accept json
// @Produce json
// @Param request body api.RegisterWorkerRequest true "注册请求"
// @Success 201 {object} Response{data=api.WorkerInfo} "已注册"
// @Failure 400 {object} Response "无效请求"
// @Failure 409 {object} Response "ID 已存在"
// @Security ApiKeyAuth
// @Router /api/v1/workers [post]
func (h *WorkerHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.RegisterWorkerRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		WriteError(w, types.NewInvalidRequestError("id is required"), h.logger)
		return
	}
	if req.Endpoint == "" {
		WriteError(w, types.NewInvalidRequestError("endpoint is required"), h.logger)
		return
	}
	if len(req.Skills) == 0 {
		WriteError(w, types.NewInvalidRequestError("at least one skill is required"), h.logger)
		return
	}
	if _, exists := h.engine.Worker(req.ID); exists && !req.Replace {
		WriteError(w, types.NewError(types.ErrWorkerExists, "worker already registered: "+req.ID), h.logger)
		return
	}

	cfg, err := req.ToHTTPConfig()
	if err != nil {
		WriteError(w, types.NewInvalidRequestError("invalid timeout").WithCause(err), h.logger)
		return
	}
	wk, err := worker.NewHTTP(cfg, h.client)
	if err != nil {
		WriteError(w, types.NewInvalidRequestError("invalid worker").WithCause(err), h.logger)
		return
	}

	c, err := h.engine.RegisterWorker(wk)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	h.logger.Info("remote worker registered",
		zap.String("worker_id", req.ID),
		zap.String("endpoint", req.Endpoint),
		zap.Bool("replaced", req.Replace),
	)
	WriteStatus(w, http.StatusCreated, h.info(c))
}

// HandleList 列出所有 worker
// @Summary 列出 worker
// @Tags worker
// @Produce json
// @Success 200 {object} Response{data=[]api.WorkerInfo} "worker 列表"
// @Security ApiKeyAuth
// @Router /api/v1/workers [get]
func (h *WorkerHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	caps := h.engine.Capabilities()
	out := make([]api.WorkerInfo, 0, len(caps))
	for _, c := range caps {
		out = append(out, h.info(c))
	}
	WriteSuccess(w, out)
}

// HandleGet 查询单个 worker
// @Summary 查询 worker
// @Tags worker
// @Produce json
// @Param id path string true "worker ID"
// @Success 200 {object} Response{data=api.WorkerInfo} "worker 信息"
// @Failure 404 {object} Response "不存在"
// @Security ApiKeyAuth
// @Router /api/v1/workers/{id} [get]
func (h *WorkerHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, ok := h.engine.Capability(id)
	if !ok {
		WriteError(w, types.NewNotFoundError(types.ErrWorkerNotFound, id), h.logger)
		return
	}
	WriteSuccess(w, h.info(c))
}

// HandleUnregister 注销 worker。它被分配的任务保持在途，直到完成或超期。
// @Summary 注销 worker
// @Tags worker
// @Param id path string true "worker ID"
// @Success 204 "已注销"
// @Failure 404 {object} Response "不存在"
// @Security ApiKeyAuth
// @Router /api/v1/workers/{id} [delete]
func (h *WorkerHandler) HandleUnregister(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.UnregisterWorker(r.PathValue("id")); err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WorkerHandler) info(c registry.Capability) api.WorkerInfo {
	info := api.WorkerInfo{
		ID:                   c.WorkerID,
		Name:                 c.Name,
		Skills:               c.Skills,
		PerformanceScore:     c.PerformanceScore,
		Availability:         c.Available,
		CurrentLoad:          c.CurrentLoad,
		CollaborationHistory: c.Collaborations,
		RegisteredAt:         c.RegisteredAt,
	}
	if wk, ok := h.engine.Worker(c.WorkerID); ok {
		if rw, ok := wk.(remote); ok {
			cfg := rw.Config()
			info.Remote = true
			info.Endpoint = cfg.Endpoint
			info.StatusEndpoint = cfg.StatusEndpoint
		}
	}
	return info
}
