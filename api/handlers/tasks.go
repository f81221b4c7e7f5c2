package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcoord/api"
	"github.com/BaSui01/agentcoord/coordinator"
	"github.com/BaSui01/agentcoord/dispatch"
	"github.com/BaSui01/agentcoord/types"
	"github.com/BaSui01/agentcoord/worker"
)

// TaskHandler 任务创建、查询与汇报
type TaskHandler struct {
	engine *coordinator.Engine
	logger *zap.Logger
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(engine *coordinator.Engine, logger *zap.Logger) *TaskHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskHandler{engine: engine, logger: logger}
}

// HandleCreate 创建并立即分配任务。没有合格 worker 时返回的任务状态为 failed。
// @Summary 创建任务
// @Tags 任务
// @Accept json
// @Produce json
// @Param request body api.CreateTaskRequest true "任务"
// @Success 201 {object} Response{data=dispatch.Task} "已创建"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /api/v1/tasks [post]
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.CreateTaskRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		WriteError(w, types.NewInvalidRequestError("title is required"), h.logger)
		return
	}
	if _, err := dispatch.ParseComplexity(req.Complexity); err != nil {
		WriteError(w, types.NewInvalidRequestError(err.Error()), h.logger)
		return
	}
	if req.Priority < 0 {
		WriteError(w, types.NewInvalidRequestError("priority must not be negative"), h.logger)
		return
	}

	task, err := h.engine.SubmitTask(r.Context(), req.ToRequest())
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteStatus(w, http.StatusCreated, task)
}

// HandleList 列出在途任务
// @Summary 在途任务列表
// @Tags 任务
// @Produce json
// @Success 200 {object} Response{data=[]dispatch.Task} "任务列表"
// @Security ApiKeyAuth
// @Router /api/v1/tasks [get]
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.engine.Tasks())
}

// HandleGet 查询在途或最近结束的任务
// @Summary 查询任务
// @Tags 任务
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} Response{data=dispatch.Task} "任务"
// @Failure 404 {object} Response "不存在"
// @Security ApiKeyAuth
// @Router /api/v1/tasks/{id} [get]
func (h *TaskHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, ok := h.engine.Task(id)
	if !ok {
		WriteError(w, types.NewNotFoundError(types.ErrTaskNotFound, id), h.logger)
		return
	}
	WriteSuccess(w, task)
}

// HandleReport 接收 worker 的进度或结果。completed/failed 只标记任务，
// 统计与移出在下一个协调周期完成。
// @Summary 汇报任务
// @Tags 任务
// @Accept json
// @Produce json
// @Param id path string true "任务 ID"
// @Param request body api.TaskReportRequest true "汇报"
// @Success 200 {object} Response{data=dispatch.Task} "更新后的任务"
// @Failure 403 {object} Response "worker 未被分配或与认证身份不符"
// @Failure 404 {object} Response "不存在"
// @Failure 409 {object} Response "任务已结束"
// @Security ApiKeyAuth
// @Router /api/v1/tasks/{id}/report [post]
func (h *TaskHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.TaskReportRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	outcome, ok := parseOutcome(req.Status)
	if !ok {
		WriteError(w, types.NewInvalidRequestError("status must be one of completed, failed, in_progress"), h.logger)
		return
	}
	if req.Progress < 0 || req.Progress > 1 {
		WriteError(w, types.NewInvalidRequestError("progress must be within [0, 1]"), h.logger)
		return
	}

	reporter, apiErr := reporterID(r, req.WorkerID)
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	id := r.PathValue("id")
	err := h.engine.ReportTask(id, reporter, worker.Result{
		TaskID:   id,
		Outcome:  outcome,
		Progress: req.Progress,
		Output:   req.Results,
		Error:    req.Error,
	})
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	task, _ := h.engine.Task(id)
	WriteSuccess(w, task)
}

// HandleRedistribute 立即为任务重新选择 worker
// @Summary 重新分配任务
// @Tags 任务
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} Response{data=dispatch.Task} "任务"
// @Failure 404 {object} Response "不存在"
// @Security ApiKeyAuth
// @Router /api/v1/tasks/{id}/redistribute [post]
func (h *TaskHandler) HandleRedistribute(w http.ResponseWriter, r *http.Request) {
	task, err := h.engine.RedistributeTask(r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteSuccess(w, task)
}

// reporterID 认证身份优先：JWT 中带 worker_id 时以它为准，请求体不得冒充他人
func reporterID(r *http.Request, bodyID string) (string, *types.Error) {
	if callerID, ok := types.WorkerID(r.Context()); ok {
		if bodyID != "" && bodyID != callerID {
			return "", types.NewError(types.ErrForbidden, "worker_id does not match the authenticated worker")
		}
		return callerID, nil
	}
	if bodyID == "" {
		return "", types.NewInvalidRequestError("worker_id is required")
	}
	return bodyID, nil
}

func parseOutcome(status string) (worker.Outcome, bool) {
	switch strings.ToLower(status) {
	case "completed":
		return worker.OutcomeCompleted, true
	case "failed":
		return worker.OutcomeFailed, true
	case "in_progress", "accepted", "":
		return worker.OutcomeNone, true
	default:
		return "", false
	}
}
