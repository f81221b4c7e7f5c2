package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcoord/api"
	"github.com/BaSui01/agentcoord/dispatch"
	"github.com/BaSui01/agentcoord/testutil"
	"github.com/BaSui01/agentcoord/testutil/fixtures"
	"github.com/BaSui01/agentcoord/types"
)

func createTask(t *testing.T, h *TaskHandler, req api.CreateTaskRequest) (*httptest.ResponseRecorder, dispatch.Task) {
	t.Helper()
	w := serve("POST /api/v1/tasks", h.HandleCreate, jsonRequest(t, http.MethodPost, "/api/v1/tasks", req))
	var task dispatch.Task
	if w.Code == http.StatusCreated {
		decodeData(t, w, &task)
	}
	return w, task
}

func TestTaskHandler_Create(t *testing.T) {
	e := newEngine(t, fixtures.NewWorker("w1", "go"), fixtures.NewWorker("w2", "go"))
	h := NewTaskHandler(e, zap.NewNop())

	w, task := createTask(t, h, api.CreateTaskRequest{
		Title:          "build",
		RequiredSkills: []string{"go"},
		Complexity:     "complex",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, dispatch.StatusInProgress, task.Status)
	assert.Equal(t, dispatch.StrategyCollaborative, task.Strategy)
	assert.Equal(t, dispatch.DefaultPriority, task.Priority)
	assert.ElementsMatch(t, []string{"w1", "w2"}, task.AssignedWorkers)
}

func TestTaskHandler_CreateUnassignable(t *testing.T) {
	e := newEngine(t, fixtures.NewWorker("w1", "go"))
	h := NewTaskHandler(e, zap.NewNop())

	w, task := createTask(t, h, api.CreateTaskRequest{Title: "ml", RequiredSkills: []string{"cuda"}})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, dispatch.StatusFailed, task.Status)
	assert.Empty(t, task.AssignedWorkers)
	assert.Empty(t, e.Tasks())
}

func TestTaskHandler_CreateValidation(t *testing.T) {
	h := NewTaskHandler(newEngine(t), zap.NewNop())

	tests := []struct {
		name string
		req  api.CreateTaskRequest
	}{
		{"empty title", api.CreateTaskRequest{Title: "  "}},
		{"unknown complexity", api.CreateTaskRequest{Title: "x", Complexity: "galactic"}},
		{"negative priority", api.CreateTaskRequest{Title: "x", Priority: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := createTask(t, h, tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, string(types.ErrInvalidRequest), errorCode(t, w))
		})
	}
}

func TestTaskHandler_GetAndList(t *testing.T) {
	e := newEngine(t, fixtures.NewWorker("w1", "go"))
	h := NewTaskHandler(e, zap.NewNop())
	_, task := createTask(t, h, api.CreateTaskRequest{Title: "build", RequiredSkills: []string{"go"}})

	w := serve("GET /api/v1/tasks/{id}", h.HandleGet, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+task.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got dispatch.Task
	decodeData(t, w, &got)
	assert.Equal(t, task.ID, got.ID)

	w = serve("GET /api/v1/tasks", h.HandleList, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))
	var list []dispatch.Task
	decodeData(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, task.ID, list[0].ID)

	w = serve("GET /api/v1/tasks/{id}", h.HandleGet, httptest.NewRequest(http.MethodGet, "/api/v1/tasks/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(types.ErrTaskNotFound), errorCode(t, w))
}

func TestTaskHandler_ReportLifecycle(t *testing.T) {
	e := newEngine(t, fixtures.NewWorker("w1", "go"), fixtures.NewWorker("w2", "rust"))
	h := NewTaskHandler(e, zap.NewNop())
	_, task := createTask(t, h, api.CreateTaskRequest{Title: "build", RequiredSkills: []string{"go"}, Complexity: "simple"})
	require.Equal(t, []string{"w1"}, task.AssignedWorkers)

	report := func(body api.TaskReportRequest) *httptest.ResponseRecorder {
		return serve("POST /api/v1/tasks/{id}/report", h.HandleReport,
			jsonRequest(t, http.MethodPost, "/api/v1/tasks/"+task.ID+"/report", body))
	}

	w := report(api.TaskReportRequest{WorkerID: "w1", Status: "in_progress", Progress: 0.4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got dispatch.Task
	decodeData(t, w, &got)
	assert.Equal(t, 0.4, got.Progress)
	assert.Equal(t, dispatch.StatusInProgress, got.Status)

	w = report(api.TaskReportRequest{WorkerID: "w2", Status: "completed"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = report(api.TaskReportRequest{WorkerID: "w1", Status: "done"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = report(api.TaskReportRequest{WorkerID: "w1", Status: "completed", Progress: 1.5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = report(api.TaskReportRequest{WorkerID: "w1", Status: "completed", Results: map[string]any{"ok": true}})
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &got)
	assert.Equal(t, dispatch.StatusCompleted, got.Status)
	assert.Equal(t, 1.0, got.Progress)

	// 下一个周期完成统计并移出在途集合
	_, err := e.RunCycle(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Empty(t, e.Tasks())

	w = report(api.TaskReportRequest{WorkerID: "w1", Status: "failed"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(types.ErrTaskTerminal), errorCode(t, w))
}

func TestTaskHandler_ReportUnknownTask(t *testing.T) {
	h := NewTaskHandler(newEngine(t), zap.NewNop())

	w := serve("POST /api/v1/tasks/{id}/report", h.HandleReport,
		jsonRequest(t, http.MethodPost, "/api/v1/tasks/nope/report", api.TaskReportRequest{WorkerID: "w1", Status: "completed"}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// JWT 中的 worker_id 决定汇报者身份
func TestTaskHandler_ReportUsesAuthenticatedWorker(t *testing.T) {
	e := newEngine(t, fixtures.NewWorker("w1", "go"), fixtures.NewWorker("w9", "rust"))
	h := NewTaskHandler(e, zap.NewNop())
	_, task := createTask(t, h, api.CreateTaskRequest{Title: "build", RequiredSkills: []string{"go"}, Complexity: "simple"})
	require.Equal(t, []string{"w1"}, task.AssignedWorkers)

	reportAs := func(caller string, body api.TaskReportRequest) *httptest.ResponseRecorder {
		r := jsonRequest(t, http.MethodPost, "/api/v1/tasks/"+task.ID+"/report", body)
		if caller != "" {
			r = r.WithContext(types.WithWorkerID(r.Context(), caller))
		}
		return serve("POST /api/v1/tasks/{id}/report", h.HandleReport, r)
	}

	tests := []struct {
		name   string
		caller string
		body   api.TaskReportRequest
		want   int
		code   types.ErrorCode
	}{
		{
			name:   "unassigned caller without body id",
			caller: "w9",
			body:   api.TaskReportRequest{Status: "completed"},
			want:   http.StatusForbidden,
			code:   types.ErrForbidden,
		},
		{
			name:   "caller impersonates assigned worker",
			caller: "w9",
			body:   api.TaskReportRequest{WorkerID: "w1", Status: "completed"},
			want:   http.StatusForbidden,
			code:   types.ErrForbidden,
		},
		{
			name: "anonymous report without worker id",
			body: api.TaskReportRequest{Status: "completed"},
			want: http.StatusBadRequest,
			code: types.ErrInvalidRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := reportAs(tt.caller, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Equal(t, string(tt.code), errorCode(t, w))

			got, ok := e.Task(task.ID)
			require.True(t, ok)
			assert.Equal(t, dispatch.StatusInProgress, got.Status)
		})
	}

	w := reportAs("w1", api.TaskReportRequest{Status: "completed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got dispatch.Task
	decodeData(t, w, &got)
	assert.Equal(t, dispatch.StatusCompleted, got.Status)
}

func TestTaskHandler_Redistribute(t *testing.T) {
	e := newEngine(t, fixtures.NewWorker("w1", "go"))
	h := NewTaskHandler(e, zap.NewNop())
	_, task := createTask(t, h, api.CreateTaskRequest{Title: "build", RequiredSkills: []string{"go"}, Complexity: "simple"})

	_, err := e.RegisterWorker(fixtures.NewWorker("w2", "go"))
	require.NoError(t, err)

	w := serve("POST /api/v1/tasks/{id}/redistribute", h.HandleRedistribute,
		httptest.NewRequest(http.MethodPost, "/api/v1/tasks/"+task.ID+"/redistribute", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got dispatch.Task
	decodeData(t, w, &got)
	assert.Equal(t, dispatch.StatusInProgress, got.Status)

	w = serve("POST /api/v1/tasks/{id}/redistribute", h.HandleRedistribute,
		httptest.NewRequest(http.MethodPost, "/api/v1/tasks/missing/redistribute", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
