package api

import (
	"time"

	"github.com/BaSui01/agentcoord/dispatch"
	"github.com/BaSui01/agentcoord/worker"
)

// =============================================================================
// Worker 类型
// =============================================================================

// RegisterWorkerRequest 注册远程（HTTP webhook）worker。
// @Description 远程 worker 注册请求
type RegisterWorkerRequest struct {
	// worker 唯一 ID
	ID string `json:"id" example:"reviewer-1" binding:"required"`
	// 显示名称
	Name string `json:"name,omitempty" example:"Code Reviewer"`
	// 技能集合
	Skills []string `json:"skills" binding:"required"`
	// 接收消息的 URL（POST JSON）
	Endpoint string `json:"endpoint" example:"https://worker.internal/messages" binding:"required"`
	// 状态探针 URL（GET），为空时不探测
	StatusEndpoint string `json:"status_endpoint,omitempty"`
	// 单次请求超时，如 "10s"
	Timeout string `json:"timeout,omitempty" example:"10s"`
	// 为 true 时允许覆盖已存在的同 ID worker
	Replace bool `json:"replace,omitempty"`
}

// ToHTTPConfig 转换为 worker.HTTPConfig
func (r RegisterWorkerRequest) ToHTTPConfig() (worker.HTTPConfig, error) {
	cfg := worker.HTTPConfig{
		ID:             r.ID,
		Name:           r.Name,
		Skills:         r.Skills,
		Endpoint:       r.Endpoint,
		StatusEndpoint: r.StatusEndpoint,
	}
	if r.Timeout != "" {
		d, err := time.ParseDuration(r.Timeout)
		if err != nil {
			return worker.HTTPConfig{}, err
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

// WorkerInfo worker 视图：能力记录加上远程地址
// @Description worker 信息
type WorkerInfo struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name,omitempty"`
	Skills               []string       `json:"skills"`
	PerformanceScore     float64        `json:"performance_score"`
	Availability         bool           `json:"availability"`
	CurrentLoad          float64        `json:"current_load"`
	CollaborationHistory map[string]int `json:"collaboration_history,omitempty"`
	Remote               bool           `json:"remote"`
	Endpoint             string         `json:"endpoint,omitempty"`
	StatusEndpoint       string         `json:"status_endpoint,omitempty"`
	RegisteredAt         time.Time      `json:"registered_at"`
}

// =============================================================================
// 任务类型
// =============================================================================

// CreateTaskRequest 创建任务请求
// @Description 任务创建请求
type CreateTaskRequest struct {
	Title          string     `json:"title" example:"Fix login bug" binding:"required"`
	Description    string     `json:"description,omitempty"`
	RequiredSkills []string   `json:"required_skills"`
	Complexity     string     `json:"complexity,omitempty" example:"medium"`
	Priority       int        `json:"priority,omitempty" example:"5"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	Dependencies   []string   `json:"dependencies,omitempty"`
}

// ToRequest 转换为 dispatch.Request
func (r CreateTaskRequest) ToRequest() dispatch.Request {
	return dispatch.Request{
		Title:          r.Title,
		Description:    r.Description,
		RequiredSkills: r.RequiredSkills,
		Complexity:     dispatch.Complexity(r.Complexity),
		Priority:       r.Priority,
		Deadline:       r.Deadline,
		Dependencies:   r.Dependencies,
	}
}

// TaskReportRequest worker 对任务的汇报
// @Description 任务进度/结果汇报
type TaskReportRequest struct {
	// 汇报者；携带 JWT worker_id 时可省略，给出时必须一致
	WorkerID string `json:"worker_id,omitempty"`
	// completed | failed | in_progress
	Status   string         `json:"status" example:"completed"`
	Progress float64        `json:"progress,omitempty"`
	Results  map[string]any `json:"results,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// =============================================================================
// 消息类型
// =============================================================================

// SendMessageRequest 直接消息请求
// @Description 发送给某个 worker 的直接消息
type SendMessageRequest struct {
	Sender           string         `json:"sender" example:"operator"`
	Recipient        string         `json:"recipient" example:"reviewer-1" binding:"required"`
	Subject          string         `json:"subject" example:"ping"`
	Body             map[string]any `json:"body,omitempty"`
	Priority         int            `json:"priority,omitempty"`
	RequiresResponse bool           `json:"requires_response,omitempty"`
	ResponseDeadline *time.Time     `json:"response_deadline,omitempty"`
}

// SendMessageResponse 入队结果
type SendMessageResponse struct {
	MessageID string `json:"message_id"`
	// 发送时接收方是否已注册；未注册的消息会在下次排空时丢弃
	RecipientKnown bool `json:"recipient_known"`
}

// =============================================================================
// 知识类型
// =============================================================================

// ConceptRequest 概念写入请求
type ConceptRequest struct {
	ID          string         `json:"id" binding:"required"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Keywords    []string       `json:"keywords,omitempty"`
	CreatedBy   string         `json:"created_by,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// RelationshipRequest 关系写入请求
type RelationshipRequest struct {
	ConceptA string  `json:"concept_a" binding:"required"`
	ConceptB string  `json:"concept_b" binding:"required"`
	Type     string  `json:"type" example:"depends_on"`
	Strength float64 `json:"strength" example:"0.8"`
}

// RelatedResponse FindRelated 结果
type RelatedResponse struct {
	ID      string   `json:"id"`
	Depth   int      `json:"depth"`
	Related []string `json:"related"`
}

// EntryRequest 共享记忆写入请求
type EntryRequest struct {
	Key      string         `json:"key" binding:"required"`
	Value    any            `json:"value"`
	WorkerID string         `json:"worker_id,omitempty"`
	Keywords []string       `json:"keywords,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TurnRequest 会话记录写入请求
type TurnRequest struct {
	Speaker  string         `json:"speaker" binding:"required"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
