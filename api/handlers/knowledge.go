package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcoord/api"
	"github.com/BaSui01/agentcoord/coordinator"
	"github.com/BaSui01/agentcoord/knowledge"
	"github.com/BaSui01/agentcoord/types"
)

const (
	defaultRelatedDepth = 2
	maxRelatedDepth     = 10
)

// KnowledgeHandler 知识图谱与共享记忆
type KnowledgeHandler struct {
	engine *coordinator.Engine
	logger *zap.Logger
}

// NewKnowledgeHandler 创建知识处理器
func NewKnowledgeHandler(engine *coordinator.Engine, logger *zap.Logger) *KnowledgeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeHandler{engine: engine, logger: logger}
}

// HandleStoreConcept 写入或覆盖概念
// @Summary 写入概念
// @Tags 知识
// @Accept json
// @Produce json
// @Param request body api.ConceptRequest true "概念"
// @Success 201 {object} Response{data=knowledge.Concept} "已写入"
// @Security ApiKeyAuth
// @Router /api/v1/knowledge/concepts [post]
func (h *KnowledgeHandler) HandleStoreConcept(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.ConceptRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	c, err := h.engine.StoreConcept(r.Context(), knowledge.Concept{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Keywords:    req.Keywords,
		CreatedBy:   req.CreatedBy,
		Metadata:    req.Metadata,
	})
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteStatus(w, http.StatusCreated, c)
}

// HandleGetConcept 查询概念（计入使用次数）
// @Summary 查询概念
// @Tags 知识
// @Produce json
// @Param id path string true "概念 ID"
// @Success 200 {object} Response{data=knowledge.Concept} "概念"
// @Failure 404 {object} Response "不存在"
// @Security ApiKeyAuth
// @Router /api/v1/knowledge/concepts/{id} [get]
func (h *KnowledgeHandler) HandleGetConcept(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.Knowledge().GetConcept(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteSuccess(w, c)
}

// HandleRelated 返回 depth 步内可达的概念
// @Summary 关联概念
// @Tags 知识
// @Produce json
// @Param id path string true "概念 ID"
// @Param depth query int false "最大深度，默认 2"
// @Success 200 {object} Response{data=api.RelatedResponse} "关联概念"
// @Security ApiKeyAuth
// @Router /api/v1/knowledge/concepts/{id}/related [get]
func (h *KnowledgeHandler) HandleRelated(w http.ResponseWriter, r *http.Request) {
	depth, ok := h.intQuery(w, r, "depth", defaultRelatedDepth)
	if !ok {
		return
	}
	if depth < 0 || depth > maxRelatedDepth {
		WriteError(w, types.NewInvalidRequestError("depth must be within [0, 10]"), h.logger)
		return
	}
	id := r.PathValue("id")
	related, err := h.engine.FindRelated(r.Context(), id, depth)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.RelatedResponse{ID: id, Depth: depth, Related: related})
}

// HandleRelationships 列出与概念相连的边
// @Summary 概念的关系
// @Tags 知识
// @Produce json
// @Param id path string true "概念 ID"
// @Success 200 {object} Response{data=[]knowledge.Relationship} "关系"
// @Security ApiKeyAuth
// @Router /api/v1/knowledge/concepts/{id}/relationships [get]
func (h *KnowledgeHandler) HandleRelationships(w http.ResponseWriter, r *http.Request) {
	rels, err := h.engine.Knowledge().Relationships(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteSuccess(w, rels)
}

// HandleAddRelationship 连接两个已存在的概念
// @Summary 添加关系
// @Tags 知识
// @Accept json
// @Produce json
// @Param request body api.RelationshipRequest true "关系"
// @Success 201 {object} Response{data=knowledge.Relationship} "已添加"
// @Failure 400 {object} Response "自环或强度越界"
// @Failure 404 {object} Response "概念不存在"
// @Security ApiKeyAuth
// @Router /api/v1/knowledge/relationships [post]
func (h *KnowledgeHandler) HandleAddRelationship(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.RelationshipRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	rel, err := h.engine.AddRelationship(r.Context(), req.ConceptA, req.ConceptB, req.Type, req.Strength)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteStatus(w, http.StatusCreated, rel)
}

// HandleSearch 关键词检索概念
// @Summary 检索概念
// @Tags 知识
// @Produce json
// @Param q query string true "查询"
// @Param limit query int false "上限，默认 10"
// @Success 200 {object} Response{data=[]knowledge.SearchResult} "结果"
// @Security ApiKeyAuth
// @Router /api/v1/knowledge/search [get]
func (h *KnowledgeHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		WriteError(w, types.NewInvalidRequestError("q is required"), h.logger)
		return
	}
	limit, ok := h.intQuery(w, r, "limit", 0)
	if !ok {
		return
	}
	results, err := h.engine.Search(r.Context(), q, limit)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	if results == nil {
		results = []knowledge.SearchResult{}
	}
	WriteSuccess(w, results)
}

// HandleStoreEntry 写入共享记忆条目，同时登记为图谱概念
// @Summary 写入共享记忆
// @Tags 知识
// @Accept json
// @Produce json
// @Param request body api.EntryRequest true "条目"
// @Success 201 {object} Response{data=knowledge.Entry} "已写入"
// @Security ApiKeyAuth
// @Router /api/v1/knowledge/entries [post]
func (h *KnowledgeHandler) HandleStoreEntry(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.EntryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		WriteError(w, types.NewInvalidRequestError("key is required"), h.logger)
		return
	}
	e, err := h.engine.Memory().StoreKnowledge(r.Context(), req.Key, req.Value, req.WorkerID, req.Keywords, req.Metadata)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	WriteStatus(w, http.StatusCreated, e)
}

// HandleGetEntries 按 key 取全部条目
// @Summary 查询共享记忆
// @Tags 知识
// @Produce json
// @Param key path string true "key"
// @Success 200 {object} Response{data=[]knowledge.Entry} "条目"
// @Failure 404 {object} Response "不存在"
// @Security ApiKeyAuth
// @Router /api/v1/knowledge/entries/{key} [get]
func (h *KnowledgeHandler) HandleGetEntries(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	entries := h.engine.Memory().GetKnowledge(key)
	if len(entries) == 0 {
		WriteError(w, types.NewNotFoundError(types.ErrConceptNotFound, key), h.logger)
		return
	}
	WriteSuccess(w, entries)
}

// HandleSearchEntries 检索共享记忆与图谱
// @Summary 检索共享记忆
// @Tags 知识
// @Produce json
// @Param q query string true "查询"
// @Param limit query int false "图谱结果上限"
// @Success 200 {object} Response{data=[]knowledge.Hit} "结果"
// @Security ApiKeyAuth
// @Router /api/v1/knowledge/entries [get]
func (h *KnowledgeHandler) HandleSearchEntries(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		WriteError(w, types.NewInvalidRequestError("q is required"), h.logger)
		return
	}
	limit, ok := h.intQuery(w, r, "limit", 0)
	if !ok {
		return
	}
	hits, err := h.engine.Memory().SearchKnowledge(r.Context(), q, limit)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}
	if hits == nil {
		hits = []knowledge.Hit{}
	}
	WriteSuccess(w, hits)
}

// HandleAddConversation 追加会话记录
// @Summary 追加会话记录
// @Tags 知识
// @Accept json
// @Param request body api.TurnRequest true "记录"
// @Success 204 "已追加"
// @Security ApiKeyAuth
// @Router /api/v1/knowledge/conversations [post]
func (h *KnowledgeHandler) HandleAddConversation(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.TurnRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Speaker == "" {
		WriteError(w, types.NewInvalidRequestError("speaker is required"), h.logger)
		return
	}
	h.engine.Memory().AddConversation(knowledge.Turn{
		Speaker:  req.Speaker,
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	w.WriteHeader(http.StatusNoContent)
}

// HandleRecentConversations 最近的会话记录，旧的在前
// @Summary 最近会话
// @Tags 知识
// @Produce json
// @Param limit query int false "条数，默认 50"
// @Success 200 {object} Response{data=[]knowledge.Turn} "记录"
// @Security ApiKeyAuth
// @Router /api/v1/knowledge/conversations [get]
func (h *KnowledgeHandler) HandleRecentConversations(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.intQuery(w, r, "limit", 50)
	if !ok {
		return
	}
	WriteSuccess(w, h.engine.Memory().RecentConversations(limit))
}

func (h *KnowledgeHandler) intQuery(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		WriteError(w, types.NewInvalidRequestError(name+" must be an integer").WithCause(err), h.logger)
		return 0, false
	}
	return v, true
}
