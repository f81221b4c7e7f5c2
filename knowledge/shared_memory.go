package knowledge

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultHistorySize is the conversation ring capacity.
const DefaultHistorySize = 1000

// Entry 共享记忆中的一条知识
type Entry struct {
	Key       string         `json:"key"`
	Value     any            `json:"value"`
	WorkerID  string         `json:"worker_id"`
	Keywords  []string       `json:"keywords"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (e Entry) clone() Entry {
	e.Keywords = slices.Clone(e.Keywords)
	e.Metadata = maps.Clone(e.Metadata)
	return e
}

// Turn 会话历史中的一条记录
type Turn struct {
	Speaker  string         `json:"speaker"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	At       time.Time      `json:"at"`
}

// Hit is a SearchKnowledge result: either an entry or a graph concept.
type Hit struct {
	Source    string   `json:"source"`
	Key       string   `json:"key,omitempty"`
	Entry     *Entry   `json:"entry,omitempty"`
	Concept   *Concept `json:"concept,omitempty"`
	Relevance float64  `json:"relevance"`
}

const (
	HitSourceEntry   = "entry"
	HitSourceConcept = "concept"
)

// SharedMemory 共享知识库 + 会话历史
type SharedMemory struct {
	graph *Graph

	mu      sync.RWMutex
	entries map[string][]Entry

	histMu   sync.Mutex
	history  []Turn
	histHead int
	histLen  int

	logger *zap.Logger
	now    func() time.Time
}

// NewSharedMemory 创建共享记忆。historySize <= 0 时使用 DefaultHistorySize
func NewSharedMemory(graph *Graph, historySize int, logger *zap.Logger) *SharedMemory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &SharedMemory{
		graph:   graph,
		entries: make(map[string][]Entry),
		history: make([]Turn, historySize),
		logger:  logger.With(zap.String("component", "shared_memory")),
		now:     time.Now,
	}
}

// ConceptID returns the graph concept id derived from a knowledge key.
func ConceptID(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// StoreKnowledge 追加一条知识，并把 key 作为概念写入图谱
func (m *SharedMemory) StoreKnowledge(ctx context.Context, key string, value any, workerID string, keywords []string, metadata map[string]any) (Entry, error) {
	if key == "" {
		return Entry{}, fmt.Errorf("knowledge key is required")
	}

	entry := Entry{
		Key:       key,
		Value:     value,
		WorkerID:  workerID,
		Keywords:  normalizeKeywords(keywords),
		Metadata:  maps.Clone(metadata),
		CreatedAt: m.now(),
	}

	if _, err := m.graph.AddConcept(ctx, Concept{
		ID:          ConceptID(key),
		Name:        key,
		Description: fmt.Sprint(value),
		Keywords:    entry.Keywords,
		CreatedBy:   workerID,
		CreatedAt:   entry.CreatedAt,
		Metadata:    entry.Metadata,
	}); err != nil {
		return Entry{}, err
	}

	m.mu.Lock()
	m.entries[key] = append(m.entries[key], entry)
	m.mu.Unlock()

	m.logger.Debug("knowledge stored", zap.String("key", key), zap.String("worker_id", workerID))
	return entry.clone(), nil
}

// GetKnowledge 返回 key 下的全部条目（按写入顺序）
func (m *SharedMemory) GetKnowledge(key string) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := m.entries[key]
	out := make([]Entry, len(items))
	for i, e := range items {
		out[i] = e.clone()
	}
	return out
}

// SearchKnowledge 返回 key 与至少一个关键词都包含 query 的条目，随后是图谱检索结果
func (m *SharedMemory) SearchKnowledge(ctx context.Context, query string, limit int) ([]Hit, error) {
	q := strings.ToLower(query)

	m.mu.RLock()
	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		if strings.Contains(strings.ToLower(key), q) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var hits []Hit
	for _, key := range keys {
		for _, e := range m.entries[key] {
			if !anyContains(e.Keywords, q) {
				continue
			}
			e := e.clone()
			hits = append(hits, Hit{Source: HitSourceEntry, Key: key, Entry: &e, Relevance: matchRelevance})
		}
	}
	m.mu.RUnlock()

	concepts, err := m.graph.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	for _, r := range concepts {
		c := r.Concept
		hits = append(hits, Hit{Source: HitSourceConcept, Key: c.Name, Concept: &c, Relevance: r.Relevance})
	}
	return hits, nil
}

// AddConversation 追加会话记录，超过容量时淘汰最旧的一条
func (m *SharedMemory) AddConversation(t Turn) {
	if t.At.IsZero() {
		t.At = m.now()
	}
	t.Metadata = maps.Clone(t.Metadata)

	m.histMu.Lock()
	defer m.histMu.Unlock()

	size := len(m.history)
	idx := (m.histHead + m.histLen) % size
	m.history[idx] = t
	if m.histLen < size {
		m.histLen++
	} else {
		m.histHead = (m.histHead + 1) % size
	}
}

// RecentConversations 返回最近 limit 条会话记录（旧在前）。limit <= 0 时取 10
func (m *SharedMemory) RecentConversations(limit int) []Turn {
	if limit <= 0 {
		limit = 10
	}

	m.histMu.Lock()
	defer m.histMu.Unlock()

	n := min(limit, m.histLen)
	out := make([]Turn, 0, n)
	size := len(m.history)
	for i := m.histLen - n; i < m.histLen; i++ {
		t := m.history[(m.histHead+i)%size]
		t.Metadata = maps.Clone(t.Metadata)
		out = append(out, t)
	}
	return out
}

// HistoryLen 返回当前会话记录条数
func (m *SharedMemory) HistoryLen() int {
	m.histMu.Lock()
	defer m.histMu.Unlock()
	return m.histLen
}

// Graph returns the underlying knowledge graph.
func (m *SharedMemory) Graph() *Graph {
	return m.graph
}

func anyContains(keywords []string, q string) bool {
	for _, kw := range keywords {
		if strings.Contains(strings.ToLower(kw), q) {
			return true
		}
	}
	return false
}
