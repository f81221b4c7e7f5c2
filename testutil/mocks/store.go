// =============================================================================
// 🧠 MockStore - 知识图谱持久化模拟实现
// =============================================================================
// 用于测试的 knowledge.Store 内存实现，支持预置数据和错误注入
//
// 使用方法:
//
//	store := mocks.NewMockStore().WithConcepts(knowledge.Concept{ID: "a"})
//	graph := knowledge.NewGraph(logger, knowledge.WithStore(store))
// =============================================================================
package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/BaSui01/agentcoord/knowledge"
)

// MockStore 是 knowledge.Store 的模拟实现
type MockStore struct {
	mu sync.RWMutex

	concepts  map[string]knowledge.Concept
	relations map[string]knowledge.Relationship

	// 错误注入
	saveErr error
	loadErr error

	// 调用记录
	saveCalls  int
	loadCalls  int
	usageCalls int
	closed     bool
}

// NewMockStore 创建空的 MockStore
func NewMockStore() *MockStore {
	return &MockStore{
		concepts:  make(map[string]knowledge.Concept),
		relations: make(map[string]knowledge.Relationship),
	}
}

// WithConcepts 预置概念
func (m *MockStore) WithConcepts(concepts ...knowledge.Concept) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range concepts {
		m.concepts[c.ID] = c
	}
	return m
}

// WithRelationships 预置关系
func (m *MockStore) WithRelationships(rels ...knowledge.Relationship) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rels {
		m.relations[r.A+"|"+r.B] = r
	}
	return m
}

// WithSaveError 设置保存错误
func (m *MockStore) WithSaveError(err error) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
	return m
}

// WithLoadError 设置加载错误
func (m *MockStore) WithLoadError(err error) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
	return m
}

// SaveConcept implements knowledge.Store.
func (m *MockStore) SaveConcept(ctx context.Context, c knowledge.Concept) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	// 与真实存储一致：覆盖时保留已持久化的使用次数
	if old, ok := m.concepts[c.ID]; ok {
		c.UsageCount = old.UsageCount
	}
	m.concepts[c.ID] = c
	return nil
}

// IncrementUsage implements knowledge.Store. 受 WithSaveError 影响
func (m *MockStore) IncrementUsage(ctx context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usageCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	if c, ok := m.concepts[id]; ok {
		c.UsageCount += delta
		m.concepts[id] = c
	}
	return nil
}

// SaveRelationship implements knowledge.Store.
func (m *MockStore) SaveRelationship(ctx context.Context, r knowledge.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.relations[r.A+"|"+r.B] = r
	return nil
}

// Load implements knowledge.Store. Results are ordered by id.
func (m *MockStore) Load(ctx context.Context) ([]knowledge.Concept, []knowledge.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls++
	if m.loadErr != nil {
		return nil, nil, m.loadErr
	}

	concepts := make([]knowledge.Concept, 0, len(m.concepts))
	for _, c := range m.concepts {
		concepts = append(concepts, c)
	}
	sort.Slice(concepts, func(i, j int) bool { return concepts[i].ID < concepts[j].ID })

	rels := make([]knowledge.Relationship, 0, len(m.relations))
	for _, r := range m.relations {
		rels = append(rels, r)
	}
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].A != rels[j].A {
			return rels[i].A < rels[j].A
		}
		return rels[i].B < rels[j].B
	})
	return concepts, rels, nil
}

// Close implements knowledge.Store.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// =============================================================================
// 🔍 查询方法
// =============================================================================

// Concept 返回已保存的概念
func (m *MockStore) Concept(id string) (knowledge.Concept, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.concepts[id]
	return c, ok
}

// SaveCalls 返回保存调用次数
func (m *MockStore) SaveCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveCalls
}

// UsageCalls 返回 IncrementUsage 调用次数
func (m *MockStore) UsageCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usageCalls
}

// LoadCalls 返回加载调用次数
func (m *MockStore) LoadCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadCalls
}

// Closed 报告 Close 是否已被调用
func (m *MockStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
