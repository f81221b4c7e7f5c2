package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSearchLimit = 10
	// matchRelevance is the score of every keyword match.
	matchRelevance = 1.0
)

// GraphOption customizes a Graph.
type GraphOption func(*Graph)

// WithStore enables write-through persistence.
func WithStore(s Store) GraphOption {
	return func(g *Graph) { g.store = s }
}

// Graph 内存知识图谱，可选写穿透到 Store
type Graph struct {
	// writeMu 串行化写路径，覆盖 Store 写入与内存更新
	writeMu   sync.Mutex
	mu        sync.RWMutex
	concepts  map[string]*Concept
	relations map[pair]*Relationship
	// adjacency 概念 id -> 邻接概念 id 集合
	adjacency map[string]map[string]struct{}
	// keywordIndex 小写关键词 -> 概念 id 集合
	keywordIndex map[string]map[string]struct{}

	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewGraph 创建知识图谱
func NewGraph(logger *zap.Logger, opts ...GraphOption) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Graph{
		concepts:     make(map[string]*Concept),
		relations:    make(map[pair]*Relationship),
		adjacency:    make(map[string]map[string]struct{}),
		keywordIndex: make(map[string]map[string]struct{}),
		logger:       logger.With(zap.String("component", "knowledge_graph")),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Restore 从 Store 加载全部概念与关系，替换内存中的同名条目
func (g *Graph) Restore(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	concepts, relations, err := g.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load knowledge graph: %w", err)
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range concepts {
		g.putConceptLocked(concepts[i].clone())
	}
	skipped := 0
	for _, r := range relations {
		if g.concepts[r.A] == nil || g.concepts[r.B] == nil {
			skipped++
			continue
		}
		g.putRelationLocked(r)
	}

	g.logger.Info("knowledge graph restored",
		zap.Int("concepts", len(concepts)),
		zap.Int("relationships", len(relations)-skipped),
		zap.Int("skipped_relationships", skipped))
	return nil
}

// AddConcept 插入或覆盖概念，并把关键词（小写）写入索引
func (g *Graph) AddConcept(ctx context.Context, c Concept) (Concept, error) {
	if err := ctx.Err(); err != nil {
		return Concept{}, err
	}
	if c.ID == "" {
		return Concept{}, fmt.Errorf("%w: id is required", ErrInvalidConcept)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = g.now()
	}
	c.Keywords = normalizeKeywords(c.Keywords)
	c = c.clone()

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	// 覆盖时沿用已有的使用次数
	g.mu.RLock()
	if old, ok := g.concepts[c.ID]; ok {
		c.UsageCount = old.UsageCount
	}
	g.mu.RUnlock()

	if g.store != nil {
		if err := g.store.SaveConcept(ctx, c); err != nil {
			return Concept{}, fmt.Errorf("persist concept %s: %w", c.ID, err)
		}
	}

	g.mu.Lock()
	g.putConceptLocked(c)
	g.mu.Unlock()

	g.logger.Debug("concept added",
		zap.String("id", c.ID),
		zap.String("name", c.Name),
		zap.Strings("keywords", c.Keywords))
	return c.clone(), nil
}

// AddRelationship 存储无序概念对之间的边，覆盖该对已有的边
func (g *Graph) AddRelationship(ctx context.Context, a, b, relType string, strength float64) (Relationship, error) {
	if err := ctx.Err(); err != nil {
		return Relationship{}, err
	}
	if a == "" || b == "" || a == b {
		return Relationship{}, fmt.Errorf("%w: two distinct concept ids are required", ErrInvalidRelation)
	}
	if strength < 0 || strength > 1 {
		return Relationship{}, fmt.Errorf("%w: strength %v outside [0, 1]", ErrInvalidRelation, strength)
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	g.mu.RLock()
	_, okA := g.concepts[a]
	_, okB := g.concepts[b]
	g.mu.RUnlock()
	if !okA {
		return Relationship{}, fmt.Errorf("%s: %w", a, ErrConceptNotFound)
	}
	if !okB {
		return Relationship{}, fmt.Errorf("%s: %w", b, ErrConceptNotFound)
	}

	p := newPair(a, b)
	r := Relationship{A: p.a, B: p.b, Type: relType, Strength: strength, CreatedAt: g.now()}

	if g.store != nil {
		if err := g.store.SaveRelationship(ctx, r); err != nil {
			return Relationship{}, fmt.Errorf("persist relationship %s-%s: %w", r.A, r.B, err)
		}
	}

	g.mu.Lock()
	g.putRelationLocked(r)
	g.mu.Unlock()

	g.logger.Debug("relationship added",
		zap.String("a", r.A),
		zap.String("b", r.B),
		zap.String("type", relType),
		zap.Float64("strength", strength))
	return r, nil
}

// GetConcept 按 id 查询概念，并累加使用次数
func (g *Graph) GetConcept(ctx context.Context, id string) (Concept, error) {
	if err := ctx.Err(); err != nil {
		return Concept{}, err
	}

	if g.store == nil {
		g.mu.Lock()
		defer g.mu.Unlock()
		c, ok := g.concepts[id]
		if !ok {
			return Concept{}, fmt.Errorf("%s: %w", id, ErrConceptNotFound)
		}
		c.UsageCount++
		return c.clone(), nil
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	g.mu.RLock()
	_, ok := g.concepts[id]
	g.mu.RUnlock()
	if !ok {
		return Concept{}, fmt.Errorf("%s: %w", id, ErrConceptNotFound)
	}

	// 计数写失败不影响读取，只是本次不计入
	persisted := true
	if err := g.store.IncrementUsage(ctx, id, 1); err != nil {
		persisted = false
		g.logger.Warn("persist concept usage failed", zap.String("id", id), zap.Error(err))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	c := g.concepts[id]
	if persisted {
		c.UsageCount++
	}
	return c.clone(), nil
}

// FindRelated 从 id 出发广度优先遍历，返回 maxDepth 步内可达的概念 id（不含起点，按 id 排序）
func (g *Graph) FindRelated(ctx context.Context, id string, maxDepth int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[string]struct{}{id: {}}
	frontier := []string{id}
	related := make([]string, 0)

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			for nb := range g.adjacency[cur] {
				if _, seen := visited[nb]; seen {
					continue
				}
				visited[nb] = struct{}{}
				related = append(related, nb)
				next = append(next, nb)
			}
		}
		frontier = next
	}

	sort.Strings(related)
	return related, nil
}

// Relationships 返回与 id 相连的全部边
func (g *Graph) Relationships(ctx context.Context, id string) ([]Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Relationship, 0, len(g.adjacency[id]))
	for nb := range g.adjacency[id] {
		out = append(out, *g.relations[newPair(id, nb)])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Other(id) < out[j].Other(id) })
	return out, nil
}

// Search 关键词子串检索。每个匹配的相关度相同，结果按使用次数降序、id 升序，
// 截断到 limit（<= 0 时取默认值 10）
func (g *Graph) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	q := strings.ToLower(query)

	g.mu.RLock()
	seen := make(map[string]struct{})
	var results []SearchResult
	for kw, ids := range g.keywordIndex {
		if !strings.Contains(kw, q) {
			continue
		}
		for id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			results = append(results, SearchResult{Concept: g.concepts[id].clone(), Relevance: matchRelevance})
		}
	}
	g.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		if results[i].Concept.UsageCount != results[j].Concept.UsageCount {
			return results[i].Concept.UsageCount > results[j].Concept.UsageCount
		}
		return results[i].Concept.ID < results[j].Concept.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// GraphStats 图谱规模统计
type GraphStats struct {
	Concepts      int `json:"concepts"`
	Relationships int `json:"relationships"`
	Keywords      int `json:"keywords"`
}

// Stats 返回图谱规模
func (g *Graph) Stats() GraphStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return GraphStats{
		Concepts:      len(g.concepts),
		Relationships: len(g.relations),
		Keywords:      len(g.keywordIndex),
	}
}

// Close 关闭底层 Store
func (g *Graph) Close() error {
	if g.store == nil {
		return nil
	}
	return g.store.Close()
}

func (g *Graph) putConceptLocked(c Concept) {
	if old, ok := g.concepts[c.ID]; ok {
		for _, kw := range old.Keywords {
			kw = strings.ToLower(kw)
			if ids, ok := g.keywordIndex[kw]; ok {
				delete(ids, c.ID)
				if len(ids) == 0 {
					delete(g.keywordIndex, kw)
				}
			}
		}
	}
	copied := c
	g.concepts[c.ID] = &copied
	for _, kw := range c.Keywords {
		kw = strings.ToLower(kw)
		ids, ok := g.keywordIndex[kw]
		if !ok {
			ids = make(map[string]struct{})
			g.keywordIndex[kw] = ids
		}
		ids[c.ID] = struct{}{}
	}
}

func (g *Graph) putRelationLocked(r Relationship) {
	p := newPair(r.A, r.B)
	r.A, r.B = p.a, p.b
	g.relations[p] = &r
	g.link(p.a, p.b)
	g.link(p.b, p.a)
}

func (g *Graph) link(from, to string) {
	set, ok := g.adjacency[from]
	if !ok {
		set = make(map[string]struct{})
		g.adjacency[from] = set
	}
	set[to] = struct{}{}
}

// normalizeKeywords trims keywords and drops empty and case-insensitive duplicates.
func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		key := strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
	}
	return out
}
