package knowledge

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"
)

var (
	ErrConceptNotFound = errors.New("concept not found")
	ErrInvalidConcept  = errors.New("invalid concept")
	ErrInvalidRelation = errors.New("invalid relationship")
)

// Concept 图谱节点
type Concept struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Keywords    []string       `json:"keywords"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	UsageCount  int            `json:"usage_count"`
}

func (c *Concept) clone() Concept {
	out := *c
	out.Keywords = slices.Clone(c.Keywords)
	out.Metadata = maps.Clone(c.Metadata)
	return out
}

// Relationship 无序概念对之间的边，A <= B
type Relationship struct {
	A         string    `json:"concept_a"`
	B         string    `json:"concept_b"`
	Type      string    `json:"type"`
	Strength  float64   `json:"strength"`
	CreatedAt time.Time `json:"created_at"`
}

// Other returns the endpoint opposite to id.
func (r Relationship) Other(id string) string {
	if r.A == id {
		return r.B
	}
	return r.A
}

// SearchResult is one ranked search hit.
type SearchResult struct {
	Concept   Concept `json:"concept"`
	Relevance float64 `json:"relevance"`
}

// Store persists the graph. Implementations must be safe for concurrent use.
type Store interface {
	SaveConcept(ctx context.Context, c Concept) error
	SaveRelationship(ctx context.Context, r Relationship) error
	// IncrementUsage adds delta to a stored concept's usage count.
	IncrementUsage(ctx context.Context, id string, delta int) error
	Load(ctx context.Context) ([]Concept, []Relationship, error)
	Close() error
}

type pair struct{ a, b string }

func newPair(x, y string) pair {
	if x > y {
		x, y = y, x
	}
	return pair{a: x, b: y}
}
