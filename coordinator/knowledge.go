package coordinator

import (
	"context"

	"github.com/BaSui01/agentcoord/knowledge"
)

// StoreConcept inserts or replaces a concept in the shared graph.
func (e *Engine) StoreConcept(ctx context.Context, c knowledge.Concept) (knowledge.Concept, error) {
	return e.graph.AddConcept(ctx, c)
}

// AddRelationship links two existing concepts.
func (e *Engine) AddRelationship(ctx context.Context, a, b, relType string, strength float64) (knowledge.Relationship, error) {
	return e.graph.AddRelationship(ctx, a, b, relType, strength)
}

// Search matches query against concept keywords.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]knowledge.SearchResult, error) {
	return e.graph.Search(ctx, query, limit)
}

// FindRelated returns the concepts reachable from id within maxDepth hops.
func (e *Engine) FindRelated(ctx context.Context, id string, maxDepth int) ([]string, error) {
	return e.graph.FindRelated(ctx, id, maxDepth)
}

// Knowledge returns the shared graph.
func (e *Engine) Knowledge() *knowledge.Graph {
	return e.graph
}

// Memory returns the shared-memory store layered on the graph.
func (e *Engine) Memory() *knowledge.SharedMemory {
	return e.memory
}
