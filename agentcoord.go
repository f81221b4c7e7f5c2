// Package agentcoord provides a top-level convenience entry point for running
// a coordination engine in-process with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/agentcoord"
//
//	engine, err := agentcoord.New(agentcoord.WithLogger(logger))
//	engine.RegisterWorker(agentcoord.Local("w1", "Indexer", []string{"search"}, handle))
//	engine.Start(ctx)
//
// This is a thin wrapper around [coordinator.New]; both produce identical
// engines. Use this package when you prefer the shorter import path.
package agentcoord

import (
	"github.com/BaSui01/agentcoord/coordinator"
	"github.com/BaSui01/agentcoord/worker"
	"go.uber.org/zap"
)

// Option configures the engine created by [New].
type Option = coordinator.Option

// Engine is the coordination engine returned by [New].
type Engine = coordinator.Engine

// New creates an engine. Call Start to run the coordination loop.
func New(opts ...Option) (*Engine, error) {
	return coordinator.New(opts...)
}

// Local wraps fn as an in-process worker that logs nowhere.
// Use [worker.NewLocal] directly to attach a logger.
func Local(id, name string, skills []string, fn worker.HandlerFunc) *worker.LocalWorker {
	return worker.NewLocal(id, name, skills, fn, zap.NewNop())
}

// Re-export engine options so callers never need to import coordinator/.

// WithLogger sets a custom zap logger.
var WithLogger = coordinator.WithLogger

// WithConfig overrides loop cadence, delivery and probing settings.
var WithConfig = coordinator.WithConfig

// WithMetrics attaches a measurement sink such as *metrics.Collector.
var WithMetrics = coordinator.WithMetrics

// WithStatusPublisher shares each cycle's status snapshot.
var WithStatusPublisher = coordinator.WithStatusPublisher

// WithKnowledgeStore persists the knowledge graph.
var WithKnowledgeStore = coordinator.WithKnowledgeStore

// WithKnowledgeHistory bounds the shared conversation history.
var WithKnowledgeHistory = coordinator.WithKnowledgeHistory
