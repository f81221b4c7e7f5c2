package coordinator

import (
	"slices"
	"time"

	"github.com/BaSui01/agentcoord/dispatch"
	"github.com/BaSui01/agentcoord/knowledge"
	"github.com/BaSui01/agentcoord/router"
)

// WorkerStatus is the per-worker view in a status snapshot.
type WorkerStatus struct {
	Name             string   `json:"name,omitempty"`
	Skills           []string `json:"skills"`
	PerformanceScore float64  `json:"performance_score"`
	Availability     bool     `json:"availability"`
	CurrentLoad      float64  `json:"current_load"`
}

// TaskStatus is the per-task view in a status snapshot.
type TaskStatus struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Status          dispatch.Status `json:"status"`
	AssignedWorkers []string        `json:"assigned_workers"`
	Progress        float64         `json:"progress"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	Running          bool                    `json:"running"`
	WorkerCount      int                     `json:"worker_count"`
	AvailableWorkers int                     `json:"available_workers"`
	InFlightCount    int                     `json:"in_flight_count"`
	QueueDepth       int                     `json:"queue_depth"`
	Workers          map[string]WorkerStatus `json:"workers"`
	Tasks            []TaskStatus            `json:"tasks"`
	Knowledge        knowledge.GraphStats    `json:"knowledge"`
	Delivery         router.Stats            `json:"delivery"`
	Cycles           uint64                  `json:"cycles"`
	LastCycleAt      *time.Time              `json:"last_cycle_at,omitempty"`
	GeneratedAt      time.Time               `json:"generated_at"`
}

// Status builds a snapshot. Each store is read under its own lock, so the
// counts are individually consistent but not taken at one instant.
func (e *Engine) Status() Status {
	caps := e.registry.Snapshot()
	tasks := e.dispatcher.InFlight()
	delivery := e.router.Stats()

	st := Status{
		Running:       e.Running(),
		WorkerCount:   len(caps),
		InFlightCount: len(tasks),
		QueueDepth:    delivery.Queued,
		Workers:       make(map[string]WorkerStatus, len(caps)),
		Tasks:         make([]TaskStatus, 0, len(tasks)),
		Knowledge:     e.graph.Stats(),
		Delivery:      delivery,
		Cycles:        e.cycles.Load(),
		GeneratedAt:   e.now(),
	}
	for _, c := range caps {
		if c.Available {
			st.AvailableWorkers++
		}
		st.Workers[c.WorkerID] = WorkerStatus{
			Name:             c.Name,
			Skills:           slices.Clone(c.Skills),
			PerformanceScore: c.PerformanceScore,
			Availability:     c.Available,
			CurrentLoad:      c.CurrentLoad,
		}
	}
	for _, t := range tasks {
		st.Tasks = append(st.Tasks, TaskStatus{
			ID:              t.ID,
			Title:           t.Title,
			Status:          t.Status,
			AssignedWorkers: t.AssignedWorkers,
			Progress:        t.Progress,
		})
	}
	if ns := e.lastCycle.Load(); ns != 0 {
		at := time.Unix(0, ns)
		st.LastCycleAt = &at
	}
	return st
}
