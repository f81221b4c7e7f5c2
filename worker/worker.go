package worker

import (
	"context"

	"github.com/BaSui01/agentcoord/message"
)

// Worker is a unit of execution that advertises skills and accepts messages.
type Worker interface {
	ID() string
	Name() string
	Skills() []string
	ProcessMessage(ctx context.Context, msg message.Message) (Result, error)
}

// StatusProber is implemented by workers that expose a live status probe.
type StatusProber interface {
	Status(ctx context.Context) (Status, error)
}

// State is the health reported by a probe.
type State string

const (
	StateHealthy State = "healthy"
	StateError   State = "error"
)

// Status is the probe result.
type Status struct {
	State        State `json:"status"`
	PendingItems int   `json:"pending_items"`
}

// Outcome is what a worker says about the task a message referred to.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeAccepted  Outcome = "accepted"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// Terminal reports whether the outcome ends the task.
func (o Outcome) Terminal() bool {
	return o == OutcomeCompleted || o == OutcomeFailed
}

// Result is returned from ProcessMessage. TaskID and Outcome are only
// meaningful for new_task messages.
type Result struct {
	TaskID   string         `json:"task_id,omitempty"`
	Outcome  Outcome        `json:"outcome,omitempty"`
	Progress float64        `json:"progress,omitempty"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
}
