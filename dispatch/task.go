package dispatch

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Complexity drives how many workers a task gets and its strategy label.
type Complexity string

const (
	ComplexitySimple     Complexity = "simple"
	ComplexityMedium     Complexity = "medium"
	ComplexityComplex    Complexity = "complex"
	ComplexityMultiAgent Complexity = "multi_agent"
)

// Strategy is the coordination strategy attached to a task.
type Strategy string

const (
	StrategySequential    Strategy = "sequential"
	StrategyParallel      Strategy = "parallel"
	StrategyCollaborative Strategy = "collaborative"
	StrategyHierarchical  Strategy = "hierarchical"
)

var complexityTable = map[Complexity]struct {
	workers  int
	strategy Strategy
}{
	ComplexitySimple:     {1, StrategySequential},
	ComplexityMedium:     {2, StrategyParallel},
	ComplexityComplex:    {3, StrategyCollaborative},
	ComplexityMultiAgent: {5, StrategyHierarchical},
}

// ParseComplexity accepts the wire values case-insensitively. The empty
// string maps to ComplexityMedium.
func ParseComplexity(s string) (Complexity, error) {
	if s == "" {
		return ComplexityMedium, nil
	}
	c := Complexity(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := complexityTable[c]; !ok {
		return "", fmt.Errorf("unknown complexity %q", s)
	}
	return c, nil
}

// WorkerCount returns how many workers a task of this complexity gets.
func (c Complexity) WorkerCount() int {
	return complexityTable[c].workers
}

// Strategy returns the strategy label for this complexity.
func (c Complexity) Strategy() Strategy {
	return complexityTable[c].strategy
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DefaultPriority is used by callers that do not set one.
const DefaultPriority = 5

// Request describes a task to create.
type Request struct {
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	RequiredSkills []string   `json:"required_skills"`
	Complexity     Complexity `json:"complexity"`
	Priority       int        `json:"priority"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	Dependencies   []string   `json:"dependencies,omitempty"`
}

// Task is a unit of work tracked by the dispatcher.
type Task struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Complexity      Complexity     `json:"complexity"`
	Strategy        Strategy       `json:"strategy"`
	RequiredSkills  []string       `json:"required_skills"`
	Priority        int            `json:"priority"`
	Deadline        *time.Time     `json:"deadline,omitempty"`
	Dependencies    []string       `json:"dependencies,omitempty"`
	AssignedWorkers []string       `json:"assigned_workers"`
	Status          Status         `json:"status"`
	Progress        float64        `json:"progress"`
	Results         map[string]any `json:"results,omitempty"`
	Redistributions int            `json:"redistributions"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Overdue reports whether the deadline has passed at now.
func (t *Task) Overdue(now time.Time) bool {
	return t.Deadline != nil && now.After(*t.Deadline)
}

func (t *Task) clone() Task {
	out := *t
	out.RequiredSkills = slices.Clone(t.RequiredSkills)
	out.Dependencies = slices.Clone(t.Dependencies)
	out.AssignedWorkers = slices.Clone(t.AssignedWorkers)
	if t.Deadline != nil {
		d := *t.Deadline
		out.Deadline = &d
	}
	out.Results = maps.Clone(t.Results)
	return out
}
