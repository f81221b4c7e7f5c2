package registry

import (
	"slices"
	"time"
)

const (
	InitialPerformance = 1.0
	MinPerformance     = 0.1
	MaxPerformance     = 1.0

	// CompletionReward is added to the performance score on task completion.
	CompletionReward = 0.1
	// FailurePenalty is subtracted on task failure.
	FailurePenalty = 0.05
	// CompletionLoadRelief is subtracted from the load on task completion.
	CompletionLoadRelief = 0.2
	// LoadNormalization converts a pending item count into a load fraction.
	LoadNormalization = 10.0
)

// Capability is one worker's record.
type Capability struct {
	WorkerID         string    `json:"worker_id"`
	Name             string    `json:"name,omitempty"`
	Skills           []string  `json:"skills"`
	PerformanceScore float64   `json:"performance_score"`
	Available        bool      `json:"availability"`
	CurrentLoad      float64   `json:"current_load"`
	RegisteredAt     time.Time `json:"registered_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Collaborations maps a partner worker id to the number of tasks both
	// completed together.
	Collaborations map[string]int `json:"collaboration_history"`
}

// HasSkill reports whether the worker advertises skill.
func (c *Capability) HasSkill(skill string) bool {
	return slices.Contains(c.Skills, skill)
}

// SharesSkill reports whether the skill sets overlap.
func (c *Capability) SharesSkill(skills []string) bool {
	for _, s := range skills {
		if c.HasSkill(s) {
			return true
		}
	}
	return false
}

// RewardCompletion applies completion accounting to the record.
func (c *Capability) RewardCompletion() {
	c.PerformanceScore += CompletionReward
	c.CurrentLoad -= CompletionLoadRelief
}

// PenalizeFailure applies failure accounting to the record.
func (c *Capability) PenalizeFailure() {
	c.PerformanceScore -= FailurePenalty
}

// LoadFromPending converts a probe's pending count into a load in [0, 1].
func LoadFromPending(pending int) float64 {
	return clamp(float64(pending)/LoadNormalization, 0, 1)
}

func (c *Capability) normalize() {
	c.PerformanceScore = clamp(c.PerformanceScore, MinPerformance, MaxPerformance)
	c.CurrentLoad = clamp(c.CurrentLoad, 0, 1)
}

func (c *Capability) clone() Capability {
	out := *c
	out.Skills = slices.Clone(c.Skills)
	out.Collaborations = make(map[string]int, len(c.Collaborations))
	for k, v := range c.Collaborations {
		out.Collaborations[k] = v
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
