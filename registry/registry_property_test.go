package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// Score bounds hold after any sequence of completions, failures and probe refreshes.
func TestProperty_ScoreBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := New(nil)
		ids := []string{"w1", "w2", "w3"}
		for _, id := range ids {
			r.Register(id, "", []string{"go"})
		}

		steps := rapid.IntRange(1, 200).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			id := rapid.SampledFrom(ids).Draw(rt, "worker")
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				r.Update(id, (*Capability).RewardCompletion)
			case 1:
				r.Update(id, (*Capability).PenalizeFailure)
			default:
				pending := rapid.IntRange(0, 50).Draw(rt, "pending")
				r.Update(id, func(c *Capability) { c.CurrentLoad = LoadFromPending(pending) })
			}
		}

		for _, c := range r.Snapshot() {
			assert.GreaterOrEqual(rt, c.PerformanceScore, MinPerformance)
			assert.LessOrEqual(rt, c.PerformanceScore, MaxPerformance)
			assert.GreaterOrEqual(rt, c.CurrentLoad, 0.0)
		}
	})
}

// Collaboration history only grows.
func TestProperty_CollaborationMonotonic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := New(nil)
		r.Register("a", "", nil)
		r.Register("b", "", nil)

		prev := 0
		n := rapid.IntRange(1, 50).Draw(rt, "n")
		for i := 0; i < n; i++ {
			r.RecordCollaboration("a", "b", rapid.Bool().Draw(rt, "success"))
			cur := r.CollaborationScore("a", "b")
			assert.GreaterOrEqual(rt, cur, prev)
			prev = cur
		}
	})
}
