package dispatch

import "github.com/BaSui01/agentcoord/registry"

// ApplyCompletion rewards every assigned worker and records a joint
// completion for every unordered pair among them.
func ApplyCompletion(reg *registry.Registry, t Task) {
	for _, id := range t.AssignedWorkers {
		reg.Update(id, (*registry.Capability).RewardCompletion)
	}
	for i, a := range t.AssignedWorkers {
		for _, b := range t.AssignedWorkers[i+1:] {
			reg.RecordCollaboration(a, b, true)
		}
	}
}

// ApplyFailure penalizes every assigned worker. Collaboration history is
// left untouched.
func ApplyFailure(reg *registry.Registry, t Task) {
	for _, id := range t.AssignedWorkers {
		reg.Update(id, (*registry.Capability).PenalizeFailure)
	}
}
