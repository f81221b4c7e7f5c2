package dispatch

import (
	"sort"

	"github.com/BaSui01/agentcoord/registry"
)

// LoadCeiling is the highest load a worker may carry and still be selected.
const LoadCeiling = 0.8

// Eligible reports whether c passes the selection filter for required.
func Eligible(c *registry.Capability, required []string) bool {
	return c.Available && c.CurrentLoad <= LoadCeiling && c.SharesSkill(required)
}

// SelectWorkers returns the ids of up to count eligible candidates, best first.
// Ties keep the candidates' input order.
func SelectWorkers(candidates []registry.Capability, required []string, count int) []string {
	eligible := make([]registry.Capability, 0, len(candidates))
	for i := range candidates {
		if Eligible(&candidates[i], required) {
			eligible = append(eligible, candidates[i])
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].PerformanceScore != eligible[j].PerformanceScore {
			return eligible[i].PerformanceScore > eligible[j].PerformanceScore
		}
		return eligible[i].CurrentLoad < eligible[j].CurrentLoad
	})

	if count > len(eligible) {
		count = len(eligible)
	}
	ids := make([]string, 0, count)
	for _, c := range eligible[:count] {
		ids = append(ids, c.WorkerID)
	}
	return ids
}
