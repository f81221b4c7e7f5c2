package fixtures

import (
	"time"

	"github.com/BaSui01/agentcoord/dispatch"
)

// SimpleTask returns a SIMPLE task request needing skills.
func SimpleTask(title string, skills ...string) dispatch.Request {
	return dispatch.Request{
		Title:          title,
		Description:    title + " (fixture)",
		RequiredSkills: skills,
		Complexity:     dispatch.ComplexitySimple,
		Priority:       dispatch.DefaultPriority,
	}
}

// TaskWithComplexity returns a request of the given complexity.
func TaskWithComplexity(title string, c dispatch.Complexity, skills ...string) dispatch.Request {
	req := SimpleTask(title, skills...)
	req.Complexity = c
	return req
}

// OverdueTask returns a SIMPLE request whose deadline passed an hour before now.
func OverdueTask(title string, now time.Time, skills ...string) dispatch.Request {
	req := SimpleTask(title, skills...)
	deadline := now.Add(-time.Hour)
	req.Deadline = &deadline
	return req
}
