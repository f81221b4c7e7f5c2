// Package dispatch turns task requests into worker assignments.
//
// Selection keeps workers that are available, carry a load of at most
// LoadCeiling and share at least one required skill, ranks them by
// performance score (descending) then load (ascending), and takes as many as
// the task's complexity calls for. A task nobody can take is failed at once
// and never enters the in-flight set.
//
// Reconcile is called by the coordination loop; it retires finished tasks and
// redistributes overdue ones. There is no retry bound: a task that stays
// overdue is redistributed on every scan until it finishes or selection
// comes back empty.
package dispatch
