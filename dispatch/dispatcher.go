package dispatch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcoord/message"
	"github.com/BaSui01/agentcoord/registry"
	"github.com/BaSui01/agentcoord/worker"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskTerminal = errors.New("task already finished")
	ErrNotAssigned  = errors.New("worker is not assigned to task")
)

// CoordinatorID is the sender id on messages produced by the dispatcher.
const CoordinatorID = "coordinator"

// Sender enqueues messages; *router.Router satisfies it.
type Sender interface {
	Send(msg message.Message) error
}

// Task events reported to an Observer.
const (
	EventCreated              = "created"
	EventUnassignable         = "unassignable"
	EventCompleted            = "completed"
	EventFailed               = "failed"
	EventRedistributed        = "redistributed"
	EventRedistributionFailed = "redistribution_failed"
)

// Observer records task lifecycle events.
type Observer interface {
	ObserveTaskEvent(event string)
}

// Config configures the dispatcher.
type Config struct {
	// HistorySize bounds how many retired tasks stay queryable.
	HistorySize int `json:"history_size" yaml:"history_size"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{HistorySize: 1000}
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithObserver sets the task event observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher owns the in-flight task set.
type Dispatcher struct {
	registry *registry.Registry
	sender   Sender
	config   Config
	observer Observer
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.RWMutex
	inFlight map[string]*Task

	// history keeps the most recently retired tasks; order is oldest first.
	histMu  sync.RWMutex
	history map[string]Task
	order   []string
}

// New creates a dispatcher selecting from reg and sending through sender.
func New(reg *registry.Registry, sender Sender, config Config, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultConfig().HistorySize
	}
	d := &Dispatcher{
		registry: reg,
		sender:   sender,
		config:   config,
		logger:   logger.With(zap.String("component", "dispatcher")),
		now:      time.Now,
		inFlight: make(map[string]*Task),
		history:  make(map[string]Task),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CreateTask allocates a task and assigns it. A task with no eligible worker
// is returned with StatusFailed and is not tracked as in flight. The only
// errors are an invalid complexity and a cancelled context.
func (d *Dispatcher) CreateTask(ctx context.Context, req Request) (Task, error) {
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}
	complexity, err := ParseComplexity(string(req.Complexity))
	if err != nil {
		return Task{}, err
	}

	now := d.now()
	task := &Task{
		ID:              uuid.NewString(),
		Title:           req.Title,
		Description:     req.Description,
		Complexity:      complexity,
		Strategy:        complexity.Strategy(),
		RequiredSkills:  slices.Clone(req.RequiredSkills),
		Priority:        req.Priority,
		Deadline:        req.Deadline,
		Dependencies:    slices.Clone(req.Dependencies),
		AssignedWorkers: []string{},
		Status:          StatusPending,
		Results:         make(map[string]any),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	selected := SelectWorkers(d.registry.Snapshot(), task.RequiredSkills, complexity.WorkerCount())
	if len(selected) == 0 {
		task.Status = StatusFailed
		d.remember(task.clone())
		d.observe(EventUnassignable)
		d.logger.Warn("task unassignable",
			zap.String("task_id", task.ID),
			zap.Strings("required_skills", task.RequiredSkills),
		)
		return task.clone(), nil
	}

	task.AssignedWorkers = selected
	task.Status = StatusInProgress

	d.mu.Lock()
	d.inFlight[task.ID] = task
	out := task.clone()
	d.mu.Unlock()

	d.notify(&out, selected, false)
	d.observe(EventCreated)
	d.logger.Info("task assigned",
		zap.String("task_id", out.ID),
		zap.String("strategy", string(out.Strategy)),
		zap.Strings("workers", selected),
	)
	return out, nil
}

// Get returns a copy of an in-flight or recently retired task.
func (d *Dispatcher) Get(id string) (Task, bool) {
	d.mu.RLock()
	t, ok := d.inFlight[id]
	if ok {
		out := t.clone()
		d.mu.RUnlock()
		return out, true
	}
	d.mu.RUnlock()

	retired, ok := d.retired(id)
	if !ok {
		return Task{}, false
	}
	return retired.clone(), true
}

// InFlight returns copies of the in-flight tasks ordered by creation time.
func (d *Dispatcher) InFlight() []Task {
	d.mu.RLock()
	out := make([]Task, 0, len(d.inFlight))
	for _, t := range d.inFlight {
		out = append(out, t.clone())
	}
	d.mu.RUnlock()

	sortTasks(out)
	return out
}

// Len returns the size of the in-flight set.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.inFlight)
}

// Report records a worker's outcome for a task. Completed and failed
// outcomes only mark the task; accounting and removal happen in Reconcile.
// An empty workerID reports on behalf of the system.
func (d *Dispatcher) Report(taskID, workerID string, res worker.Result) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.inFlight[taskID]
	if !ok {
		if _, retired := d.retired(taskID); retired {
			return fmt.Errorf("%s: %w", taskID, ErrTaskTerminal)
		}
		return fmt.Errorf("%s: %w", taskID, ErrTaskNotFound)
	}
	if t.Status.Terminal() {
		return fmt.Errorf("%s: %w", taskID, ErrTaskTerminal)
	}
	if workerID != "" && !slices.Contains(t.AssignedWorkers, workerID) {
		return fmt.Errorf("%s on %s: %w", workerID, taskID, ErrNotAssigned)
	}

	if res.Progress > 0 {
		t.Progress = min(res.Progress, 1)
	}
	if len(res.Output) > 0 || res.Error != "" {
		key := workerID
		if key == "" {
			key = CoordinatorID
		}
		entry := maps.Clone(res.Output)
		if entry == nil {
			entry = make(map[string]any)
		}
		if res.Error != "" {
			entry["error"] = res.Error
		}
		t.Results[key] = entry
	}

	switch res.Outcome {
	case worker.OutcomeCompleted:
		t.Status = StatusCompleted
		t.Progress = 1
	case worker.OutcomeFailed:
		t.Status = StatusFailed
	}
	t.UpdatedAt = d.now()

	d.logger.Debug("task report",
		zap.String("task_id", taskID),
		zap.String("worker_id", workerID),
		zap.String("outcome", string(res.Outcome)),
	)
	return nil
}

// ReconcileReport lists what one Reconcile pass did. Completed and Failed
// tasks have left the in-flight set and still need registry accounting.
type ReconcileReport struct {
	Completed     []Task
	Failed        []Task
	Redistributed []Task
	// Unassignable tasks were overdue and found no replacement; they stay in
	// flight with StatusFailed until the next pass retires them.
	Unassignable []Task
}

// Reconcile scans the in-flight set at now: finished tasks are removed and
// returned, overdue in-progress tasks are redistributed.
func (d *Dispatcher) Reconcile(ctx context.Context, now time.Time) (ReconcileReport, error) {
	var report ReconcileReport
	if err := ctx.Err(); err != nil {
		return report, err
	}

	d.mu.Lock()
	tasks := make([]*Task, 0, len(d.inFlight))
	for _, t := range d.inFlight {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return less(tasks[i], tasks[j]) })

	var notices []notice
	for _, t := range tasks {
		switch {
		case t.Status == StatusCompleted:
			delete(d.inFlight, t.ID)
			report.Completed = append(report.Completed, t.clone())
		case t.Status == StatusFailed:
			delete(d.inFlight, t.ID)
			report.Failed = append(report.Failed, t.clone())
		case t.Status == StatusInProgress && t.Overdue(now):
			added, ok := d.redistributeLocked(t, now)
			if ok {
				report.Redistributed = append(report.Redistributed, t.clone())
				if len(added) > 0 {
					notices = append(notices, notice{task: t.clone(), to: added})
				}
			} else {
				report.Unassignable = append(report.Unassignable, t.clone())
			}
		}
	}
	d.mu.Unlock()

	for _, n := range notices {
		d.notify(&n.task, n.to, true)
	}
	for _, t := range report.Completed {
		d.remember(t)
		d.observe(EventCompleted)
	}
	for _, t := range report.Failed {
		d.remember(t)
		d.observe(EventFailed)
	}
	return report, nil
}

// Redistribute re-runs selection for the task now, whatever its deadline.
// It returns the updated task.
func (d *Dispatcher) Redistribute(taskID string) (Task, error) {
	d.mu.Lock()
	t, ok := d.inFlight[taskID]
	if !ok {
		d.mu.Unlock()
		return Task{}, fmt.Errorf("%s: %w", taskID, ErrTaskNotFound)
	}
	if t.Status.Terminal() {
		d.mu.Unlock()
		return Task{}, fmt.Errorf("%s: %w", taskID, ErrTaskTerminal)
	}
	added, _ := d.redistributeLocked(t, d.now())
	out := t.clone()
	d.mu.Unlock()

	if len(added) > 0 {
		d.notify(&out, added, true)
	}
	return out, nil
}

type notice struct {
	task Task
	to   []string
}

// redistributeLocked replaces the assignment of t and returns the workers
// that were not assigned before. ok is false when selection came back empty
// and t was marked failed. Caller holds d.mu.
func (d *Dispatcher) redistributeLocked(t *Task, now time.Time) (added []string, ok bool) {
	selected := SelectWorkers(d.registry.Snapshot(), t.RequiredSkills, t.Complexity.WorkerCount())
	t.Redistributions++
	t.UpdatedAt = now

	if len(selected) == 0 {
		t.Status = StatusFailed
		d.observe(EventRedistributionFailed)
		d.logger.Error("task redistribution failed: no eligible worker",
			zap.String("task_id", t.ID),
			zap.Int("redistributions", t.Redistributions),
		)
		return nil, false
	}

	for _, id := range selected {
		if !slices.Contains(t.AssignedWorkers, id) {
			added = append(added, id)
		}
	}
	t.AssignedWorkers = selected
	t.Status = StatusInProgress
	d.observe(EventRedistributed)
	d.logger.Info("task redistributed",
		zap.String("task_id", t.ID),
		zap.Strings("workers", selected),
		zap.Int("redistributions", t.Redistributions),
	)
	return added, true
}

// notify enqueues one new_task message per worker in to.
func (d *Dispatcher) notify(t *Task, to []string, reassigned bool) {
	for _, id := range to {
		msg := message.New(CoordinatorID, id, message.NewTask{
			TaskID:         t.ID,
			Title:          t.Title,
			Description:    t.Description,
			RequiredSkills: slices.Clone(t.RequiredSkills),
			Priority:       t.Priority,
			Deadline:       t.Deadline,
			Strategy:       string(t.Strategy),
			Reassigned:     reassigned,
		}, message.WithPriority(t.Priority))

		if err := d.sender.Send(msg); err != nil {
			d.logger.Warn("task notification not queued",
				zap.String("task_id", t.ID),
				zap.String("worker_id", id),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) remember(t Task) {
	d.histMu.Lock()
	defer d.histMu.Unlock()

	if _, ok := d.history[t.ID]; !ok {
		if len(d.order) >= d.config.HistorySize {
			delete(d.history, d.order[0])
			d.order = d.order[1:]
		}
		d.order = append(d.order, t.ID)
	}
	d.history[t.ID] = t
}

func (d *Dispatcher) retired(id string) (Task, bool) {
	d.histMu.RLock()
	defer d.histMu.RUnlock()
	t, ok := d.history[id]
	return t, ok
}

func (d *Dispatcher) observe(event string) {
	if d.observer != nil {
		d.observer.ObserveTaskEvent(event)
	}
}

func less(a, b *Task) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func sortTasks(tasks []Task) {
	sort.Slice(tasks, func(i, j int) bool { return less(&tasks[i], &tasks[j]) })
}
