package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentcoord/dispatch"
	"github.com/BaSui01/agentcoord/registry"
	"github.com/BaSui01/agentcoord/router"
	"github.com/BaSui01/agentcoord/worker"
)

const (
	// OverloadThreshold 超过该负载的 worker 会触发再平衡提示
	OverloadThreshold = 0.8
	// RelieverThreshold 负载低于该值的 worker 才可作为提示目标
	RelieverThreshold = 0.5
)

// ErrCyclePanic wraps a panic recovered inside a coordination cycle.
var ErrCyclePanic = errors.New("coordination cycle panicked")

// RebalanceHint suggests moving work from an overloaded worker to a lightly
// loaded one sharing a skill. Nothing is moved.
type RebalanceHint struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	FromLoad float64 `json:"from_load"`
	ToLoad   float64 `json:"to_load"`
}

// CycleReport summarizes one coordination cycle.
type CycleReport struct {
	Drain         router.DrainReport `json:"drain"`
	Completed     []string           `json:"completed,omitempty"`
	Failed        []string           `json:"failed,omitempty"`
	Redistributed []string           `json:"redistributed,omitempty"`
	Unassignable  []string           `json:"unassignable,omitempty"`
	Hints         []RebalanceHint    `json:"hints,omitempty"`
	Probed        int                `json:"probed"`
	ProbeFailures int                `json:"probe_failures"`
	Duration      time.Duration      `json:"duration"`
}

// RunCycle performs one iteration: drain the router, reconcile in-flight
// tasks, emit rebalance hints, refresh worker status. A panic in any step is
// recovered and returned as an error wrapping ErrCyclePanic.
func (e *Engine) RunCycle(ctx context.Context) (report CycleReport, err error) {
	start := time.Now()
	ctx, span := e.inst.startStep(ctx, "cycle")
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("%w: %v", ErrCyclePanic, v)
			e.logger.Error("coordination cycle panicked",
				zap.Any("panic", v),
				zap.Stack("stack"))
		}
		report.Duration = time.Since(start)
		e.inst.endCycle(ctx, span, report.Duration, err)
		if e.metrics != nil {
			e.metrics.RecordCycle(report.Duration, err)
		}
		e.cycles.Add(1)
		e.lastCycle.Store(e.now().UnixNano())
	}()

	report.Drain = e.drain(ctx)

	if err = e.reconcile(ctx, &report); err != nil {
		return report, err
	}

	report.Hints = e.rebalance(ctx)

	report.Probed, report.ProbeFailures, err = e.refresh(ctx)
	if err != nil {
		return report, err
	}

	e.publish(ctx)
	return report, nil
}

func (e *Engine) drain(ctx context.Context) router.DrainReport {
	_, span := e.inst.startStep(ctx, "drain")
	defer span.End()

	rep := e.router.Drain()
	if rep.Dropped > 0 {
		e.logger.Warn("messages dropped during drain",
			zap.Int("dropped", rep.Dropped),
			zap.Int("initiated", rep.Initiated))
	}
	return rep
}

// reconcile retires finished tasks with registry accounting and
// redistributes overdue ones.
func (e *Engine) reconcile(ctx context.Context, report *CycleReport) error {
	ctx, span := e.inst.startStep(ctx, "reconcile")
	defer span.End()

	rep, err := e.dispatcher.Reconcile(ctx, e.now())
	if err != nil {
		return fmt.Errorf("reconcile tasks: %w", err)
	}

	for _, t := range rep.Completed {
		dispatch.ApplyCompletion(e.registry, t)
		report.Completed = append(report.Completed, t.ID)
		e.logger.Info("task completed",
			zap.String("task_id", t.ID),
			zap.Strings("workers", t.AssignedWorkers))
	}
	for _, t := range rep.Failed {
		dispatch.ApplyFailure(e.registry, t)
		report.Failed = append(report.Failed, t.ID)
		e.logger.Warn("task failed",
			zap.String("task_id", t.ID),
			zap.Strings("workers", t.AssignedWorkers))
	}
	for _, t := range rep.Redistributed {
		report.Redistributed = append(report.Redistributed, t.ID)
	}
	for _, t := range rep.Unassignable {
		report.Unassignable = append(report.Unassignable, t.ID)
	}
	return nil
}

// rebalance pairs each overloaded worker with the first lightly loaded
// worker (by id) that shares one of its skills.
func (e *Engine) rebalance(ctx context.Context) []RebalanceHint {
	ctx, span := e.inst.startStep(ctx, "rebalance")
	defer span.End()

	snapshot := e.registry.Snapshot()
	var hints []RebalanceHint
	for i := range snapshot {
		busy := &snapshot[i]
		if busy.CurrentLoad <= OverloadThreshold {
			continue
		}
		for j := range snapshot {
			cand := &snapshot[j]
			if cand.WorkerID == busy.WorkerID || cand.CurrentLoad >= RelieverThreshold {
				continue
			}
			if !cand.SharesSkill(busy.Skills) {
				continue
			}
			hint := RebalanceHint{
				From:     busy.WorkerID,
				To:       cand.WorkerID,
				FromLoad: busy.CurrentLoad,
				ToLoad:   cand.CurrentLoad,
			}
			hints = append(hints, hint)
			e.logger.Info("load rebalance suggested",
				zap.String("from", hint.From),
				zap.String("to", hint.To),
				zap.Float64("from_load", hint.FromLoad),
				zap.Float64("to_load", hint.ToLoad))
			break
		}
	}

	if len(hints) > 0 {
		e.inst.rebalanceHints.Add(ctx, int64(len(hints)))
		if e.metrics != nil {
			e.metrics.RecordRebalanceHints(len(hints))
		}
	}
	return hints
}

type probeTarget struct {
	id     string
	prober worker.StatusProber
}

type probeResult struct {
	id     string
	status worker.Status
	err    error
}

// refresh probes every worker exposing a status probe, concurrently, and
// applies the results in one pass. A probe that errors marks the worker
// unavailable and leaves its load untouched.
func (e *Engine) refresh(ctx context.Context) (probed, failed int, err error) {
	ctx, span := e.inst.startStep(ctx, "refresh")
	defer span.End()

	e.workersMu.RLock()
	targets := make([]probeTarget, 0, len(e.workers))
	for id, w := range e.workers {
		if p, ok := w.(worker.StatusProber); ok {
			targets = append(targets, probeTarget{id: id, prober: p})
		}
	}
	e.workersMu.RUnlock()

	if len(targets) == 0 {
		return 0, 0, nil
	}

	results := make([]probeResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.ProbeConcurrency)
	for i, t := range targets {
		g.Go(func() error {
			results[i] = e.probe(gctx, t)
			return nil
		})
	}
	_ = g.Wait()

	// 停机中途取消时不把所有 worker 标记为不可用
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	for _, r := range results {
		if r.err != nil {
			failed++
			e.registry.Update(r.id, func(c *registry.Capability) { c.Available = false })
			e.logger.Warn("worker status probe failed",
				zap.String("worker_id", r.id),
				zap.Error(r.err))
			continue
		}
		status := r.status
		e.registry.Update(r.id, func(c *registry.Capability) {
			c.Available = status.State != worker.StateError
			c.CurrentLoad = registry.LoadFromPending(status.PendingItems)
		})
	}
	return len(targets), failed, nil
}

func (e *Engine) probe(ctx context.Context, t probeTarget) (r probeResult) {
	r.id = t.id
	defer func() {
		if v := recover(); v != nil {
			r.err = fmt.Errorf("status probe panicked: %v", v)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.config.ProbeTimeout)
	defer cancel()
	r.status, r.err = t.prober.Status(ctx)
	return r
}

// publish pushes gauges and, when configured, the status snapshot.
func (e *Engine) publish(ctx context.Context) {
	st := e.Status()
	if e.metrics != nil {
		e.metrics.SetCoordinatorGauges(st.WorkerCount, st.AvailableWorkers, st.InFlightCount, st.QueueDepth)
	}
	if e.publisher == nil {
		return
	}

	err := e.publisher.PublishStatus(ctx, st)
	if e.metrics != nil {
		e.metrics.RecordStatusPublish(err)
	}
	if err != nil {
		e.logger.Warn("status publish failed", zap.Error(err))
	}
}
