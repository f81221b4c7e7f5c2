package coordinator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/agentcoord/dispatch"
	"github.com/BaSui01/agentcoord/message"
	"github.com/BaSui01/agentcoord/worker"
)

// SubmitTask creates and assigns a task. An unassignable task comes back
// with status failed and a nil error.
func (e *Engine) SubmitTask(ctx context.Context, req dispatch.Request) (dispatch.Task, error) {
	if req.Priority == 0 {
		req.Priority = dispatch.DefaultPriority
	}
	ctx, span := e.inst.startStep(ctx, "submit_task")
	defer span.End()

	t, err := e.dispatcher.CreateTask(ctx, req)
	if err != nil {
		span.RecordError(err)
		return dispatch.Task{}, err
	}
	e.inst.taskSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(t.Status))))
	span.SetAttributes(
		attribute.String("task.id", t.ID),
		attribute.String("task.status", string(t.Status)),
		attribute.Int("task.workers", len(t.AssignedWorkers)),
	)
	return t, nil
}

// ReportTask applies a worker report. An empty workerID reports on behalf of
// the system.
func (e *Engine) ReportTask(taskID, workerID string, res worker.Result) error {
	return e.dispatcher.Report(taskID, workerID, res)
}

// RedistributeTask re-runs worker selection for an in-flight task now.
func (e *Engine) RedistributeTask(taskID string) (dispatch.Task, error) {
	return e.dispatcher.Redistribute(taskID)
}

// Task returns an in-flight or recently retired task.
func (e *Engine) Task(id string) (dispatch.Task, bool) {
	return e.dispatcher.Get(id)
}

// Tasks returns the in-flight tasks ordered by creation time.
func (e *Engine) Tasks() []dispatch.Task {
	return e.dispatcher.InFlight()
}

// Send enqueues a message for delivery on the next drain. A recipient that
// is unknown at drain time causes the message to be dropped.
func (e *Engine) Send(sender, recipient string, payload message.Payload, opts ...message.Option) (message.Message, error) {
	msg := message.New(sender, recipient, payload, opts...)
	if err := e.router.Send(msg); err != nil {
		return message.Message{}, err
	}
	return msg, nil
}

// KnownRecipient reports whether recipient would currently receive messages.
func (e *Engine) KnownRecipient(recipient string) bool {
	return e.router.Registered(recipient)
}
