// =============================================================================
// 📦 测试数据工厂 - Worker 替身
// =============================================================================
// 提供可编排的 worker 实现，用于协调引擎与 API 测试
// =============================================================================
package fixtures

import (
	"context"
	"sync"

	"github.com/BaSui01/agentcoord/message"
	"github.com/BaSui01/agentcoord/worker"
)

// ReplyFunc decides what a fixture worker answers.
type ReplyFunc func(msg message.Message) (worker.Result, error)

// Worker records every message it receives and answers through Reply.
// It has no status probe.
type Worker struct {
	id     string
	skills []string
	reply  ReplyFunc

	mu       sync.Mutex
	received []message.Message
}

// NewWorker creates a worker that acknowledges everything with an empty result.
func NewWorker(id string, skills ...string) *Worker {
	return &Worker{id: id, skills: skills}
}

// CompletingWorker answers every new_task with a completed outcome.
func CompletingWorker(id string, skills ...string) *Worker {
	return NewWorker(id, skills...).WithReply(func(msg message.Message) (worker.Result, error) {
		nt, ok := msg.Payload.(message.NewTask)
		if !ok {
			return worker.Result{}, nil
		}
		return worker.Result{
			TaskID:  nt.TaskID,
			Outcome: worker.OutcomeCompleted,
			Output:  map[string]any{"by": id},
		}, nil
	})
}

// FailingWorker answers every new_task with a failed outcome.
func FailingWorker(id string, skills ...string) *Worker {
	return NewWorker(id, skills...).WithReply(func(msg message.Message) (worker.Result, error) {
		nt, ok := msg.Payload.(message.NewTask)
		if !ok {
			return worker.Result{}, nil
		}
		return worker.Result{TaskID: nt.TaskID, Outcome: worker.OutcomeFailed, Error: "fixture failure"}, nil
	})
}

// WithReply sets the reply function.
func (w *Worker) WithReply(fn ReplyFunc) *Worker {
	w.reply = fn
	return w
}

func (w *Worker) ID() string       { return w.id }
func (w *Worker) Name() string     { return "fixture " + w.id }
func (w *Worker) Skills() []string { return append([]string(nil), w.skills...) }

// ProcessMessage implements worker.Worker.
func (w *Worker) ProcessMessage(ctx context.Context, msg message.Message) (worker.Result, error) {
	w.mu.Lock()
	w.received = append(w.received, msg)
	w.mu.Unlock()

	if w.reply == nil {
		return worker.Result{}, nil
	}
	return w.reply(msg)
}

// Received returns the messages seen so far, in delivery order.
func (w *Worker) Received() []message.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]message.Message(nil), w.received...)
}

// NewTasks returns the new_task payloads seen so far.
func (w *Worker) NewTasks() []message.NewTask {
	var out []message.NewTask
	for _, m := range w.Received() {
		if nt, ok := m.Payload.(message.NewTask); ok {
			out = append(out, nt)
		}
	}
	return out
}

// ProbedWorker is a Worker with a scripted status probe.
type ProbedWorker struct {
	*Worker

	mu     sync.Mutex
	status worker.Status
	err    error
	panics bool
	probes int
}

// NewProbedWorker creates a healthy, idle probed worker.
func NewProbedWorker(id string, skills ...string) *ProbedWorker {
	return &ProbedWorker{
		Worker: NewWorker(id, skills...),
		status: worker.Status{State: worker.StateHealthy},
	}
}

// SetStatus sets what the next probes report.
func (p *ProbedWorker) SetStatus(st worker.Status, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status, p.err = st, err
}

// SetPanic makes the probe panic.
func (p *ProbedWorker) SetPanic(panics bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.panics = panics
}

// Probes returns how many times Status was called.
func (p *ProbedWorker) Probes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes
}

// Status implements worker.StatusProber.
func (p *ProbedWorker) Status(ctx context.Context) (worker.Status, error) {
	p.mu.Lock()
	p.probes++
	st, err, panics := p.status, p.err, p.panics
	p.mu.Unlock()

	if panics {
		panic("fixture probe panic")
	}
	if err != nil {
		return worker.Status{}, err
	}
	return st, ctx.Err()
}
