package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcoord/message"
)

// HandlerFunc processes one message for a LocalWorker.
type HandlerFunc func(ctx context.Context, msg message.Message) (Result, error)

// LocalWorker runs its handler in-process. It always exposes a status probe
// whose pending count is the number of messages currently being handled.
type LocalWorker struct {
	id      string
	name    string
	skills  []string
	handler HandlerFunc
	logger  *zap.Logger

	pending atomic.Int64

	mu      sync.RWMutex
	healthy bool
}

// NewLocal creates an in-process worker. A nil handler accepts every message.
func NewLocal(id, name string, skills []string, handler HandlerFunc, logger *zap.Logger) *LocalWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalWorker{
		id:      id,
		name:    name,
		skills:  append([]string(nil), skills...),
		handler: handler,
		logger:  logger.With(zap.String("component", "local_worker"), zap.String("worker_id", id)),
		healthy: true,
	}
}

func (w *LocalWorker) ID() string   { return w.id }
func (w *LocalWorker) Name() string { return w.name }

// Skills returns a copy of the advertised skills.
func (w *LocalWorker) Skills() []string {
	return append([]string(nil), w.skills...)
}

// ProcessMessage 调用 handler；handler 为空时对 new_task 回复 accepted
func (w *LocalWorker) ProcessMessage(ctx context.Context, msg message.Message) (Result, error) {
	w.pending.Add(1)
	defer w.pending.Add(-1)

	w.logger.Debug("message received",
		zap.String("message_id", msg.ID),
		zap.String("type", string(msg.Kind())),
	)

	if w.handler != nil {
		return w.handler(ctx, msg)
	}
	if nt, ok := msg.Payload.(message.NewTask); ok {
		return Result{TaskID: nt.TaskID, Outcome: OutcomeAccepted}, nil
	}
	return Result{}, nil
}

// SetHealthy toggles the state reported by Status.
func (w *LocalWorker) SetHealthy(healthy bool) {
	w.mu.Lock()
	w.healthy = healthy
	w.mu.Unlock()
}

// Status implements StatusProber.
func (w *LocalWorker) Status(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	w.mu.RLock()
	healthy := w.healthy
	w.mu.RUnlock()

	st := Status{State: StateHealthy, PendingItems: int(w.pending.Load())}
	if !healthy {
		st.State = StateError
	}
	return st, nil
}
