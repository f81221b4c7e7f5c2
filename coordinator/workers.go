package coordinator

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcoord/registry"
	"github.com/BaSui01/agentcoord/worker"
)

// RegisterWorker adds w to the registry and makes it a message recipient.
// Registering an id again replaces the worker and resets its record.
func (e *Engine) RegisterWorker(w worker.Worker) (registry.Capability, error) {
	if w == nil || w.ID() == "" {
		return registry.Capability{}, fmt.Errorf("%w: id is required", ErrInvalidWorker)
	}
	id := w.ID()

	e.workersMu.Lock()
	e.workers[id] = w
	e.workersMu.Unlock()

	e.router.Register(id, w)
	c := e.registry.Register(id, w.Name(), w.Skills())

	_, probed := w.(worker.StatusProber)
	e.logger.Info("worker attached",
		zap.String("worker_id", id),
		zap.Bool("status_probe", probed))
	return c, nil
}

// UnregisterWorker removes the worker from the registry and the router.
// Tasks it was assigned to stay in flight until they finish or go overdue.
func (e *Engine) UnregisterWorker(id string) error {
	e.workersMu.Lock()
	_, ok := e.workers[id]
	delete(e.workers, id)
	e.workersMu.Unlock()

	removed := e.registry.Unregister(id)
	e.router.Unregister(id)
	if !ok && !removed {
		return fmt.Errorf("%s: %w", id, ErrWorkerNotFound)
	}
	e.logger.Info("worker detached", zap.String("worker_id", id))
	return nil
}

// Worker returns the registered worker for id.
func (e *Engine) Worker(id string) (worker.Worker, bool) {
	e.workersMu.RLock()
	defer e.workersMu.RUnlock()
	w, ok := e.workers[id]
	return w, ok
}

// Capability returns a copy of the registry record for id.
func (e *Engine) Capability(id string) (registry.Capability, bool) {
	return e.registry.Get(id)
}

// Capabilities returns copies of all records ordered by worker id.
func (e *Engine) Capabilities() []registry.Capability {
	return e.registry.Snapshot()
}

// UpdateCapability applies mutate to the record for id. Unknown ids are
// ignored.
func (e *Engine) UpdateCapability(id string, mutate func(*registry.Capability)) bool {
	return e.registry.Update(id, mutate)
}

// CollaborationScore returns how many tasks a and b completed together.
func (e *Engine) CollaborationScore(a, b string) int {
	return e.registry.CollaborationScore(a, b)
}
