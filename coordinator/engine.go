package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcoord/config"
	"github.com/BaSui01/agentcoord/dispatch"
	"github.com/BaSui01/agentcoord/internal/pool"
	"github.com/BaSui01/agentcoord/knowledge"
	"github.com/BaSui01/agentcoord/message"
	"github.com/BaSui01/agentcoord/registry"
	"github.com/BaSui01/agentcoord/router"
	"github.com/BaSui01/agentcoord/worker"
)

var (
	ErrAlreadyRunning = errors.New("engine already running")
	ErrStopped        = errors.New("engine stopped")
	ErrInvalidWorker  = errors.New("invalid worker")
	ErrWorkerNotFound = errors.New("worker not found")
)

// Metrics receives coordination measurements. *metrics.Collector satisfies it.
type Metrics interface {
	router.Observer
	dispatch.Observer
	RecordCycle(d time.Duration, err error)
	RecordRebalanceHints(n int)
	SetCoordinatorGauges(workers, available, inFlight, queued int)
	RecordStatusPublish(err error)
}

// StatusPublisher shares status snapshots with other processes.
// *cache.Manager satisfies it.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, snapshot any) error
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithConfig overrides the coordinator settings. Zero fields keep defaults.
func WithConfig(cfg config.CoordinatorConfig) Option {
	return func(e *Engine) { e.config = mergeConfig(cfg) }
}

// WithMetrics wires a metrics sink into the router, dispatcher and loop.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithStatusPublisher publishes a status snapshot after every cycle.
func WithStatusPublisher(p StatusPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithKnowledgeStore enables write-through persistence of the knowledge graph.
// The engine closes the store on Stop.
func WithKnowledgeStore(s knowledge.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithKnowledgeHistory sets the conversation ring capacity.
func WithKnowledgeHistory(size int) Option {
	return func(e *Engine) { e.historySize = size }
}

// WithTracerProvider overrides the global OTel tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider overrides the global OTel meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// WithClock overrides the time source used for deadlines.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the coordination authority: it owns the capability registry,
// the message router, the in-flight task set and the knowledge graph, and
// runs the coordination loop over them.
type Engine struct {
	config      config.CoordinatorConfig
	logger      *zap.Logger
	metrics     Metrics
	publisher   StatusPublisher
	store       knowledge.Store
	historySize int
	now         func() time.Time

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	inst           *instruments

	registry   *registry.Registry
	router     *router.Router
	dispatcher *dispatch.Dispatcher
	graph      *knowledge.Graph
	memory     *knowledge.SharedMemory

	workersMu sync.RWMutex
	workers   map[string]worker.Worker

	cycleInterval atomic.Int64
	errorBackoff  atomic.Int64
	cycles        atomic.Uint64
	lastCycle     atomic.Int64

	running atomic.Bool

	lifeMu   sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	stopped  bool
	restored bool
}

// New assembles an engine. Start runs the loop; until then RunCycle can be
// driven by hand.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		config:  mergeConfig(config.CoordinatorConfig{}),
		logger:  zap.NewNop(),
		now:     time.Now,
		workers: make(map[string]worker.Worker),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "coordinator"))

	if e.tracerProvider == nil {
		e.tracerProvider = otel.GetTracerProvider()
	}
	if e.meterProvider == nil {
		e.meterProvider = otel.GetMeterProvider()
	}
	inst, err := newInstruments(e.tracerProvider, e.meterProvider)
	if err != nil {
		return nil, err
	}
	e.inst = inst

	e.cycleInterval.Store(int64(e.config.CycleInterval))
	e.errorBackoff.Store(int64(e.config.ErrorBackoff))

	e.registry = registry.New(e.logger)

	routerOpts := []router.Option{router.WithResultFunc(e.onResult)}
	dispatchOpts := []dispatch.Option{dispatch.WithClock(e.now)}
	if e.metrics != nil {
		routerOpts = append(routerOpts, router.WithObserver(e.metrics))
		dispatchOpts = append(dispatchOpts, dispatch.WithObserver(e.metrics))
	}
	e.router = router.New(router.Config{
		DeliveryTimeout: e.config.DeliveryTimeout,
		Pool: pool.GoroutinePoolConfig{
			MaxWorkers: e.config.DeliveryWorkers,
			QueueSize:  e.config.DeliveryQueueSize,
		},
	}, e.logger, routerOpts...)
	e.dispatcher = dispatch.New(e.registry, e.router,
		dispatch.Config{HistorySize: e.config.TaskHistorySize}, e.logger, dispatchOpts...)

	var graphOpts []knowledge.GraphOption
	if e.store != nil {
		graphOpts = append(graphOpts, knowledge.WithStore(e.store))
	}
	e.graph = knowledge.NewGraph(e.logger, graphOpts...)
	e.memory = knowledge.NewSharedMemory(e.graph, e.historySize, e.logger)

	return e, nil
}

func mergeConfig(cfg config.CoordinatorConfig) config.CoordinatorConfig {
	def := config.DefaultCoordinatorConfig()
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = def.CycleInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = def.ErrorBackoff
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = def.DeliveryTimeout
	}
	if cfg.DeliveryWorkers <= 0 {
		cfg.DeliveryWorkers = def.DeliveryWorkers
	}
	if cfg.DeliveryQueueSize <= 0 {
		cfg.DeliveryQueueSize = def.DeliveryQueueSize
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.ProbeConcurrency <= 0 {
		cfg.ProbeConcurrency = def.ProbeConcurrency
	}
	if cfg.TaskHistorySize <= 0 {
		cfg.TaskHistorySize = def.TaskHistorySize
	}
	return cfg
}

// Start restores the knowledge graph from its store (first call only) and
// launches the coordination loop. The loop stops when ctx is cancelled or
// Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.stopped {
		return ErrStopped
	}
	if e.cancel != nil {
		return ErrAlreadyRunning
	}
	if !e.restored {
		if err := e.graph.Restore(ctx); err != nil {
			return err
		}
		e.restored = true
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running.Store(true)
	go e.loop(loopCtx, e.done)

	e.logger.Info("coordination loop started",
		zap.Duration("cycle_interval", e.CycleInterval()),
		zap.Duration("error_backoff", e.ErrorBackoff()))
	return nil
}

// Stop ends the loop, waits for it, then closes the router and the
// knowledge store. Further Starts fail. Safe to call more than once.
func (e *Engine) Stop() error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.stopped {
		return nil
	}
	e.stopped = true
	e.running.Store(false)
	if e.cancel != nil {
		e.cancel()
		<-e.done
		e.cancel = nil
	}

	e.router.Close()
	err := e.graph.Close()
	e.logger.Info("coordination engine stopped", zap.Uint64("cycles", e.cycles.Load()))
	return err
}

// Running reports whether the loop goroutine is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// SetCadence changes the loop timings; it takes effect at the next wait.
// Non-positive values are ignored.
func (e *Engine) SetCadence(interval, backoff time.Duration) {
	if interval > 0 {
		e.cycleInterval.Store(int64(interval))
	}
	if backoff > 0 {
		e.errorBackoff.Store(int64(backoff))
	}
	e.logger.Info("loop cadence updated",
		zap.Duration("cycle_interval", e.CycleInterval()),
		zap.Duration("error_backoff", e.ErrorBackoff()))
}

// CycleInterval returns the pause between successful cycles.
func (e *Engine) CycleInterval() time.Duration {
	return time.Duration(e.cycleInterval.Load())
}

// ErrorBackoff returns the pause after a failed cycle.
func (e *Engine) ErrorBackoff() time.Duration {
	return time.Duration(e.errorBackoff.Load())
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer e.running.Store(false)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wait := e.CycleInterval()
		if _, err := e.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait = e.ErrorBackoff()
			e.logger.Error("coordination cycle failed, backing off",
				zap.Error(err),
				zap.Duration("backoff", wait))
		}
		timer.Reset(wait)
	}
}

// onResult forwards terminal task outcomes carried by delivery results.
func (e *Engine) onResult(msg message.Message, res worker.Result) {
	nt, ok := msg.Payload.(message.NewTask)
	if !ok {
		return
	}
	if !res.Outcome.Terminal() && res.Progress <= 0 {
		return
	}
	taskID := res.TaskID
	if taskID == "" {
		taskID = nt.TaskID
	}
	if err := e.dispatcher.Report(taskID, msg.Recipient, res); err != nil {
		e.logger.Debug("worker result not applied",
			zap.String("task_id", taskID),
			zap.String("worker_id", msg.Recipient),
			zap.Error(err))
	}
}
