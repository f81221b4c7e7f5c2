package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcoord/internal/pool"
	"github.com/BaSui01/agentcoord/message"
	"github.com/BaSui01/agentcoord/worker"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("router is closed")

// Delivery outcomes reported to an Observer.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)

// Handler receives messages addressed to one recipient.
type Handler interface {
	ProcessMessage(ctx context.Context, msg message.Message) (worker.Result, error)
}

// ResultFunc is called with every successful delivery's result.
type ResultFunc func(msg message.Message, res worker.Result)

// Observer records delivery outcomes.
type Observer interface {
	ObserveDelivery(kind, outcome string, duration time.Duration)
}

// Config configures the router.
type Config struct {
	// DeliveryTimeout bounds a single ProcessMessage call. Zero means no bound.
	DeliveryTimeout time.Duration `json:"delivery_timeout" yaml:"delivery_timeout"`
	Pool            pool.GoroutinePoolConfig
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DeliveryTimeout: 30 * time.Second,
		Pool:            pool.DefaultGoroutinePoolConfig(),
	}
}

// Option customizes a Router.
type Option func(*Router)

// WithObserver sets the delivery observer.
func WithObserver(o Observer) Option {
	return func(r *Router) { r.observer = o }
}

// WithResultFunc sets the callback receiving worker results.
func WithResultFunc(fn ResultFunc) Option {
	return func(r *Router) { r.onResult = fn }
}

// DrainReport summarizes one Drain call.
type DrainReport struct {
	Initiated int `json:"initiated"`
	Dropped   int `json:"dropped"`
}

// Router is the message queue and delivery step.
type Router struct {
	mu     sync.Mutex
	queue  []message.Message
	closed bool

	lanesMu sync.RWMutex
	lanes   map[string]*lane

	pool    *pool.GoroutinePool
	spawned sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc

	config   Config
	observer Observer
	onResult ResultFunc
	logger   *zap.Logger

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// lane serializes delivery for one recipient.
type lane struct {
	id      string
	mu      sync.Mutex
	handler Handler
	pending []message.Message
	running bool

	// detached 已注销但仍有投递在进行；不再接收新消息
	detached bool
}

// New creates a router.
func New(config Config, logger *zap.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "message_router"))

	poolCfg := config.Pool
	poolCfg.PanicHandler = func(v any) {
		logger.Error("delivery panicked", zap.Any("panic", v))
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		lanes:   make(map[string]*lane),
		pool:    pool.NewGoroutinePool(poolCfg),
		baseCtx: ctx,
		cancel:  cancel,
		config:  config,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register makes id a known recipient. Re-registering replaces the handler
// while keeping any messages already handed to the recipient in order.
func (r *Router) Register(id string, h Handler) {
	r.lanesMu.Lock()
	defer r.lanesMu.Unlock()

	// 注销后仍在投递的 lane 直接复用，新旧消息共用一个 runner
	if l, ok := r.lanes[id]; ok {
		l.mu.Lock()
		l.handler = h
		l.detached = false
		l.mu.Unlock()
		return
	}
	r.lanes[id] = &lane{id: id, handler: h}
}

// Unregister forgets id. Deliveries already initiated still run; the lane is
// kept detached until they finish so a later Register cannot overtake them.
func (r *Router) Unregister(id string) bool {
	r.lanesMu.Lock()
	defer r.lanesMu.Unlock()

	l, ok := r.lanes[id]
	if !ok {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.detached {
		return false
	}
	if l.running || len(l.pending) > 0 {
		l.detached = true
		return true
	}
	delete(r.lanes, id)
	return true
}

// Registered reports whether id is a known recipient.
func (r *Router) Registered(id string) bool {
	r.lanesMu.RLock()
	defer r.lanesMu.RUnlock()
	l, ok := r.lanes[id]
	if !ok {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.detached
}

// Send appends msg to the queue.
func (r *Router) Send(msg message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	r.queue = append(r.queue, msg)
	return nil
}

// Len returns the number of queued messages.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Drain pops every queued message in arrival order and initiates its
// delivery. It returns without waiting for any handler.
func (r *Router) Drain() DrainReport {
	r.mu.Lock()
	batch := r.queue
	r.queue = nil
	r.mu.Unlock()

	var report DrainReport
	for _, msg := range batch {
		r.lanesMu.RLock()
		l, ok := r.lanes[msg.Recipient]
		r.lanesMu.RUnlock()

		var start bool
		if ok {
			ok, start = l.push(msg)
		}
		if !ok {
			report.Dropped++
			r.dropped.Add(1)
			r.observe(msg, OutcomeDropped, 0)
			r.logger.Warn("message dropped: unknown recipient",
				zap.String("message_id", msg.ID),
				zap.String("recipient", msg.Recipient),
				zap.String("type", string(msg.Kind())),
			)
			continue
		}

		if start {
			r.schedule(l)
		}
		report.Initiated++
	}
	return report
}

// Stats returns cumulative counters.
func (r *Router) Stats() Stats {
	return Stats{
		Queued:    r.Len(),
		Delivered: r.delivered.Load(),
		Failed:    r.failed.Load(),
		Dropped:   r.dropped.Load(),
		Pool:      r.pool.Stats(),
	}
}

// Stats contains router counters.
type Stats struct {
	Queued    int                     `json:"queued"`
	Delivered int64                   `json:"delivered"`
	Failed    int64                   `json:"failed"`
	Dropped   int64                   `json:"dropped"`
	Pool      pool.GoroutinePoolStats `json:"pool"`
}

// Close rejects further Sends, cancels in-flight deliveries and waits for
// delivery goroutines to exit. Queued messages that were never drained are
// discarded.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	discarded := len(r.queue)
	r.queue = nil
	r.mu.Unlock()

	r.cancel()
	r.pool.Close()
	r.spawned.Wait()

	if discarded > 0 {
		r.logger.Warn("router closed with undelivered messages", zap.Int("discarded", discarded))
	}
}

// push appends msg unless the lane is detached, and reports whether a
// runner must be started.
func (l *lane) push(msg message.Message) (accepted, start bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.detached {
		return false, false
	}
	l.pending = append(l.pending, msg)
	if l.running {
		return true, false
	}
	l.running = true
	return true, true
}

// next pops the head message, or clears running when the lane is empty.
func (l *lane) next() (message.Message, Handler, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) == 0 {
		l.running = false
		return message.Message{}, nil, false
	}
	msg := l.pending[0]
	l.pending[0] = message.Message{}
	l.pending = l.pending[1:]
	return msg, l.handler, true
}

func (r *Router) schedule(l *lane) {
	err := r.pool.Submit(r.baseCtx, func(ctx context.Context) error {
		r.runLane(ctx, l)
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, pool.ErrPoolFull):
		// 池已满：退化为独立 goroutine，保证 Drain 不阻塞
		r.spawned.Add(1)
		go func() {
			defer r.spawned.Done()
			r.runLane(r.baseCtx, l)
		}()
	default:
		r.logger.Warn("delivery not started", zap.String("recipient", l.id), zap.Error(err))
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
		r.reap(l)
	}
}

func (r *Router) runLane(ctx context.Context, l *lane) {
	for {
		msg, h, ok := l.next()
		if !ok {
			r.reap(l)
			return
		}
		r.deliver(ctx, h, msg)
	}
}

// reap 移除已注销且投递完毕的 lane
func (r *Router) reap(l *lane) {
	r.lanesMu.Lock()
	defer r.lanesMu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.detached && !l.running && r.lanes[l.id] == l {
		delete(r.lanes, l.id)
	}
}

func (r *Router) deliver(ctx context.Context, h Handler, msg message.Message) {
	start := time.Now()
	if r.config.DeliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.DeliveryTimeout)
		defer cancel()
	}

	res, err := r.invoke(ctx, h, msg)
	elapsed := time.Since(start)
	if err != nil {
		r.failed.Add(1)
		r.observe(msg, OutcomeFailed, elapsed)
		r.logger.Warn("message delivery failed",
			zap.String("message_id", msg.ID),
			zap.String("recipient", msg.Recipient),
			zap.Error(err),
		)
		return
	}

	r.delivered.Add(1)
	r.observe(msg, OutcomeDelivered, elapsed)
	if r.onResult != nil {
		r.onResult(msg, res)
	}
}

func (r *Router) invoke(ctx context.Context, h Handler, msg message.Message) (res worker.Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("handler panicked: %v", v)
		}
	}()
	return h.ProcessMessage(ctx, msg)
}

func (r *Router) observe(msg message.Message, outcome string, d time.Duration) {
	if r.observer != nil {
		r.observer.ObserveDelivery(string(msg.Kind()), outcome, d)
	}
}
