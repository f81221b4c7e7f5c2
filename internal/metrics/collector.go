// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器；同时实现 router.Observer 与 dispatch.Observer
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 协调指标
	taskEvents        *prometheus.CounterVec
	deliveriesTotal   *prometheus.CounterVec
	deliveryDuration  *prometheus.HistogramVec
	cyclesTotal       *prometheus.CounterVec
	cycleDuration     prometheus.Histogram
	rebalanceHints    prometheus.Counter
	queueDepth        prometheus.Gauge
	tasksInFlight     prometheus.Gauge
	workersRegistered prometheus.Gauge
	workersAvailable  prometheus.Gauge

	// 状态缓存指标
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	statusPublishes *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，注册到默认 registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)
	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 协调指标
	c.taskEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "events_total",
			Help:      "Task lifecycle events (created, completed, failed, redistributed, ...)",
		},
		[]string{"event"},
	)
	c.deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "deliveries_total",
			Help:      "Message deliveries by payload kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	c.deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent in a worker's ProcessMessage",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"kind"},
	)
	c.cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "cycles_total",
			Help:      "Coordination cycles by result",
		},
		[]string{"result"},
	)
	c.cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "cycle_duration_seconds",
			Help:      "Coordination cycle duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
	c.rebalanceHints = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "rebalance_hints_total",
			Help:      "Overloaded/underloaded worker pairs reported by the rebalance pass",
		},
	)
	c.queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "coordinator", Name: "queue_depth",
		Help: "Messages waiting in the central queue",
	})
	c.tasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "coordinator", Name: "tasks_in_flight",
		Help: "Tasks not yet retired",
	})
	c.workersRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "coordinator", Name: "workers_registered",
		Help: "Registered workers",
	})
	c.workersAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "coordinator", Name: "workers_available",
		Help: "Registered workers currently marked available",
	})

	// 状态缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)
	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)
	c.statusPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_publishes_total",
			Help:      "Status snapshots published to the shared cache",
		},
		[]string{"result"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)
	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🧭 协调指标记录
// =============================================================================

// ObserveTaskEvent 记录任务生命周期事件
func (c *Collector) ObserveTaskEvent(event string) {
	c.taskEvents.WithLabelValues(event).Inc()
}

// ObserveDelivery 记录一次消息投递
func (c *Collector) ObserveDelivery(kind, outcome string, duration time.Duration) {
	c.deliveriesTotal.WithLabelValues(kind, outcome).Inc()
	if duration > 0 {
		c.deliveryDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// RecordCycle 记录一个协调周期
func (c *Collector) RecordCycle(duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.cyclesTotal.WithLabelValues(result).Inc()
	c.cycleDuration.Observe(duration.Seconds())
}

// RecordRebalanceHints 累加再平衡建议数
func (c *Collector) RecordRebalanceHints(n int) {
	if n > 0 {
		c.rebalanceHints.Add(float64(n))
	}
}

// SetCoordinatorGauges 更新协调器瞬时状态
func (c *Collector) SetCoordinatorGauges(workers, available, inFlight, queued int) {
	c.workersRegistered.Set(float64(workers))
	c.workersAvailable.Set(float64(available))
	c.tasksInFlight.Set(float64(inFlight))
	c.queueDepth.Set(float64(queued))
}

// =============================================================================
// 💾 状态缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordStatusPublish 记录状态快照发布结果
func (c *Collector) RecordStatusPublish(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.statusPublishes.WithLabelValues(result).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
