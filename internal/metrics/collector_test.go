package metrics

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector_NilLogger(t *testing.T) {
	c := NewCollector(nextTestNamespace(), nil)
	assert.NotNil(t, c)
	assert.NotNil(t, c.logger)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordHTTPRequest("GET", "/api/v1/status", 200, 100*time.Millisecond, 0, 512)
	c.RecordHTTPRequest("GET", "/api/v1/status", 204, 50*time.Millisecond, 0, 0)
	c.RecordHTTPRequest("POST", "/api/v1/tasks", 503, time.Millisecond, 128, 64)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/api/v1/status", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/tasks", "5xx")))
}

func TestCollector_TaskEventsAndDeliveries(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.ObserveTaskEvent("created")
	c.ObserveTaskEvent("created")
	c.ObserveTaskEvent("redistributed")
	c.ObserveDelivery("new_task", "delivered", 20*time.Millisecond)
	c.ObserveDelivery("direct", "dropped", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.taskEvents.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.taskEvents.WithLabelValues("redistributed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deliveriesTotal.WithLabelValues("new_task", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deliveriesTotal.WithLabelValues("direct", "dropped")))
	// 丢弃的消息没有耗时样本
	assert.Equal(t, 1, testutil.CollectAndCount(c.deliveryDuration))
}

func TestCollector_CycleAndGauges(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordCycle(3*time.Millisecond, nil)
	c.RecordCycle(time.Millisecond, errors.New("probe panic"))
	c.RecordRebalanceHints(2)
	c.RecordRebalanceHints(0)
	c.SetCoordinatorGauges(4, 3, 7, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.cyclesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cyclesTotal.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.rebalanceHints))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.workersRegistered))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.workersAvailable))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.tasksInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queueDepth))
}

func TestCollector_CacheAndDB(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordCacheHit("status")
	c.RecordCacheMiss("status")
	c.RecordStatusPublish(nil)
	c.RecordStatusPublish(errors.New("connection refused"))
	c.RecordDBConnections("knowledge", 3, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("status")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses.WithLabelValues("status")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.statusPublishes.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("knowledge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("knowledge")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ObserveTaskEvent("completed")
			c.ObserveDelivery("new_task", "delivered", time.Millisecond)
			c.RecordCacheHit("status")
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(c.taskEvents.WithLabelValues("completed")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.deliveriesTotal.WithLabelValues("new_task", "delivered")))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(201))
	assert.Equal(t, "3xx", statusCode(304))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(500))
	assert.Equal(t, "unknown", statusCode(100))
}
