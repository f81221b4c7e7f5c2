package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcoord/message"
	"github.com/BaSui01/agentcoord/worker"
)

// recordingHandler 记录收到的消息顺序
type recordingHandler struct {
	mu       sync.Mutex
	received []message.Message
	fn       func(ctx context.Context, msg message.Message) (worker.Result, error)
}

func (h *recordingHandler) ProcessMessage(ctx context.Context, msg message.Message) (worker.Result, error) {
	h.mu.Lock()
	h.received = append(h.received, msg)
	h.mu.Unlock()
	if h.fn != nil {
		return h.fn(ctx, msg)
	}
	return worker.Result{}, nil
}

func (h *recordingHandler) ids() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.received))
	for i, m := range h.received {
		out[i] = m.ID
	}
	return out
}

type observerFunc func(kind, outcome string, d time.Duration)

func (f observerFunc) ObserveDelivery(kind, outcome string, d time.Duration) { f(kind, outcome, d) }

func setupTestRouter(t *testing.T, opts ...Option) *Router {
	t.Helper()
	r := New(DefaultConfig(), nil, opts...)
	t.Cleanup(r.Close)
	return r
}

// =============================================================================
// 🧪 Router 测试
// =============================================================================

func TestRouter_SendQueuesWithoutDelivering(t *testing.T) {
	r := setupTestRouter(t)
	h := &recordingHandler{}
	r.Register("w1", h)

	require.NoError(t, r.Send(message.New("a", "w1", message.Direct{})))
	require.NoError(t, r.Send(message.New("a", "w1", message.Direct{})))

	assert.Equal(t, 2, r.Len())
	assert.Empty(t, h.ids())
}

func TestRouter_DrainDeliversInOrder(t *testing.T) {
	r := setupTestRouter(t)
	h := &recordingHandler{}
	r.Register("w1", h)

	var want []string
	for i := 0; i < 20; i++ {
		m := message.New("a", "w1", message.Direct{})
		want = append(want, m.ID)
		require.NoError(t, r.Send(m))
	}

	report := r.Drain()
	assert.Equal(t, DrainReport{Initiated: 20}, report)
	assert.Equal(t, 0, r.Len())

	require.Eventually(t, func() bool { return len(h.ids()) == 20 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, h.ids())
}

func TestRouter_UnknownRecipientDropped(t *testing.T) {
	var mu sync.Mutex
	var outcomes []string
	r := setupTestRouter(t, WithObserver(observerFunc(func(kind, outcome string, d time.Duration) {
		mu.Lock()
		outcomes = append(outcomes, outcome)
		mu.Unlock()
	})))

	require.NoError(t, r.Send(message.New("a", "ghost", message.Direct{})))
	report := r.Drain()

	assert.Equal(t, DrainReport{Dropped: 1}, report)
	assert.Equal(t, int64(1), r.Stats().Dropped)
	mu.Lock()
	assert.Equal(t, []string{OutcomeDropped}, outcomes)
	mu.Unlock()

	// 丢弃的消息不会重试
	assert.Equal(t, DrainReport{}, r.Drain())
}

func TestRouter_DrainDoesNotWaitForHandlers(t *testing.T) {
	r := setupTestRouter(t)
	release := make(chan struct{})
	h := &recordingHandler{fn: func(ctx context.Context, msg message.Message) (worker.Result, error) {
		<-release
		return worker.Result{}, nil
	}}
	r.Register("w1", h)
	require.NoError(t, r.Send(message.New("a", "w1", message.Direct{})))

	done := make(chan DrainReport, 1)
	go func() { done <- r.Drain() }()

	select {
	case rep := <-done:
		assert.Equal(t, 1, rep.Initiated)
	case <-time.After(time.Second):
		t.Fatal("drain blocked on handler")
	}
	close(release)
}

func TestRouter_ResultForwarded(t *testing.T) {
	results := make(chan worker.Result, 1)
	r := setupTestRouter(t, WithResultFunc(func(msg message.Message, res worker.Result) {
		results <- res
	}))
	r.Register("w1", &recordingHandler{fn: func(ctx context.Context, msg message.Message) (worker.Result, error) {
		return worker.Result{TaskID: "t1", Outcome: worker.OutcomeCompleted}, nil
	}})

	require.NoError(t, r.Send(message.New("a", "w1", message.NewTask{TaskID: "t1"})))
	r.Drain()

	select {
	case res := <-results:
		assert.Equal(t, worker.OutcomeCompleted, res.Outcome)
	case <-time.After(time.Second):
		t.Fatal("result not forwarded")
	}
}

func TestRouter_HandlerErrorAndPanicCounted(t *testing.T) {
	r := setupTestRouter(t)
	r.Register("err", &recordingHandler{fn: func(ctx context.Context, msg message.Message) (worker.Result, error) {
		return worker.Result{}, errors.New("nope")
	}})
	r.Register("panic", &recordingHandler{fn: func(ctx context.Context, msg message.Message) (worker.Result, error) {
		panic("kaboom")
	}})
	ok := &recordingHandler{}
	r.Register("ok", ok)

	require.NoError(t, r.Send(message.New("a", "err", message.Direct{})))
	require.NoError(t, r.Send(message.New("a", "panic", message.Direct{})))
	require.NoError(t, r.Send(message.New("a", "ok", message.Direct{})))
	r.Drain()

	require.Eventually(t, func() bool {
		s := r.Stats()
		return s.Failed == 2 && s.Delivered == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRouter_UnregisterThenDrop(t *testing.T) {
	r := setupTestRouter(t)
	r.Register("w1", &recordingHandler{})
	assert.True(t, r.Registered("w1"))
	assert.True(t, r.Unregister("w1"))
	assert.False(t, r.Unregister("w1"))

	require.NoError(t, r.Send(message.New("a", "w1", message.Direct{})))
	assert.Equal(t, 1, r.Drain().Dropped)
}

// 注销后立即重新注册：旧投递未完成时新消息仍排在其后
func TestRouter_ReregisterKeepsOrderWhileDelivering(t *testing.T) {
	r := setupTestRouter(t)

	var mu sync.Mutex
	var order []string
	var active, maxActive int
	record := func(release <-chan struct{}) func(ctx context.Context, msg message.Message) (worker.Result, error) {
		return func(ctx context.Context, msg message.Message) (worker.Result, error) {
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			if release != nil {
				<-release
			}
			mu.Lock()
			active--
			order = append(order, msg.ID)
			mu.Unlock()
			return worker.Result{}, nil
		}
	}

	release := make(chan struct{})
	old := &recordingHandler{fn: record(release)}
	r.Register("w1", old)

	var want []string
	send := func() {
		m := message.New("a", "w1", message.Direct{})
		want = append(want, m.ID)
		require.NoError(t, r.Send(m))
	}
	send()
	send()
	require.Equal(t, 2, r.Drain().Initiated)
	require.Eventually(t, func() bool { return len(old.ids()) == 1 }, time.Second, 5*time.Millisecond)

	require.True(t, r.Unregister("w1"))
	assert.False(t, r.Registered("w1"))
	assert.False(t, r.Unregister("w1"))

	// 注销期间到达的消息被丢弃
	require.NoError(t, r.Send(message.New("a", "w1", message.Direct{})))
	assert.Equal(t, DrainReport{Dropped: 1}, r.Drain())

	fresh := &recordingHandler{fn: record(nil)}
	r.Register("w1", fresh)
	assert.True(t, r.Registered("w1"))
	send()
	send()
	require.Equal(t, 2, r.Drain().Initiated)

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 4
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, order)
	assert.Equal(t, 1, maxActive)
	assert.Equal(t, want[:1], old.ids())
	assert.Equal(t, want[1:], fresh.ids())
}

// 投递结束后注销的 lane 被回收
func TestRouter_DetachedLaneReapedAfterDelivery(t *testing.T) {
	r := setupTestRouter(t)
	release := make(chan struct{})
	h := &recordingHandler{fn: func(ctx context.Context, msg message.Message) (worker.Result, error) {
		<-release
		return worker.Result{}, nil
	}}
	r.Register("w1", h)
	require.NoError(t, r.Send(message.New("a", "w1", message.Direct{})))
	r.Drain()
	require.Eventually(t, func() bool { return len(h.ids()) == 1 }, time.Second, 5*time.Millisecond)

	require.True(t, r.Unregister("w1"))
	close(release)

	require.Eventually(t, func() bool {
		r.lanesMu.RLock()
		defer r.lanesMu.RUnlock()
		_, ok := r.lanes["w1"]
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestRouter_SendAfterClose(t *testing.T) {
	r := New(DefaultConfig(), nil)
	require.NoError(t, r.Send(message.New("a", "w1", message.Direct{})))
	r.Close()
	r.Close()

	assert.ErrorIs(t, r.Send(message.New("a", "w1", message.Direct{})), ErrClosed)
	assert.Equal(t, 0, r.Len())
}
