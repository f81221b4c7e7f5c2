// 配置文件变更监听器。
//
// 通过轮询文件修改时间检测变更，防抖后回调；WatchConfig 在变更时重新加载配置。
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- 文件监听器类型定义 ---

// FileWatcher 监听单个配置文件
type FileWatcher struct {
	mu sync.RWMutex

	path          string
	pollInterval  time.Duration
	debounceDelay time.Duration

	running   bool
	stopChan  chan struct{}
	eventChan chan FileEvent
	callbacks []func(event FileEvent)

	// 仅在轮询 goroutine 中读写
	lastMod time.Time
	exists  bool

	logger *zap.Logger
}

// FileEvent 文件变更事件
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// FileOp 文件操作类型
type FileOp int

const (
	// FileOpCreate 文件已创建
	FileOpCreate FileOp = iota
	// FileOpWrite 文件已修改
	FileOpWrite
	// FileOpRemove 文件已删除
	FileOpRemove
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// --- 选项 ---

// WatcherOption configures the FileWatcher
type WatcherOption func(*FileWatcher)

// WithDebounceDelay 设置防抖时间
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.debounceDelay = d
	}
}

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.pollInterval = d
	}
}

// WithWatcherLogger 设置日志
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// --- 实现 ---

// NewFileWatcher 创建监听器；文件不存在时仅告警，创建后会产生 CREATE 事件
func NewFileWatcher(path string, opts ...WatcherOption) (*FileWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watch path is required")
	}
	w := &FileWatcher{
		path:          path,
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		stopChan:      make(chan struct{}),
		eventChan:     make(chan FileEvent, 16),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat path %s: %w", path, err)
		}
		w.logger.Warn("config file does not exist, will watch for creation", zap.String("path", path))
	}
	return w, nil
}

// OnChange 注册变更回调
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 启动轮询与分发；ctx 取消或 Stop 后退出
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}
	select {
	case <-w.stopChan:
		return fmt.Errorf("watcher already stopped")
	default:
	}
	w.running = true

	if info, err := os.Stat(w.path); err == nil {
		w.lastMod, w.exists = info.ModTime(), true
	}

	go w.pollLoop(ctx)
	go w.dispatchLoop(ctx)

	w.logger.Info("config watcher started",
		zap.String("path", w.path),
		zap.Duration("poll_interval", w.pollInterval),
		zap.Duration("debounce_delay", w.debounceDelay))
	return nil
}

// Stop 停止监听，可重复调用
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	close(w.stopChan)
	w.running = false
	w.logger.Info("config watcher stopped")
	return nil
}

// Path 返回监听的文件路径
func (w *FileWatcher) Path() string {
	return w.path
}

// IsRunning 是否在运行
func (w *FileWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *FileWatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			if evt, ok := w.check(); ok {
				w.emit(evt)
			}
		}
	}
}

// check 比较修改时间，返回需要发出的事件
func (w *FileWatcher) check() (FileEvent, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		if os.IsNotExist(err) && w.exists {
			w.exists = false
			return FileEvent{Path: w.path, Op: FileOpRemove, Timestamp: time.Now()}, true
		}
		return FileEvent{}, false
	}

	switch {
	case !w.exists:
		w.lastMod, w.exists = info.ModTime(), true
		return FileEvent{Path: w.path, Op: FileOpCreate, Timestamp: time.Now()}, true
	case info.ModTime().After(w.lastMod):
		w.lastMod = info.ModTime()
		return FileEvent{Path: w.path, Op: FileOpWrite, Timestamp: time.Now()}, true
	}
	return FileEvent{}, false
}

// emit 不阻塞；队列满时丢弃，防抖窗口内的事件本就会被合并
func (w *FileWatcher) emit(evt FileEvent) {
	select {
	case w.eventChan <- evt:
	default:
	}
}

// dispatchLoop 防抖后在同一 goroutine 中调用回调，只分发窗口内最后一个事件
func (w *FileWatcher) dispatchLoop(ctx context.Context) {
	var (
		pending *FileEvent
		timer   *time.Timer
		fire    <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case evt := <-w.eventChan:
			pending = &evt
			if timer == nil {
				timer = time.NewTimer(w.debounceDelay)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounceDelay)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if pending == nil {
				continue
			}
			evt := *pending
			pending = nil

			w.mu.RLock()
			callbacks := make([]func(FileEvent), len(w.callbacks))
			copy(callbacks, w.callbacks)
			w.mu.RUnlock()

			w.logger.Debug("dispatching config file event",
				zap.String("path", evt.Path),
				zap.String("op", evt.Op.String()))
			for _, cb := range callbacks {
				cb(evt)
			}
		}
	}
}

// =============================================================================
// 🔄 配置重载
// =============================================================================

// WatchConfig 监听 path，文件创建或修改后用 loader 重新加载并调用 onReload。
// 加载失败时保留旧配置并记录日志。返回的监听器已启动。
func WatchConfig(ctx context.Context, path string, loader *Loader, onReload func(*Config), logger *zap.Logger, opts ...WatcherOption) (*FileWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loader == nil {
		loader = NewLoader()
	}
	loader.WithConfigPath(path)

	opts = append([]WatcherOption{WithWatcherLogger(logger)}, opts...)
	w, err := NewFileWatcher(path, opts...)
	if err != nil {
		return nil, err
	}

	w.OnChange(func(evt FileEvent) {
		if evt.Op == FileOpRemove {
			logger.Warn("config file removed, keeping current configuration", zap.String("path", evt.Path))
			return
		}
		cfg, err := loader.Load()
		if err != nil {
			logger.Error("config reload failed, keeping current configuration",
				zap.String("path", evt.Path), zap.Error(err))
			return
		}
		logger.Info("config reloaded", zap.String("path", evt.Path), zap.String("op", evt.Op.String()))
		onReload(cfg)
	})

	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}
