// Package cache provides internal cache management.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 状态缓存
// =============================================================================

var (
	// ErrCacheMiss 缓存未命中（快照已过期或从未发布）
	ErrCacheMiss = errors.New("cache miss")
	// ErrClosed 管理器已关闭
	ErrClosed = errors.New("cache manager is closed")
)

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// Manager 把协调器状态快照写入 Redis（SET + TTL）并在频道上广播，
// 供其他进程读取或订阅
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// Config 缓存配置
type Config struct {
	Addr         string `yaml:"addr" json:"addr"`
	Password     string `yaml:"password" json:"password"`
	DB           int    `yaml:"db" json:"db"`
	MaxRetries   int    `yaml:"max_retries" json:"max_retries"`
	PoolSize     int    `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 快照键与过期时间；协调器停止后快照在 TTL 后消失
	StatusKey string        `yaml:"status_key" json:"status_key"`
	StatusTTL time.Duration `yaml:"status_ttl" json:"status_ttl"`
	// 快照广播频道
	StatusChannel string `yaml:"status_channel" json:"status_channel"`

	// 健康检查间隔，0 表示不检查
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		StatusKey:           "agentcoord:status",
		StatusTTL:           30 * time.Second,
		StatusChannel:       "agentcoord:status:updates",
		HealthCheckInterval: 30 * time.Second,
	}
}

// NewManager 连接 Redis，连接失败时返回错误
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if config.StatusKey == "" {
		config.StatusKey = defaults.StatusKey
	}
	if config.StatusTTL <= 0 {
		config.StatusTTL = defaults.StatusTTL
	}
	if config.StatusChannel == "" {
		config.StatusChannel = defaults.StatusChannel
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "status_cache")),
		done:   make(chan struct{}),
	}
	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	m.logger.Info("status cache initialized",
		zap.String("addr", config.Addr),
		zap.String("key", config.StatusKey),
		zap.Duration("ttl", config.StatusTTL),
	)
	return m, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// PublishStatus 以 JSON 写入快照并广播到频道。
// SET 与 PUBLISH 在同一个 pipeline 中发送。
func (m *Manager) PublishStatus(ctx context.Context, snapshot any) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	_, err = m.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, m.config.StatusKey, data, m.config.StatusTTL)
		p.Publish(ctx, m.config.StatusChannel, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish status: %w", err)
	}
	return nil
}

// ReadStatus 读取最近一次发布的快照到 dest
func (m *Manager) ReadStatus(ctx context.Context, dest any) error {
	raw, err := m.ReadStatusRaw(ctx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return nil
}

// ReadStatusRaw 读取快照原始 JSON
func (m *Manager) ReadStatusRaw(ctx context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	val, err := m.redis.Get(ctx, m.config.StatusKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	return val, nil
}

// SubscribeStatus 订阅快照广播。返回的通道在 ctx 取消后关闭。
func (m *Manager) SubscribeStatus(ctx context.Context) (<-chan []byte, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrClosed
	}
	sub := m.redis.Subscribe(ctx, m.config.StatusChannel)
	m.mu.RUnlock()

	// 等待订阅确认，保证返回后发布的消息不会丢
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe status: %w", err)
	}

	out := make(chan []byte, 8)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					// 消费者跟不上时丢弃旧快照，下一次广播会带来最新状态
				}
			}
		}
	}()
	return out, nil
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return m.redis.Ping(ctx).Err()
}

// Close 关闭缓存管理器
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	m.logger.Info("closing status cache")
	return m.redis.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.Ping(ctx); err != nil && !errors.Is(err, ErrClosed) {
			m.logger.Error("cache health check failed", zap.Error(err))
		}
		cancel()
	}
}
