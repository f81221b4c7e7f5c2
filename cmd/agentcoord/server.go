package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/BaSui01/agentcoord/api/handlers"
	"github.com/BaSui01/agentcoord/config"
	"github.com/BaSui01/agentcoord/coordinator"
	"github.com/BaSui01/agentcoord/internal/cache"
	"github.com/BaSui01/agentcoord/internal/database"
	"github.com/BaSui01/agentcoord/internal/metrics"
	"github.com/BaSui01/agentcoord/internal/server"
	"github.com/BaSui01/agentcoord/internal/telemetry"
	"github.com/BaSui01/agentcoord/internal/tlsutil"
	"github.com/BaSui01/agentcoord/knowledge"
	"github.com/BaSui01/agentcoord/knowledge/gormstore"
	"github.com/BaSui01/agentcoord/knowledge/mongostore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	// 远程 worker 投递与探测使用的 HTTP 客户端超时；单次调用另有自己的 context 超时
	remoteClientTimeout = 60 * time.Second
	// 连接池指标上报间隔
	dbStatsInterval = 15 * time.Second
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装协调引擎与其外围：HTTP API、Metrics 端口、状态缓存、知识库存储、配置热更新
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	logLevel   zap.AtomicLevel

	// 生命周期 context，Shutdown 时取消（限流清理、配置监听、指标上报）
	ctx    context.Context
	cancel context.CancelFunc

	httpManager    *server.Manager
	metricsManager *server.Manager

	engine           *coordinator.Engine
	metricsCollector *metrics.Collector
	telemetry        *telemetry.Providers
	statusCache      *cache.Manager
	store            knowledge.Store
	dbPool           *database.PoolManager

	healthHandler *handlers.HealthHandler
	configWatcher *config.FileWatcher

	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewServer 创建新的服务器实例；logLevel 用于热更新日志级别
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, logLevel zap.AtomicLevel) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		logLevel:   logLevel,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 按依赖顺序启动所有组件。失败时已启动的部分由 Shutdown 回收
func (s *Server) Start() error {
	var err error

	// 1. 遥测，失败时降级为 noop
	s.telemetry, err = telemetry.Init(s.ctx, s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	// 2. 指标收集器
	s.metricsCollector = metrics.NewCollector("agentcoord", s.logger)

	// 3. 状态缓存（可选）
	if err := s.initStatusCache(); err != nil {
		return fmt.Errorf("failed to init status cache: %w", err)
	}

	// 4. 知识库存储
	if err := s.initKnowledgeStore(); err != nil {
		return fmt.Errorf("failed to init knowledge store: %w", err)
	}

	// 5. 协调引擎
	if err := s.initEngine(); err != nil {
		return fmt.Errorf("failed to init coordination engine: %w", err)
	}

	// 6. 配置热更新
	if err := s.initConfigWatcher(); err != nil {
		return fmt.Errorf("failed to init config watcher: %w", err)
	}

	// 7. HTTP / Metrics 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("knowledge_store", s.cfg.Knowledge.Store),
		zap.Bool("status_cache", s.statusCache != nil),
		zap.Bool("hot_reload_enabled", s.configWatcher != nil),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initStatusCache 配置了 redis.addr 时连接 Redis
func (s *Server) initStatusCache() error {
	rc := s.cfg.Redis
	if rc.Addr == "" {
		s.logger.Info("Redis not configured, status snapshots stay in-process")
		return nil
	}
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = rc.Addr
	cacheCfg.Password = rc.Password
	cacheCfg.DB = rc.DB
	if rc.PoolSize > 0 {
		cacheCfg.PoolSize = rc.PoolSize
	}
	if rc.MinIdleConns > 0 {
		cacheCfg.MinIdleConns = rc.MinIdleConns
	}
	cacheCfg.StatusKey = rc.StatusKey
	cacheCfg.StatusTTL = rc.StatusTTL
	cacheCfg.StatusChannel = rc.StatusChannel

	mgr, err := cache.NewManager(cacheCfg, s.logger)
	if err != nil {
		return err
	}
	s.statusCache = mgr
	return nil
}

// initKnowledgeStore 按 knowledge.store 选择持久化后端；memory 不持久化
func (s *Server) initKnowledgeStore() error {
	switch s.cfg.Knowledge.Store {
	case "database":
		db, err := database.Open(s.cfg.Database.Driver, s.cfg.Database.DSN(), s.logger)
		if err != nil {
			return err
		}
		poolCfg := database.DefaultPoolConfig()
		if s.cfg.Database.MaxOpenConns > 0 {
			poolCfg.MaxOpenConns = s.cfg.Database.MaxOpenConns
		}
		if s.cfg.Database.MaxIdleConns > 0 {
			poolCfg.MaxIdleConns = s.cfg.Database.MaxIdleConns
		}
		if s.cfg.Database.ConnMaxLifetime > 0 {
			poolCfg.ConnMaxLifetime = s.cfg.Database.ConnMaxLifetime
		}
		pool, err := database.NewPoolManager(db, poolCfg, s.logger)
		if err != nil {
			return err
		}
		var opts []gormstore.Option
		if s.cfg.Knowledge.AutoMigrate {
			opts = append(opts, gormstore.WithAutoMigrate())
		} else {
			s.logger.Info("knowledge schema managed externally, run 'agentcoord migrate up' before first start")
		}
		store, err := gormstore.New(pool, s.logger, opts...)
		if err != nil {
			_ = pool.Close()
			return err
		}
		s.store = store
		s.dbPool = pool

		s.wg.Add(1)
		go s.reportDBStats()
	case "mongo":
		store, err := mongostore.Connect(s.ctx, s.cfg.Mongo.URI, s.cfg.Mongo.Database, s.cfg.Mongo.Timeout, s.logger)
		if err != nil {
			return err
		}
		s.store = store
	default:
		s.logger.Info("knowledge graph kept in memory only")
	}
	return nil
}

// initEngine 创建并启动协调引擎。引擎接管 store，Stop 时关闭它
func (s *Server) initEngine() error {
	opts := []coordinator.Option{
		coordinator.WithLogger(s.logger),
		coordinator.WithConfig(s.cfg.Coordinator),
		coordinator.WithMetrics(s.metricsCollector),
		coordinator.WithKnowledgeHistory(s.cfg.Knowledge.HistorySize),
	}
	if s.statusCache != nil {
		opts = append(opts, coordinator.WithStatusPublisher(s.statusCache))
	}
	if s.store != nil {
		opts = append(opts, coordinator.WithKnowledgeStore(s.store))
	}

	engine, err := coordinator.New(opts...)
	if err != nil {
		return err
	}
	s.engine = engine
	return engine.Start(s.ctx)
}

// initConfigWatcher 仅在指定了配置文件时监听。可热更新的只有日志级别与循环节奏，
// 其他字段需要重启
func (s *Server) initConfigWatcher() error {
	if s.configPath == "" {
		return nil
	}
	loader := config.NewLoader().WithValidator(func(c *config.Config) error { return c.Validate() })
	w, err := config.WatchConfig(s.ctx, s.configPath, loader, s.applyConfig, s.logger)
	if err != nil {
		return err
	}
	s.configWatcher = w
	return nil
}

// applyConfig 应用热更新的配置
func (s *Server) applyConfig(next *config.Config) {
	level := parseLevel(next.Log.Level)
	if level != s.logLevel.Level() {
		s.logLevel.SetLevel(level)
		s.logger.Info("log level changed", zap.String("level", level.String()))
	}
	s.engine.SetCadence(next.Coordinator.CycleInterval, next.Coordinator.ErrorBackoff)
}

// reportDBStats 周期性上报连接池指标
func (s *Server) reportDBStats() {
	defer s.wg.Done()
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			st := s.dbPool.Stats()
			s.metricsCollector.RecordDBConnections(s.cfg.Database.Driver, st.OpenConnections, st.Idle)
		}
	}
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册全部 API 路由
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewEngineHealthCheck(s.engine.Running))
	if s.statusCache != nil {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", s.statusCache.Ping))
	}
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck(s.cfg.Knowledge.Store, p.Ping))
	}

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 工作单元
	workerHandler := handlers.NewWorkerHandler(s.engine, tlsutil.SecureHTTPClient(remoteClientTimeout), s.logger)
	mux.HandleFunc("POST /api/v1/workers", workerHandler.HandleRegister)
	mux.HandleFunc("GET /api/v1/workers", workerHandler.HandleList)
	mux.HandleFunc("GET /api/v1/workers/{id}", workerHandler.HandleGet)
	mux.HandleFunc("DELETE /api/v1/workers/{id}", workerHandler.HandleUnregister)

	// 任务
	taskHandler := handlers.NewTaskHandler(s.engine, s.logger)
	mux.HandleFunc("POST /api/v1/tasks", taskHandler.HandleCreate)
	mux.HandleFunc("GET /api/v1/tasks", taskHandler.HandleList)
	mux.HandleFunc("GET /api/v1/tasks/{id}", taskHandler.HandleGet)
	mux.HandleFunc("POST /api/v1/tasks/{id}/report", taskHandler.HandleReport)
	mux.HandleFunc("POST /api/v1/tasks/{id}/redistribute", taskHandler.HandleRedistribute)

	// 消息
	messageHandler := handlers.NewMessageHandler(s.engine, s.logger)
	mux.HandleFunc("POST /api/v1/messages", messageHandler.HandleSend)

	// 知识图谱与共享记忆
	knowledgeHandler := handlers.NewKnowledgeHandler(s.engine, s.logger)
	mux.HandleFunc("POST /api/v1/knowledge/concepts", knowledgeHandler.HandleStoreConcept)
	mux.HandleFunc("GET /api/v1/knowledge/concepts/{id}", knowledgeHandler.HandleGetConcept)
	mux.HandleFunc("GET /api/v1/knowledge/concepts/{id}/related", knowledgeHandler.HandleRelated)
	mux.HandleFunc("GET /api/v1/knowledge/concepts/{id}/relationships", knowledgeHandler.HandleRelationships)
	mux.HandleFunc("POST /api/v1/knowledge/relationships", knowledgeHandler.HandleAddRelationship)
	mux.HandleFunc("GET /api/v1/knowledge/search", knowledgeHandler.HandleSearch)
	mux.HandleFunc("POST /api/v1/knowledge/entries", knowledgeHandler.HandleStoreEntry)
	mux.HandleFunc("GET /api/v1/knowledge/entries", knowledgeHandler.HandleSearchEntries)
	mux.HandleFunc("GET /api/v1/knowledge/entries/{key}", knowledgeHandler.HandleGetEntries)
	mux.HandleFunc("POST /api/v1/knowledge/conversations", knowledgeHandler.HandleAddConversation)
	mux.HandleFunc("GET /api/v1/knowledge/conversations", knowledgeHandler.HandleRecentConversations)

	// 状态
	statusOpts := []handlers.StatusOption{
		handlers.WithStreamInterval(s.cfg.Server.StatusStreamInterval),
		handlers.WithOriginPatterns(s.cfg.Server.CORSAllowedOrigins...),
	}
	if s.statusCache != nil {
		statusOpts = append(statusOpts, handlers.WithStatusCache(&observedStatusCache{
			Manager: s.statusCache,
			metrics: s.metricsCollector,
		}))
	}
	statusHandler := handlers.NewStatusHandler(s.engine, s.logger, statusOpts...)
	mux.HandleFunc("GET /api/v1/status", statusHandler.HandleStatus)
	mux.HandleFunc("GET /api/v1/status/stream", statusHandler.HandleStream)

	return RouteCapture(mux)
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey, s.logger),
	}
	if s.cfg.JWT.Enabled() {
		middlewares = append(middlewares, JWTAuth(s.cfg.JWT, skipAuthPaths, s.logger))
	}
	// 限流放在认证之后，才能按 worker/tenant 分桶
	middlewares = append(middlewares,
		RateLimiter(s.ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger))
	handler := Chain(s.routes(), middlewares...)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	if s.cfg.Server.TLSCertFile != "" {
		tlsCfg, err := tlsutil.ServerTLSConfig(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
		if err != nil {
			return err
		}
		serverConfig.TLS = tlsCfg
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started",
		zap.String("addr", s.httpManager.Addr()),
		zap.Bool("tls", serverConfig.TLS != nil))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer metrics_port 为 0 时不启动
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.String("addr", s.metricsManager.Addr()))
	return nil
}

// observedStatusCache 在读取状态快照时记录缓存命中率
type observedStatusCache struct {
	*cache.Manager
	metrics *metrics.Collector
}

func (c *observedStatusCache) ReadStatusRaw(ctx context.Context) ([]byte, error) {
	data, err := c.Manager.ReadStatusRaw(ctx)
	switch {
	case err == nil:
		c.metrics.RecordCacheHit("status")
	case cache.IsCacheMiss(err):
		c.metrics.RecordCacheMiss("status")
	}
	return data, err
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞到收到 SIGINT/SIGTERM 或某个服务器异常退出，然后优雅关闭
func (s *Server) WaitForShutdown() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-s.serverErrors():
		s.logger.Error("server exited unexpectedly", zap.Error(err))
	}

	s.Shutdown()
}

// serverErrors 合并 HTTP 与 Metrics 服务器的错误通道
func (s *Server) serverErrors() <-chan error {
	out := make(chan error, 2)
	for _, m := range []*server.Manager{s.httpManager, s.metricsManager} {
		if m == nil {
			continue
		}
		go func(errs <-chan error) {
			for err := range errs {
				out <- err
			}
		}(m.Errors())
	}
	return out
}

// Shutdown 优雅关闭：先停止接收请求，再停引擎（引擎关闭知识库存储），最后释放外部连接。
// 可重复调用
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

func (s *Server) shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error

	// 1. HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}

	// 2. 配置监听
	if s.configWatcher != nil {
		if err := s.configWatcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("config watcher: %w", err))
		}
	}

	// 3. 协调引擎；未创建引擎时自行关闭存储
	if s.engine != nil {
		if err := s.engine.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("coordination engine: %w", err))
		}
	} else if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("knowledge store: %w", err))
		}
	}

	// 4. 后台 goroutine（限流清理、连接池指标）
	s.cancel()
	s.wg.Wait()

	// 5. 状态缓存
	if s.statusCache != nil {
		if err := s.statusCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("status cache: %w", err))
		}
	}

	// 6. Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}

	// 7. 遥测，最后刷出剩余的 span
	if err := s.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("shutdown completed with errors", zap.Error(err))
		return
	}
	s.logger.Info("Graceful shutdown completed")
}
