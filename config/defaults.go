// =============================================================================
// 📦 AgentCoord 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:      DefaultServerConfig(),
		Coordinator: DefaultCoordinatorConfig(),
		Knowledge:   DefaultKnowledgeConfig(),
		Redis:       DefaultRedisConfig(),
		Database:    DefaultDatabaseConfig(),
		Mongo:       DefaultMongoConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:             8080,
		MetricsPort:          9091,
		ReadTimeout:          30 * time.Second,
		WriteTimeout:         30 * time.Second,
		ShutdownTimeout:      15 * time.Second,
		RateLimitRPS:         100,
		RateLimitBurst:       200,
		StatusStreamInterval: 2 * time.Second,
	}
}

// DefaultCoordinatorConfig 返回默认协调引擎配置
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		CycleInterval:     time.Second,
		ErrorBackoff:      5 * time.Second,
		DeliveryTimeout:   30 * time.Second,
		DeliveryWorkers:   32,
		DeliveryQueueSize: 1024,
		ProbeTimeout:      5 * time.Second,
		ProbeConcurrency:  16,
		TaskHistorySize:   1000,
	}
}

// DefaultKnowledgeConfig 返回默认知识图谱配置
func DefaultKnowledgeConfig() KnowledgeConfig {
	return KnowledgeConfig{
		Store:       "memory",
		HistorySize: 1000,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置（Addr 为空：不发布状态）
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		PoolSize:      10,
		MinIdleConns:  2,
		StatusKey:     "agentcoord:status",
		StatusTTL:     30 * time.Second,
		StatusChannel: "agentcoord:status:updates",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "agentcoord",
		Name:            "agentcoord",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		Database: "agentcoord",
		Timeout:  10 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentcoord",
		SampleRate:   0.1,
	}
}
