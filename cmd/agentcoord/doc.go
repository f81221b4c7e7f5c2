// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 AgentCoord 协调服务的程序入口。

# 概述

cmd/agentcoord 启动协调引擎并对外暴露 HTTP API，同时提供知识库迁移、
健康检查和版本查询等子命令。配置来自 YAML 文件与 AGENTCOORD_ 环境变量，
日志使用 zap，指标通过独立端口以 Prometheus 格式暴露。

# 核心类型

  - Server：组装引擎、状态缓存、知识库存储与 HTTP/Metrics 服务器
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler
  - statusWriter：捕获状态码与字节数，透传 Hijack 以支持 websocket

# 主要能力

  - 子命令：serve、migrate、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    MetricsMiddleware、RequestLogger、CORS、APIKeyAuth、JWTAuth、RateLimiter
  - 知识库存储：memory、database（GORM）、mongo
  - 配置热更新：日志级别与协调循环节奏无需重启
  - 优雅关闭：HTTP → 配置监听 → 引擎 → 状态缓存 → Metrics → 遥测
*/
package main
