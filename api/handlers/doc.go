// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentCoord HTTP API 的请求处理器实现。

# 概述

handlers 包把协调引擎（coordinator.Engine）的操作暴露为 HTTP 端点：
worker 注册、任务创建与汇报、直接消息、知识图谱、状态快照与
WebSocket 状态流，以及健康检查。所有 Handler 都是标准的
http.HandlerFunc，路由由 cmd/agentcoord 注册。

# 核心类型

  - WorkerHandler：远程 worker 注册、查询、注销
  - TaskHandler：任务创建、查询、汇报、重新分配
  - MessageHandler：直接消息入队（202 Accepted）
  - KnowledgeHandler：概念、关系、检索、共享记忆与会话历史
  - StatusHandler：状态快照（引擎或 Redis 缓存）与 WebSocket 推送
  - HealthHandler：服务健康检查（/health, /healthz, /ready）
  - Response：统一 JSON 响应结构（success + data + error + timestamp）

# 错误映射

领域哨兵错误（dispatch.ErrTaskNotFound、knowledge.ErrConceptNotFound 等）
经 ToAPIError 转为 types.Error，再按错误码映射到 HTTP 状态码。
请求体统一经 DecodeJSONBody 解码：1 MB 上限，拒绝未知字段。
*/
package handlers
