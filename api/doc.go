// Package api 定义 AgentCoord HTTP API 的请求与响应类型。
//
// # API Overview
//
// AgentCoord 通过 RESTful API 暴露协调引擎：
//   - worker 注册、查询、注销（远程 worker 通过 HTTP webhook 接收消息）
//   - 任务创建、查询、进度与结果汇报
//   - 直接消息发送
//   - 状态快照与 WebSocket 状态流
//   - 知识图谱与共享记忆
//
// # Authentication
//
// 配置了 API Key 时，请求需携带 X-API-Key 头；配置了 JWT 时携带
// Authorization: Bearer <token>。
//
//	X-API-Key: your-api-key
//
// # Base URL
//
//	http://localhost:8080/api/v1
package api
