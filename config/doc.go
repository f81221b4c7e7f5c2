// Package config 提供 AgentCoord 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 AGENTCOORD）的顺序叠加，
// FileWatcher 监听配置文件变更，服务据此热更新日志级别与协调周期。
package config
