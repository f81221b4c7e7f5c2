// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 agentcoord 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 coordinator、dispatch、
api 等上层模块提供统一的错误契约与 context 传播工具，以避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - WithRequestID / WithWorkerID / WithTaskID：context 传播
*/
package types
