// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 AgentCoord 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertMessageKinds
  - 异步断言: AssertEventuallyTrue / WaitFor，
    投递是异步的，等待 worker 收到消息时使用

# 子包

  - testutil/fixtures: 可编排的 worker 替身（Worker、ProbedWorker）
    与预置任务请求
  - testutil/mocks: 知识图谱 Store 的内存实现，支持错误注入

# 使用示例

	w := fixtures.CompletingWorker("w1", "code")
	_, _ = engine.RegisterWorker(w)
	testutil.AssertEventuallyTrue(t, func() bool { return len(w.Received()) == 1 }, time.Second)
*/
package testutil
