// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 coordinator 提供协调引擎 Engine：它持有能力注册表、消息路由、
在途任务集与共享知识图谱，并以固定节拍运行协调循环。

# 协调周期

每个周期严格按以下顺序执行：

 1. 排空路由队列，按到达顺序发起投递，不等待 worker 处理完成。
 2. 对账在途任务：已完成任务做完成记账并移除，失败任务做失败记账并移除，
    逾期且进行中的任务重新分配。
 3. 再平衡：负载超过 0.8 的 worker 若存在负载低于 0.5 且技能重叠的
    worker，输出一条提示，不移动任何任务。
 4. 刷新：并发探测所有提供状态探针的 worker，更新可用性与负载。

周期内的 panic 会被恢复并记录，循环随后使用错误退避时间等待，
永远不会因单个周期失败而退出。

# 可观测性

每个周期创建一个 OTel span，四个步骤各有子 span；周期计数与耗时
同时写入 OTel 指标和可选的 Metrics（Prometheus Collector）。
配置 StatusPublisher 后，每个周期结束时发布一次状态快照。

# 使用示例

	engine, err := coordinator.New(
		coordinator.WithLogger(logger),
		coordinator.WithConfig(cfg.Coordinator),
	)
	_, _ = engine.RegisterWorker(worker.NewLocal("w1", "coder", []string{"code"}, nil, logger))
	_ = engine.Start(ctx)
	defer engine.Stop()
	task, _ := engine.SubmitTask(ctx, dispatch.Request{Title: "fix bug", RequiredSkills: []string{"code"}})
*/
package coordinator
