// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、协调引擎、
状态缓存与数据库连接池。

Collector 通过 promauto 注册到默认 registry，按 namespace 隔离。
它同时实现 router.Observer（ObserveDelivery）与 dispatch.Observer
（ObserveTaskEvent），协调引擎在每个周期结束后调用 RecordCycle 与
SetCoordinatorGauges。
*/
package metrics
