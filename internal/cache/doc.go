// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 基于 Redis 共享协调器状态快照。

Manager.PublishStatus 在每个协调周期后把快照以 JSON 写入 StatusKey（带 TTL）
并 PUBLISH 到 StatusChannel；ReadStatus 与 SubscribeStatus 供 HTTP 接口
（?source=cache）和状态流读取。Redis 地址为空时服务不创建 Manager。
*/
package cache
