/*
Package router 实现协调器的消息路由：一个无界 FIFO 队列加上投递步骤。

Send 只追加，不按 priority 重排；Drain 按到达顺序弹出所有消息，并把每条消息
交给收件人的投递通道（lane）。每个 lane 在 goroutine 池中串行执行，因此同一
收件人的消息严格按发送顺序投递，而 Drain 本身只负责发起投递，不等待完成。
收件人未注册的消息会被丢弃并记录告警，不会重试。
*/
package router
