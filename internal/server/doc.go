// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供协调服务 HTTP/HTTPS 监听的生命周期管理，支持非阻塞启动
与优雅关闭。

# 核心类型

  - Manager：封装 net/http.Server 与 net.Listener，提供
    Start/Shutdown/Errors 等生命周期方法。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小、
    优雅关闭超时以及可选的 *tls.Config。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。Config.TLS 非空时
    监听器被包装为 TLS 监听器。
  - 优雅关闭：Shutdown 在配置的超时内排空请求，重复调用为空操作。
  - 错误传播：Errors() 返回异步错误通道，cmd 层与信号一起 select。
  - 地址查询：Addr 在启动后返回实际监听地址，便于 ":0" 随机端口测试。
*/
package server
