/*
Package worker 定义被协调方（worker）的契约与两种内置实现。

  - Worker：所有 worker 必须实现 ID / Name / Skills / ProcessMessage
  - StatusProber：可选的实时状态探针，供协调循环的 refresh 阶段使用
  - LocalWorker：进程内 worker，由 HandlerFunc 驱动
  - HTTPWorker：远程 worker，消息以 JSON POST 到其 endpoint
*/
package worker
