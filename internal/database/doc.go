// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库接入：按驱动名创建连接（Open / Dialector），
以及连接池管理（PoolManager）。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、Stats()、
    Close() 以及带指数退避重试的 WithTransaction。
  - PoolConfig：连接池参数、健康检查间隔与事务重试次数。

# 支持的驱动

postgres、mysql、sqlite（纯 Go）与 sqlite3（cgo）。知识图谱的 GORM 存储
（knowledge/gormstore）经由本包获取连接。
*/
package database
