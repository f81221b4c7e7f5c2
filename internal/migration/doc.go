// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理知识图谱持久化表（knowledge_concepts、
knowledge_relationships）的 schema，基于 golang-migrate，支持
PostgreSQL、MySQL 与 SQLite。

各方言的 SQL 通过 embed.FS 内嵌在 migrations/<dialect>/ 下。

  - Migrator / DefaultMigrator：Up、Down、Steps、Force、Version、Status、Info。
  - NewMigratorFromDatabaseConfig：从 config.DatabaseConfig 构建连接 URL。
  - CLI：agentcoord migrate 子命令的格式化输出。
  - AvailableMigrations / ReadUp：读取内嵌迁移。
*/
package migration
