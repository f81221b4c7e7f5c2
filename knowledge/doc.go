/*
Package knowledge 提供协调器共享的知识图谱与共享记忆。

# Graph

概念（Concept）与加权关系（Relationship）的存储：

  - 关键词以小写形式建立倒排索引，索引只指向存在的概念
  - 每个无序概念对至多一条边，后写入的覆盖先写入的
  - FindRelated 广度优先遍历，depth < maxDepth 时继续展开，结果不含起点
  - Search 对索引关键词做大小写不敏感的子串匹配，按使用次数降序

可选的 Store 提供写穿透持久化：先写 Store，成功后再更新内存。

# SharedMemory

按 key 追加的知识条目、对应的图谱概念（id 为 key 的 MD5），以及固定容量的
会话历史环。
*/
package knowledge
