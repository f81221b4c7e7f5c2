// Package registry keeps one capability record per registered worker: its
// skills, availability, load, rolling performance score and the number of
// tasks it completed jointly with every other worker.
//
// Scores are clamped on every write, so 0.1 <= PerformanceScore <= 1.0 and
// 0 <= CurrentLoad <= 1 hold for every record at all times.
package registry
