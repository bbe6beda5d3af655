// Package idgen 提供事件信封的单调递增 id 分配。
//
// 契约要求 id 在单个进程内严格单调递增且稠密（1, 2, 3, …）——不同于
// 仓库其它地方常见的雪花算法（位打包、含时间戳/机器号、非稠密），这里的
// 需求是一个纯粹的、可被 populate 预置前缀复用的稠密序列，因此退化为一个
// 原子计数器就是契约本身，而不是对雪花算法的简化。
package idgen

import "sync/atomic"

// Generator 产生严格单调递增的 u64 id。
type Generator interface {
	// NextID 返回下一个 id，严格大于此前任何一次调用返回的值。
	NextID() uint64
}

// Counter 是 Generator 的默认实现：一个原子计数器。
type Counter struct {
	n atomic.Uint64
}

// NewCounter 创建一个从 0 开始的计数器，首次 NextID 返回 1。
func NewCounter() *Counter {
	return &Counter{}
}

// NewCounterFrom 创建一个计数器，其首次 NextID 返回 last+1。用于从事件
// 日志的已有前缀（例如 replay 之后）恢复分配状态，保持 id 连续递增。
func NewCounterFrom(last uint64) *Counter {
	c := &Counter{}
	c.n.Store(last)
	return c
}

// NextID 原子地递增并返回新值。
func (c *Counter) NextID() uint64 {
	return c.n.Add(1)
}

var _ Generator = (*Counter)(nil)
