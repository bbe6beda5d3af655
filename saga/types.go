package saga

import "context"

// TaskKind 标记一个 Request 由哪种任务运行器处理，按标签分派而非通过
// 动态多态的类型层级（每个变体都是一个小策略：commit/compensate）。
type TaskKind string

const (
	// SagaStart 是合成根节点的运行器：commit 从不失败，compensate 标记
	// 一次反向终止。
	SagaStart TaskKind = "SagaStart"
	// Process 是普通参与者节点的运行器：调用调用方提供的 Transaction /
	// Compensation。
	Process TaskKind = "Process"
	// SagaEnd 是合成叶节点的运行器：commit 标记一次正向成功终止。
	SagaEnd TaskKind = "SagaEnd"
)

// Capability 是一个不透明的可调用对象，契约是 run() → ok | fails(cause)。
// 幂等性不被假设，但前向恢复的重试与 replay 后对挂起事务的重做都会再次
// 调用同一能力。
type Capability interface {
	Run(ctx context.Context) error
}

// CapabilityFunc 让普通函数满足 Capability。
type CapabilityFunc func(ctx context.Context) error

// Run 实现 Capability。
func (f CapabilityFunc) Run(ctx context.Context) error { return f(ctx) }

// NoopCapability 是 SAGA_START / SAGA_END 哨兵使用的能力：run() 永不失败。
var NoopCapability Capability = CapabilityFunc(func(ctx context.Context) error { return nil })

// Request 是图中一个节点承载的工作单元。节点在 DAG 中的 id 本身就是事件
// 归属的 request 引用（replay 以此为键），因此这里不再重复一个独立的
// 字符串 id 字段。
type Request struct {
	Transaction  Capability
	Compensation Capability
	Runner       TaskKind
}

// NewStartRequest 构造合成根节点的 Request：runner 为 SagaStart，两个
// 能力都是永不失败的空操作。
func NewStartRequest() Request {
	return Request{Transaction: NoopCapability, Compensation: NoopCapability, Runner: SagaStart}
}

// NewEndRequest 构造合成叶节点的 Request：runner 为 SagaEnd，两个能力都
// 是永不失败的空操作。
func NewEndRequest() Request {
	return Request{Transaction: NoopCapability, Compensation: NoopCapability, Runner: SagaEnd}
}

// NewProcessRequest 构造一个参与者节点的 Request。
func NewProcessRequest(transaction, compensation Capability) Request {
	return Request{Transaction: transaction, Compensation: compensation, Runner: Process}
}
