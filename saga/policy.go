package saga

import (
	"context"
	"time"
)

// RecoveryDecision is the verdict a RecoveryPolicy returns for a failed
// transaction attempt.
type RecoveryDecision int

const (
	// Abort 选择反向恢复：latch aborted 并在所有在途任务结束后进入补偿。
	Abort RecoveryDecision = iota
	// Retry 选择前向恢复：调度器不推进 DAG，重新调用同一运行器的 commit。
	Retry
)

// RecoveryPolicy 是 C6：失败时决定重试还是补偿的可插拔策略。
type RecoveryPolicy interface {
	// OnTransactionFailure 在一次 Transaction.run() 失败后被调用。attempts
	// 是该节点到目前为止（含本次）失败的次数，从 1 开始计数。
	OnTransactionFailure(ctx context.Context, nodeID int, cause error, attempts int) RecoveryDecision
}

// BackwardPolicy 是默认策略：首次失败即 Abort，不重试。
type BackwardPolicy struct{}

// OnTransactionFailure 实现 RecoveryPolicy。
func (BackwardPolicy) OnTransactionFailure(context.Context, int, error, int) RecoveryDecision {
	return Abort
}

// ForwardPolicy 总是 Retry，直到成功或（若配置了 MaxAttempts）达到上限后
// 转为 Abort，把控制权交还给 backward 阶段。MaxAttempts 为 0 表示无界，
// 与核心契约的"重试直到成功或策略放弃"语义一致；这是 spec 明确允许的
// 生产环境参数化（一个上限和一个延迟），而非对两个内置策略的替代。
type ForwardPolicy struct {
	MaxAttempts int
	Backoff     BackoffConfig
}

// NewForwardPolicy 创建一个使用默认退避、无界重试的前向恢复策略。
func NewForwardPolicy() ForwardPolicy {
	return ForwardPolicy{Backoff: DefaultBackoffConfig()}
}

// OnTransactionFailure 实现 RecoveryPolicy。
func (p ForwardPolicy) OnTransactionFailure(_ context.Context, _ int, _ error, attempts int) RecoveryDecision {
	if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
		return Abort
	}
	return Retry
}

// DelayBefore 返回重试前应等待的退避时长。调度器在 Retry 判决后调用。
func (p ForwardPolicy) DelayBefore(attempt int) time.Duration {
	return p.Backoff.delayFor(attempt)
}

var (
	_ RecoveryPolicy = BackwardPolicy{}
	_ RecoveryPolicy = ForwardPolicy{}
)
