package saga

import (
	"errors"
	"fmt"
)

// ErrorCode 是协调器错误分类的闭集——这是"种类"而非具体类型，调用方用
// errors.Is / IsErrorCode 判别，而不是类型断言到不同的 Go 类型。
type ErrorCode string

const (
	// ErrTransactionFailure 对应 Transaction.run() 抛出的失败；由恢复策略
	// 在本地处理（重试）或升级为 abort。
	ErrTransactionFailure ErrorCode = "TRANSACTION_FAILURE"
	// ErrCompensationFailure 对应 Compensation.run() 抛出的失败；总是被
	// 重试直至成功，永久失败是系统级事故。
	ErrCompensationFailure ErrorCode = "COMPENSATION_FAILURE"
	// ErrStorageFailure 对应 EventStore.append 失败；致命，saga 无法再
	// 保证可恢复性。
	ErrStorageFailure ErrorCode = "STORAGE_FAILURE"
	// ErrDAGInvariantFailure 对应构建期不变量违反；致命，在任何事件被
	// 追加之前同步抛出。
	ErrDAGInvariantFailure ErrorCode = "DAG_INVARIANT_FAILURE"
	// ErrReplayInconsistency 对应事件日志与 DAG 矛盾（未知请求 id、不可能
	// 的状态迁移）；致命。
	ErrReplayInconsistency ErrorCode = "REPLAY_INCONSISTENCY"
)

// SagaError 携带错误种类、受影响的节点 id 与原始 cause。
type SagaError struct {
	Code      ErrorCode
	Message   string
	RequestID int // 0 when the error is not specific to one node
	Cause     error
}

func (e *SagaError) Error() string {
	if e.RequestID != 0 {
		if e.Cause != nil {
			return fmt.Sprintf("saga: %s: node %d: %s: %v", e.Code, e.RequestID, e.Message, e.Cause)
		}
		return fmt.Sprintf("saga: %s: node %d: %s", e.Code, e.RequestID, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("saga: %s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("saga: %s: %s", e.Code, e.Message)
}

func (e *SagaError) Unwrap() error { return e.Cause }

// Is 让 errors.Is(err, &SagaError{Code: X}) 仅按 Code 匹配，忽略其余字段。
func (e *SagaError) Is(target error) bool {
	t, ok := target.(*SagaError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newSagaError(code ErrorCode, requestID int, message string, cause error) *SagaError {
	return &SagaError{Code: code, Message: message, RequestID: requestID, Cause: cause}
}

// NewTransactionFailure 包装一次 Transaction.run() 失败。
func NewTransactionFailure(requestID int, cause error) *SagaError {
	return newSagaError(ErrTransactionFailure, requestID, "transaction failed", cause)
}

// NewCompensationFailure 包装一次 Compensation.run() 失败。
func NewCompensationFailure(requestID int, cause error) *SagaError {
	return newSagaError(ErrCompensationFailure, requestID, "compensation failed", cause)
}

// NewStorageFailure 包装一次 EventStore.Append/Iterate/Populate 失败。
func NewStorageFailure(cause error) *SagaError {
	return newSagaError(ErrStorageFailure, 0, "event store operation failed", cause)
}

// NewDAGInvariantFailure 包装一次构建期 DAG 不变量违反。
func NewDAGInvariantFailure(cause error) *SagaError {
	return newSagaError(ErrDAGInvariantFailure, 0, "DAG invariant violated", cause)
}

// NewReplayInconsistency 报告事件日志与 DAG 不能调和。
func NewReplayInconsistency(message string) *SagaError {
	return newSagaError(ErrReplayInconsistency, 0, message, nil)
}

// IsErrorCode 判断 err 链中是否存在给定 code 的 *SagaError。
func IsErrorCode(err error, code ErrorCode) bool {
	var se *SagaError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == code
}
