package saga

import "context"

// runner 是 C5 的内部策略接口：每个 TaskKind 对应一个小而闭的
// commit/compensate 实现，按标签分派（见 runnerFor）。
type runner interface {
	commit(ctx context.Context, store EventStore, nodeID int, req Request) error
	compensate(ctx context.Context, store EventStore, nodeID int, req Request) error
}

func runnerFor(kind TaskKind) runner {
	switch kind {
	case SagaStart:
		return sagaStartRunner{}
	case SagaEnd:
		return sagaEndRunner{}
	default:
		return processRunner{}
	}
}

type sagaStartRunner struct{}

func (sagaStartRunner) commit(ctx context.Context, store EventStore, nodeID int, _ Request) error {
	if _, err := store.Append(ctx, Event{Kind: SagaStarted, RequestID: nodeID}); err != nil {
		return NewStorageFailure(err)
	}
	return nil
}

// compensate 标记一次反向终止的 saga：追加带 Backward 标记的 SagaEnded。
// 根据契约从不失败（只可能因底层存储故障而致命）。
func (sagaStartRunner) compensate(ctx context.Context, store EventStore, nodeID int, _ Request) error {
	if _, err := store.Append(ctx, Event{Kind: SagaEnded, RequestID: nodeID, Backward: true}); err != nil {
		return NewStorageFailure(err)
	}
	return nil
}

type sagaEndRunner struct{}

func (sagaEndRunner) commit(ctx context.Context, store EventStore, nodeID int, _ Request) error {
	if _, err := store.Append(ctx, Event{Kind: SagaEnded, RequestID: nodeID}); err != nil {
		return NewStorageFailure(err)
	}
	return nil
}

func (sagaEndRunner) compensate(ctx context.Context, store EventStore, nodeID int, _ Request) error {
	if _, err := store.Append(ctx, Event{Kind: SagaEnded, RequestID: nodeID, Backward: true}); err != nil {
		return NewStorageFailure(err)
	}
	return nil
}

type processRunner struct{}

func (processRunner) commit(ctx context.Context, store EventStore, nodeID int, req Request) error {
	if _, err := store.Append(ctx, Event{Kind: TransactionStarted, RequestID: nodeID}); err != nil {
		return NewStorageFailure(err)
	}

	runErr := req.Transaction.Run(ctx)
	if runErr != nil {
		if _, err := store.Append(ctx, Event{Kind: TransactionAborted, RequestID: nodeID, Cause: runErr.Error()}); err != nil {
			return NewStorageFailure(err)
		}
		return NewTransactionFailure(nodeID, runErr)
	}

	if _, err := store.Append(ctx, Event{Kind: TransactionEnded, RequestID: nodeID}); err != nil {
		return NewStorageFailure(err)
	}
	return nil
}

// compensate 追加 CompensationStarted，调用用户补偿能力，再追加
// CompensationEnded。失败时返回 CompensationFailure 供调用方（backward
// 规划器）按策略重试，而不是在此处内联重试循环。
func (processRunner) compensate(ctx context.Context, store EventStore, nodeID int, req Request) error {
	if _, err := store.Append(ctx, Event{Kind: CompensationStarted, RequestID: nodeID}); err != nil {
		return NewStorageFailure(err)
	}

	if runErr := req.Compensation.Run(ctx); runErr != nil {
		return NewCompensationFailure(nodeID, runErr)
	}

	if _, err := store.Append(ctx, Event{Kind: CompensationEnded, RequestID: nodeID}); err != nil {
		return NewStorageFailure(err)
	}
	return nil
}
