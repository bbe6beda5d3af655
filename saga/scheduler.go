package saga

import (
	"context"
	"errors"
	"sync"
	"time"

	"sagacore/dag"
	"sagacore/logging"
)

// resumeState 是调度器启动时的初始状态，由 replay 引擎（C9）或一次全新
// 运行（空状态）给出。
type resumeState struct {
	completed map[int]bool
	aborted   bool
	// forceRedo 是 replay 发现的"挂起事务"节点 id：它们的 TransactionStarted
	// 已记录但没有匹配的 TransactionEnded/TransactionAborted。它们的父节点
	// 已经 completed（因果顺序保证），因此无需经过普通的就绪检查，直接
	// 重新派发即可——这就是"挂起事务必须被重做"的落地方式。
	forceRedo []int
}

// schedulerResult 是一轮前向调度结束（wg 清空）后的结局。
type schedulerResult struct {
	Aborted  bool
	FatalErr error
}

// scheduler 实现 C7：并发遍历 DAG，派发父节点已全部 completed 的节点。
//
// 并发核心：一把互斥锁保护 {completed, inFlight, aborted}；派发决策在锁
// 内做出，实际工作（调用用户能力）在锁外进行，结果在锁内提交——就绪性判断
// 与子节点派发在同一临界区内完成，避免同一节点被重复派发。
type scheduler struct {
	dag    *dag.DAG[Request]
	store  EventStore
	policy RecoveryPolicy
	logger logging.ILogger

	mu        sync.Mutex
	completed map[int]bool
	inFlight  map[int]bool
	attempts  map[int]int
	aborted   bool
	abortedBy int // node id whose failure first latched abort, for logging
	fatalErr  error

	wg sync.WaitGroup
}

func newScheduler(d *dag.DAG[Request], store EventStore, policy RecoveryPolicy, logger logging.ILogger) *scheduler {
	return &scheduler{
		dag:       d,
		store:     store,
		policy:    policy,
		logger:    logger,
		completed: map[int]bool{},
		inFlight:  map[int]bool{},
		attempts:  map[int]int{},
	}
}

// run seeds the scheduler with rs, dispatches the hanging-transaction redo
// set and the normal DAG frontier, then blocks until every dispatched task
// has settled.
func (s *scheduler) run(ctx context.Context, rs resumeState) schedulerResult {
	s.mu.Lock()
	s.completed = cloneSet(rs.completed)
	s.aborted = rs.aborted
	s.mu.Unlock()

	for _, id := range rs.forceRedo {
		n, ok := s.dag.NodeByID(id)
		if !ok {
			continue
		}
		s.mu.Lock()
		s.inFlight[id] = true
		s.mu.Unlock()
		s.wg.Add(1)
		go s.execute(ctx, n)
	}

	s.dispatchReady(ctx)
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	return schedulerResult{Aborted: s.aborted, FatalErr: s.fatalErr}
}

// dispatchReady finds every node that is not completed, not already
// in-flight, and whose parents are all completed, marks it in-flight and
// spawns its execution — all decided inside one critical section so two
// goroutines can never dispatch the same node twice.
func (s *scheduler) dispatchReady(ctx context.Context) {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}

	var toDispatch []*dag.Node[Request]
	for _, n := range s.dag.Nodes() {
		id := n.ID
		if s.completed[id] || s.inFlight[id] {
			continue
		}
		ready := true
		for _, p := range s.dag.ParentsOf(id) {
			if !s.completed[p.ID] {
				ready = false
				break
			}
		}
		if ready {
			s.inFlight[id] = true
			toDispatch = append(toDispatch, n)
		}
	}
	s.mu.Unlock()

	for _, n := range toDispatch {
		s.wg.Add(1)
		go s.execute(ctx, n)
	}
}

// execute runs one node's runner to completion (success, abort, or fatal
// storage error), retrying per policy on transaction failure. It is the
// sole suspension point: everything outside Transaction.Run/Compensation.Run
// happens without blocking on external I/O.
func (s *scheduler) execute(ctx context.Context, n *dag.Node[Request]) {
	defer s.wg.Done()

	r := runnerFor(n.Value.Runner)
	for {
		err := r.commit(ctx, s.store, n.ID, n.Value)
		if err == nil {
			s.onSuccess(ctx, n.ID)
			return
		}

		var sagaErr *SagaError
		if errors.As(err, &sagaErr) && sagaErr.Code == ErrStorageFailure {
			s.onFatal(n.ID, err)
			return
		}

		s.mu.Lock()
		s.attempts[n.ID]++
		attempts := s.attempts[n.ID]
		s.mu.Unlock()

		decision := s.policy.OnTransactionFailure(ctx, n.ID, err, attempts)
		if decision == Abort {
			s.onAbort(n.ID, err)
			return
		}

		if delayer, ok := s.policy.(interface{ DelayBefore(int) time.Duration }); ok {
			delay := delayer.DelayBefore(attempts)
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					s.onFatal(n.ID, ctx.Err())
					return
				case <-timer.C:
				}
			}
		}
		// Retry: loop back into commit — this appends a fresh
		// TransactionStarted, making the retry observable in the log.
	}
}

func (s *scheduler) onSuccess(ctx context.Context, nodeID int) {
	s.mu.Lock()
	delete(s.inFlight, nodeID)
	s.completed[nodeID] = true
	s.mu.Unlock()
	s.dispatchReady(ctx)
}

// onAbort latches the abort flag on the first failure the policy gives up
// on. It deliberately does not cancel other in-flight goroutines: the
// scheduler must wait for hanging transactions to settle naturally so a
// late TransactionEnded/TransactionAborted is still recorded (§5, §8 S3).
func (s *scheduler) onAbort(nodeID int, cause error) {
	s.mu.Lock()
	delete(s.inFlight, nodeID)
	if !s.aborted {
		s.aborted = true
		s.abortedBy = nodeID
	}
	s.mu.Unlock()
	if s.logger != nil {
		s.logger.Warn(context.Background(), "transaction aborted, latching backward recovery",
			logging.Int("request_id", nodeID), logging.Error(cause))
	}
}

func (s *scheduler) onFatal(nodeID int, err error) {
	s.mu.Lock()
	delete(s.inFlight, nodeID)
	if s.fatalErr == nil {
		s.fatalErr = err
	}
	s.aborted = true
	s.mu.Unlock()
	if s.logger != nil {
		s.logger.Error(context.Background(), "fatal error while executing node",
			logging.Int("request_id", nodeID), logging.Error(err))
	}
}

func cloneSet(m map[int]bool) map[int]bool {
	out := make(map[int]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
