// Package saga 实现一个以补偿事务（而非两阶段提交）恢复原子性的工作流
// 协调器：调用方提供一个单根单叶的请求 DAG 与一个事件存储，Saga 负责
// 并发地正向执行、在失败时按策略重试或反向补偿，并能从事件日志的任意
// 前缀确定性地恢复。
package saga

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"sagacore/dag"
	"sagacore/logging"
)

// Outcome 是一次 saga 运行仅有的两种终态之一。
type Outcome int

const (
	// ForwardSucceeded 表示正向路径走到底，叶节点记录了 SagaEnded。
	ForwardSucceeded Outcome = iota
	// BackwardCompleted 表示发生了一次 abort，补偿规划器已将待补偿集合清空
	// 并记录了反向终止的 SagaEnded。
	BackwardCompleted
)

func (o Outcome) String() string {
	switch o {
	case ForwardSucceeded:
		return "forward-succeeded"
	case BackwardCompleted:
		return "backward-completed"
	default:
		return "unknown"
	}
}

// Result 汇总一次 Run 调用的结局与其产生的完整事件日志，调用方无需再做
// 一次 Iterate 往返就能检视全部信封。
type Result struct {
	RunID     string
	Outcome   Outcome
	Envelopes []Envelope
}

// Options 是 Saga 的可调参数，遵循函数式 Option 模式构造。
type Options struct {
	RunID               string
	Logger              logging.ILogger
	Policy              RecoveryPolicy
	CompensationBackoff BackoffConfig
}

// DefaultOptions 返回默认恢复策略（backward）与退避参数的 Options。
func DefaultOptions() Options {
	return Options{
		Policy:              BackwardPolicy{},
		CompensationBackoff: DefaultBackoffConfig(),
	}
}

// Option 按函数式配置模式修改 Options。
type Option func(*Options)

// WithLogger 注入一个结构化 logger；未提供时退化为组件级全局 logger。
func WithLogger(l logging.ILogger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithPolicy 替换恢复策略（默认 BackwardPolicy{}）。
func WithPolicy(p RecoveryPolicy) Option {
	return func(o *Options) { o.Policy = p }
}

// WithCompensationBackoff 替换补偿重试的退避参数。
func WithCompensationBackoff(b BackoffConfig) Option {
	return func(o *Options) { o.CompensationBackoff = b }
}

// WithRunID fixes the saga's correlation id (surfaced in every log line as
// the saga_id field and on Result). Callers resuming a saga that already
// has an external correlation id should set this; otherwise New generates
// a fresh one.
func WithRunID(id string) Option {
	return func(o *Options) { o.RunID = id }
}

// errAlreadyRun is a programmer-usage error: Saga is single-use per §3.
var errAlreadyRun = errors.New("saga: Run already invoked on this instance")

// Saga is the top-level coordinator (§3 Lifecycle). It is single-use: it
// is constructed with a store and a DAG, optionally Play()ed once to fold
// a historical prefix, then Run() once, driving to a terminal SagaEnded.
type Saga struct {
	dag   *dag.DAG[Request]
	store EventStore
	opts  Options
	log   logging.ILogger

	mu     sync.Mutex
	played bool
	ran    bool
	state  *replayState
}

// New constructs a Saga over a validated DAG and an event store. The Saga
// exclusively owns DAG traversal state and the scheduler; the store is
// shared with external observers for read access, but only the Saga
// appends to it.
func New(d *dag.DAG[Request], store EventStore, opts ...Option) *Saga {
	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = logging.ComponentLogger("saga")
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	log := o.Logger.WithFields(logging.String("saga_id", o.RunID))
	return &Saga{dag: d, store: store, opts: o, log: log}
}

// RunID returns the saga's correlation id, stamped on every log line it
// emits and on its Result.
func (sg *Saga) RunID() string {
	return sg.opts.RunID
}

// Play folds whatever the store already contains into runtime state via
// the replay engine (C9). It is idempotent and optional: Run calls it
// automatically if the caller never did. Calling it again after Run is a
// no-op since played stays true.
func (sg *Saga) Play(ctx context.Context) error {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	if sg.played {
		return nil
	}
	envelopes, err := sg.store.Iterate(ctx)
	if err != nil {
		return NewStorageFailure(err)
	}
	sg.state = replay(envelopes)
	sg.played = true
	return nil
}

// Run drives the saga to a terminal SagaEnded, exactly once. It replays
// whatever prefix the store holds (if Play was not already called),
// re-executes any hanging transaction discovered by replay, then either
// resumes forward dispatch from the reconstructed frontier or — if replay
// or the forward phase latched an abort — hands off to the compensation
// planner.
func (sg *Saga) Run(ctx context.Context) (Result, error) {
	sg.mu.Lock()
	if sg.ran {
		sg.mu.Unlock()
		return Result{}, errAlreadyRun
	}
	sg.ran = true
	needsPlay := !sg.played
	sg.mu.Unlock()

	if needsPlay {
		if err := sg.Play(ctx); err != nil {
			return Result{}, err
		}
	}

	rs := sg.state
	sch := newScheduler(sg.dag, sg.store, sg.opts.Policy, sg.log)

	forceRedo := make([]int, 0, len(rs.partiallyStarted))
	for id := range rs.partiallyStarted {
		forceRedo = append(forceRedo, id)
	}

	result := sch.run(ctx, resumeState{
		completed: rs.completed,
		aborted:   rs.aborted,
		forceRedo: forceRedo,
	})

	if result.FatalErr != nil {
		return Result{}, result.FatalErr
	}

	if !result.Aborted {
		envelopes, err := sg.store.Iterate(ctx)
		if err != nil {
			return Result{}, NewStorageFailure(err)
		}
		return Result{RunID: sg.opts.RunID, Outcome: ForwardSucceeded, Envelopes: envelopes}, nil
	}

	comp := newCompensator(sg.dag, sg.store, sg.log, sg.opts.CompensationBackoff)
	if err := comp.run(ctx); err != nil {
		return Result{}, err
	}

	envelopes, err := sg.store.Iterate(ctx)
	if err != nil {
		return Result{}, NewStorageFailure(err)
	}
	return Result{RunID: sg.opts.RunID, Outcome: BackwardCompleted, Envelopes: envelopes}, nil
}
