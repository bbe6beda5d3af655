package saga

import (
	"context"
	"sync"

	"sagacore/idgen"
)

// EventKind 枚举了封闭的事件变体集合（C4）。
type EventKind string

const (
	SagaStarted         EventKind = "SagaStarted"
	TransactionStarted  EventKind = "TransactionStarted"
	TransactionEnded    EventKind = "TransactionEnded"
	TransactionAborted  EventKind = "TransactionAborted"
	CompensationStarted EventKind = "CompensationStarted"
	CompensationEnded   EventKind = "CompensationEnded"
	SagaEnded           EventKind = "SagaEnded"
)

// Event 携带其发起请求（节点 id）的引用；TransactionAborted 额外携带
// cause，SagaEnded 额外携带一个表明"反向终止"的标记。
type Event struct {
	Kind      EventKind
	RequestID int
	Cause     string
	Backward  bool
}

// Envelope 是事件日志中的一条记录：一个单调递增的 id 包裹一个事件。
type Envelope struct {
	ID    uint64
	Event Event
}

// EventStore 是事件日志的抽象契约（C2）。实现必须满足：
//   - Append 原子地分配下一个 id，持久化，并在返回前使其对读者可见；
//   - Iterate 按插入顺序（= id 顺序）产出全部信封；
//   - Populate 批量导入历史信封并保留其 id；仅在任何一次活跃 Append
//     发生之前合法。
type EventStore interface {
	Append(ctx context.Context, event Event) (Envelope, error)
	Iterate(ctx context.Context) ([]Envelope, error)
	Populate(ctx context.Context, envelopes []Envelope) error
}

// MemoryEventStore 是 EventStore 的进程内实现：一个由互斥锁保护的有序
// 切片加一个单调 id 生成器。
type MemoryEventStore struct {
	mu        sync.Mutex
	gen       idgen.Generator
	envelopes []Envelope
	appended  bool
}

// NewMemoryEventStore 创建一个空的内存事件存储。
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{gen: idgen.NewCounter()}
}

// Append 实现 EventStore。
func (s *MemoryEventStore) Append(_ context.Context, event Event) (Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env := Envelope{ID: s.gen.NextID(), Event: event}
	s.envelopes = append(s.envelopes, env)
	s.appended = true
	return env, nil
}

// Iterate 实现 EventStore，返回信封的一份快照拷贝。
func (s *MemoryEventStore) Iterate(_ context.Context) ([]Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Envelope, len(s.envelopes))
	copy(out, s.envelopes)
	return out, nil
}

// Populate 实现 EventStore。在任何一次 Append 发生之后调用是编程错误，
// 返回 ReplayInconsistency。
func (s *MemoryEventStore) Populate(_ context.Context, envelopes []Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appended {
		return NewReplayInconsistency("populate called after a live append has already occurred")
	}
	out := make([]Envelope, len(envelopes))
	copy(out, envelopes)
	s.envelopes = out

	var maxID uint64
	for _, e := range out {
		if e.ID > maxID {
			maxID = e.ID
		}
	}
	s.gen = idgen.NewCounterFrom(maxID)
	return nil
}

var _ EventStore = (*MemoryEventStore)(nil)
