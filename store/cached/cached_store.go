// Package cached 为任意 saga.EventStore 提供一个只读路径的 LRU 缓存装饰器：
// Iterate 的结果被缓存，Append 之后缓存立即失效，重新从底层存储读取。
//
// 这只对"读多写少、日志已基本稳定"的观察者场景（例如外部仪表盘轮询同一个
// saga 的日志）有意义；Saga 自身的 Run 不经过这一层——它总是直接持有底层
// 存储，因为它既读也写，缓存在这里只会增加陈旧读的风险。
package cached

import (
	"context"
	"sync"

	"sagacore/cache"
	"sagacore/logging"
	"sagacore/saga"
)

const logCacheKey = "log"

// Config 调整缓存容量与日志记录器；缓存条目不按时间过期，只在写入时失效。
type Config struct {
	MaxSize int
	Logger  logging.ILogger
}

// DefaultConfig 返回一个容纳单条日志快照的默认配置。
func DefaultConfig() Config {
	return Config{MaxSize: 1}
}

// Store 包装一个 saga.EventStore，缓存其 Iterate 结果。
type Store struct {
	inner   saga.EventStore
	cache   *cache.Cache[string, []saga.Envelope]
	mu      sync.Mutex
	version uint64
	log     logging.ILogger
}

// New 创建一个缓存装饰器，包裹 inner。
func New(inner saga.EventStore, cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("store.cached")
	}
	return &Store{
		inner: inner,
		cache: cache.New[string, []saga.Envelope](cache.Config{Name: "saga_event_log", MaxSize: cfg.MaxSize}),
		log:   cfg.Logger,
	}
}

// Append 委派给底层存储，成功后使缓存失效。
func (s *Store) Append(ctx context.Context, event saga.Event) (saga.Envelope, error) {
	env, err := s.inner.Append(ctx, event)
	if err != nil {
		return saga.Envelope{}, err
	}
	s.mu.Lock()
	s.version++
	s.cache.Delete(logCacheKey)
	s.mu.Unlock()
	return env, nil
}

// Iterate 返回缓存的快照，未命中时回源并回填。回填前重新核对 version：
// 若回源期间发生了并发 Append/Populate，快照已经陈旧，直接返回，不写入
// 缓存——避免一次晚完成的读把早先的陈旧快照覆盖在一次后续写入之后。
func (s *Store) Iterate(ctx context.Context) ([]saga.Envelope, error) {
	s.mu.Lock()
	if cached, ok := s.cache.Get(logCacheKey); ok {
		s.mu.Unlock()
		out := make([]saga.Envelope, len(cached))
		copy(out, cached)
		return out, nil
	}
	versionAtRead := s.version
	s.mu.Unlock()

	envelopes, err := s.inner.Iterate(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.version == versionAtRead {
		s.cache.Set(logCacheKey, envelopes)
	}
	s.mu.Unlock()
	s.log.Debug(ctx, "event log cache populated", logging.Int("count", len(envelopes)))
	return envelopes, nil
}

// Populate 委托给底层存储并使缓存失效（只在 play() 之前合法，见 saga 包契约）。
func (s *Store) Populate(ctx context.Context, envelopes []saga.Envelope) error {
	if err := s.inner.Populate(ctx, envelopes); err != nil {
		return err
	}
	s.mu.Lock()
	s.version++
	s.cache.Delete(logCacheKey)
	s.mu.Unlock()
	return nil
}

// Stats exposes the underlying cache's hit/miss counters for observability.
func (s *Store) Stats() cache.CacheStats {
	return s.cache.Stats()
}

var _ saga.EventStore = (*Store)(nil)
