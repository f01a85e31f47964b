package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/supportbot/storebot-go/internal/model"
)

// ContextStore 会话上下文存储驱动
type ContextStore interface {
	// Get 读取上下文，不存在时 ok 为 false
	Get(ctx context.Context, owner int64) (conv model.ConversationContext, ok bool, err error)
	// Update 原子地读-改-写单个用户的上下文，不存在时先以 new 阶段创建
	Update(ctx context.Context, owner int64, fn func(*model.ConversationContext)) (model.ConversationContext, error)
	// Sweep 删除 lastActivity 早于 cutoff 的上下文，返回删除数量
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
	// Len 当前上下文数量
	Len(ctx context.Context) (int, error)
}

// memoryEntry 单个用户的上下文，独立加锁
type memoryEntry struct {
	mu      sync.Mutex
	conv    model.ConversationContext
	evicted bool
}

// MemoryContextStore 进程内上下文存储
type MemoryContextStore struct {
	mu      sync.RWMutex
	entries map[int64]*memoryEntry
}

// NewMemoryContextStore 创建进程内上下文存储
func NewMemoryContextStore() *MemoryContextStore {
	return &MemoryContextStore{
		entries: make(map[int64]*memoryEntry),
	}
}

func (s *MemoryContextStore) Get(ctx context.Context, owner int64) (model.ConversationContext, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[owner]
	s.mu.RUnlock()
	if !ok {
		return model.ConversationContext{}, false, nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.evicted {
		return model.ConversationContext{}, false, nil
	}
	return entry.conv, true, nil
}

func (s *MemoryContextStore) Update(ctx context.Context, owner int64, fn func(*model.ConversationContext)) (model.ConversationContext, error) {
	for {
		entry := s.entry(owner)

		entry.mu.Lock()
		if entry.evicted {
			// 与 Sweep 竞争，条目已被删除，重新获取
			entry.mu.Unlock()
			continue
		}
		fn(&entry.conv)
		conv := entry.conv
		entry.mu.Unlock()
		return conv, nil
	}
}

// entry 获取或创建用户条目
func (s *MemoryContextStore) entry(owner int64) *memoryEntry {
	s.mu.RLock()
	entry, ok := s.entries[owner]
	s.mu.RUnlock()
	if ok {
		return entry
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[owner]; ok {
		return entry
	}
	entry = &memoryEntry{conv: model.NewConversationContext(owner)}
	s.entries[owner] = entry
	return entry
}

func (s *MemoryContextStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for owner, entry := range s.entries {
		entry.mu.Lock()
		if entry.conv.LastActivity.Before(cutoff) {
			entry.evicted = true
			delete(s.entries, owner)
			removed++
		}
		entry.mu.Unlock()
	}
	return removed, nil
}

func (s *MemoryContextStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

const (
	contextKeyPrefix   = "storebot:ctx:"
	redisUpdateRetries = 5
)

// RedisContextStore 基于 Redis 的上下文存储，键 TTL 即空闲阈值
type RedisContextStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisContextStore 创建 Redis 上下文存储
func NewRedisContextStore(client *redis.Client, maxIdle time.Duration) *RedisContextStore {
	return &RedisContextStore{
		client: client,
		ttl:    maxIdle,
	}
}

func (s *RedisContextStore) Get(ctx context.Context, owner int64) (model.ConversationContext, bool, error) {
	val, err := s.client.Get(ctx, s.key(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.ConversationContext{}, false, nil
	}
	if err != nil {
		return model.ConversationContext{}, false, fmt.Errorf("读取上下文失败: %w", err)
	}

	var conv model.ConversationContext
	if err := json.Unmarshal(val, &conv); err != nil {
		return model.ConversationContext{}, false, fmt.Errorf("解析上下文失败: %w", err)
	}
	return conv, true, nil
}

func (s *RedisContextStore) Update(ctx context.Context, owner int64, fn func(*model.ConversationContext)) (model.ConversationContext, error) {
	key := s.key(owner)
	var conv model.ConversationContext

	txf := func(tx *redis.Tx) error {
		conv = model.NewConversationContext(owner)
		val, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			if err := json.Unmarshal(val, &conv); err != nil {
				return err
			}
		}

		fn(&conv)

		newVal, err := json.Marshal(conv)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < redisUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return conv, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return model.ConversationContext{}, fmt.Errorf("更新上下文失败: %w", err)
	}
	return model.ConversationContext{}, fmt.Errorf("更新上下文失败: 重试 %d 次仍冲突", redisUpdateRetries)
}

// Sweep 键由 TTL 自动过期，无需主动清理
func (s *RedisContextStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func (s *RedisContextStore) Len(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, contextKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("统计上下文失败: %w", err)
	}
	return count, nil
}

func (s *RedisContextStore) key(owner int64) string {
	return contextKeyPrefix + strconv.FormatInt(owner, 10)
}
