package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OwnerLocker 按用户串行化对话处理
type OwnerLocker interface {
	Lock(ctx context.Context, owner int64) (unlock func(), err error)
}

// NoopLocker 不做串行化
type NoopLocker struct{}

func (NoopLocker) Lock(ctx context.Context, owner int64) (func(), error) {
	return func() {}, nil
}

// keyedMutex 引用计数的单用户互斥锁
type keyedMutex struct {
	mu   sync.Mutex
	refs int
}

// MemoryLocker 进程内按用户加锁
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[int64]*keyedMutex
}

// NewMemoryLocker 创建进程内用户锁
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[int64]*keyedMutex),
	}
}

func (l *MemoryLocker) Lock(ctx context.Context, owner int64) (func(), error) {
	l.mu.Lock()
	km, ok := l.locks[owner]
	if !ok {
		km = &keyedMutex{}
		l.locks[owner] = km
	}
	km.refs++
	l.mu.Unlock()

	km.mu.Lock()

	return func() {
		km.mu.Unlock()

		l.mu.Lock()
		km.refs--
		if km.refs == 0 {
			delete(l.locks, owner)
		}
		l.mu.Unlock()
	}, nil
}

// RedisLocker 基于 redsync 的跨实例用户锁
type RedisLocker struct {
	rs     *redsync.Redsync
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLocker 创建分布式用户锁
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		ttl:    ttl,
		logger: logger,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, owner int64) (func(), error) {
	mutex := l.rs.NewMutex(fmt.Sprintf("storebot:lock:owner:%d", owner), redsync.WithExpiry(l.ttl))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("获取用户锁失败: %w", err)
	}

	return func() {
		if _, err := mutex.Unlock(); err != nil {
			l.logger.Warn("释放用户锁失败",
				zap.Int64("userId", owner),
				zap.Error(err))
		}
	}, nil
}
