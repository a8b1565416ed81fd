package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Locker 非阻塞互斥锁，用于认领单个订阅的扣款。
// 未获得锁时 acquired 为 false，err 为 nil。
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// 仅当值仍是自己的令牌时才删除，避免释放别人续上的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 基于 SET NX PX 的锁，多个 worker 进程共享
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// 原 ctx 可能已取消
			_ = releaseScript.Run(context.Background(), l.client, []string{key}, token).Err()
		})
	}

	return release, true, nil
}

// MemoryLocker 单进程锁，用于 dry-run、命令行工具和测试
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryEntry
	now   func() time.Time
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

func (l *MemoryLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, held := l.locks[key]; held && (entry.expiresAt.IsZero() || now.Before(entry.expiresAt)) {
		return nil, false, nil
	}

	entry := memoryEntry{token: uuid.NewString()}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	l.locks[key] = entry

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.locks[key]; ok && cur.token == entry.token {
				delete(l.locks, key)
			}
		})
	}

	return release, true, nil
}

// Held 锁当前是否被持有
func (l *MemoryLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[key]
	return ok && (entry.expiresAt.IsZero() || l.now().Before(entry.expiresAt))
}
