package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"okitegami/backend/internal/storage"
)

// 只有持有者才能释放锁
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker 基于 SET NX PX 的跨实例放置锁
type Locker struct {
	client *Client
	retry  time.Duration
}

var _ storage.PlacementLocker = (*Locker)(nil)

// NewLocker 创建分布式锁
func NewLocker(client *Client) *Locker {
	return &Locker{client: client, retry: 20 * time.Millisecond}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Lock 获取锁，ttl 到期后锁自动释放
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	k := lockKey(key)

	for {
		ok, err := l.client.rdb.SetNX(ctx, k, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := releaseScript.Run(ctx, l.client.rdb, []string{k}, token).Err(); err != nil {
					l.client.log.Warn("failed to release placement lock", zap.String("key", k), zap.Error(err))
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, storage.ErrLockTimeout
		case <-time.After(l.retry):
		}
	}
}
