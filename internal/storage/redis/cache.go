package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"okitegami/backend/internal/domain"
)

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

// EventChannel 信件变更事件的发布订阅频道
const EventChannel = "okitegami:letters:events"

// Cache 信件与收藏品定义的 Redis 缓存
type Cache struct {
	client *Client
}

// NewCache 创建缓存
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

func letterKey(id string) string {
	return fmt.Sprintf("letter:%s", id)
}

func collectibleKey(id string) string {
	return fmt.Sprintf("collectible:%s", id)
}

func (c *Cache) setJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.rdb.Set(ctx, key, data, ttl).Err()
}

func (c *Cache) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := c.client.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// ========== 信件缓存 ==========

// cachedLetter Letter 的 JSON 标签隐藏了暗号，缓存中需要保留
type cachedLetter struct {
	domain.Letter
	Secret *string `json:"secret,omitempty"`
}

// CacheLetter 缓存信件
func (c *Cache) CacheLetter(ctx context.Context, l *domain.Letter, ttl time.Duration) error {
	return c.setJSON(ctx, letterKey(l.ID), cachedLetter{Letter: *l, Secret: l.Secret}, ttl)
}

// GetCachedLetter 获取缓存的信件
func (c *Cache) GetCachedLetter(ctx context.Context, id string) (*domain.Letter, error) {
	var cl cachedLetter
	if err := c.getJSON(ctx, letterKey(id), &cl); err != nil {
		return nil, err
	}
	l := cl.Letter
	l.Secret = cl.Secret
	return &l, nil
}

// DeleteCachedLetters 删除信件缓存
func (c *Cache) DeleteCachedLetters(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, letterKey(id))
	}
	return c.client.rdb.Del(ctx, keys...).Err()
}

// ========== 收藏品定义缓存 ==========

// CacheCollectible 缓存收藏品定义
func (c *Cache) CacheCollectible(ctx context.Context, col *domain.Collectible, ttl time.Duration) error {
	return c.setJSON(ctx, collectibleKey(col.ID), col, ttl)
}

// GetCachedCollectible 获取缓存的收藏品定义
func (c *Cache) GetCachedCollectible(ctx context.Context, id string) (*domain.Collectible, error) {
	var col domain.Collectible
	if err := c.getJSON(ctx, collectibleKey(id), &col); err != nil {
		return nil, err
	}
	return &col, nil
}

// DeleteCachedCollectible 删除收藏品定义缓存
func (c *Cache) DeleteCachedCollectible(ctx context.Context, id string) error {
	return c.client.rdb.Del(ctx, collectibleKey(id)).Err()
}

// ========== 发布订阅 ==========

// Publish 向其他实例广播信件事件
func (c *Cache) Publish(ctx context.Context, payload []byte) error {
	return c.client.rdb.Publish(ctx, EventChannel, payload).Err()
}

// Subscribe 订阅信件事件
func (c *Cache) Subscribe(ctx context.Context) *goredis.PubSub {
	return c.client.rdb.Subscribe(ctx, EventChannel)
}
