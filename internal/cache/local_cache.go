package cache

import (
	"context"
	"sync"
	"time"
)

// LocalCache 进程内 TTL 缓存
//
// 用于收藏品定义这类读多写少、可容忍短暂过期的数据。
// 超过 maxSize 时淘汰最早过期的条目。
type LocalCache[V any] struct {
	mu      sync.RWMutex
	data    map[string]cacheEntry[V]
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存，maxSize <= 0 表示不限制条目数
func NewLocalCache[V any](maxSize int, ttl time.Duration) *LocalCache[V] {
	return &LocalCache[V]{
		data:    make(map[string]cacheEntry[V]),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get 获取缓存值，过期视为不存在
func (c *LocalCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if c.now().After(entry.expiresAt) {
		c.Delete(key)
		return zero, false
	}
	return entry.value, true
}

// Set 设置缓存值，ttl 为 0 时使用默认过期时间
func (c *LocalCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && c.maxSize > 0 && len(c.data) >= c.maxSize {
		c.evictLocked()
	}
	c.data[key] = cacheEntry[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// Delete 删除缓存值
func (c *LocalCache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Clear 清空所有缓存
func (c *LocalCache[V]) Clear() {
	c.mu.Lock()
	c.data = make(map[string]cacheEntry[V])
	c.mu.Unlock()
}

// Len 当前条目数（含未清理的过期条目）
func (c *LocalCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// evictLocked 淘汰最早过期的条目
func (c *LocalCache[V]) evictLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for k, e := range c.data {
		if !found || e.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt, found = k, e.expiresAt, true
		}
	}
	if found {
		delete(c.data, oldestKey)
	}
}

// Cleanup 删除所有过期条目，返回删除数量
func (c *LocalCache[V]) Cleanup() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.data {
		if now.After(e.expiresAt) {
			delete(c.data, k)
			removed++
		}
	}
	return removed
}

// Run 定期清理过期条目，直到 ctx 结束
func (c *LocalCache[V]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}
