package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCache(maxSize int, ttl time.Duration) (*LocalCache[string], *time.Time) {
	c := NewLocalCache[string](maxSize, ttl)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestLocalCacheGetSet(t *testing.T) {
	c, now := newTestCache(0, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", "1", 0)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	*now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok, "过期条目不应返回")
	assert.Equal(t, 0, c.Len())
}

func TestLocalCacheEvictsEarliestExpiry(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)

	c.Set("short", "1", time.Second)
	c.Set("long", "2", time.Hour)
	c.Set("new", "3", 0)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("long")
	assert.True(t, ok)

	// 覆盖已有键不触发淘汰
	c.Set("long", "4", 0)
	assert.Equal(t, 2, c.Len())
}

func TestLocalCacheCleanup(t *testing.T) {
	c, now := newTestCache(0, time.Minute)
	c.Set("a", "1", time.Second)
	c.Set("b", "2", time.Hour)

	*now = now.Add(time.Minute)
	assert.Equal(t, 1, c.Cleanup())
	assert.Equal(t, 1, c.Len())

	c.Delete("b")
	c.Set("c", "3", 0)
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
