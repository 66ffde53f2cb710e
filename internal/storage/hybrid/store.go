package hybrid

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/storage"
	"okitegami/backend/internal/storage/postgres"
	"okitegami/backend/internal/storage/redis"
)

const (
	letterTTL      = 10 * time.Minute
	collectibleTTL = time.Hour
)

// Store 混合存储实现：SQL 为权威数据源，Redis 缓存单条信件和收藏品定义
//
// 列表、计数与所有写操作直接访问 SQL；写操作后删除相应缓存。
type Store struct {
	*postgres.Store
	cache *redis.Cache
	redis *redis.Client
	log   *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore 组合 SQL 存储与 Redis 缓存
func NewStore(sql *postgres.Store, client *redis.Client, log *zap.Logger) *Store {
	return &Store{
		Store: sql,
		cache: redis.NewCache(client),
		redis: client,
		log:   log,
	}
}

func (s *Store) warn(msg string, err error) {
	s.log.Warn(msg, zap.Error(err))
}

// ========== Letter Repository ==========

// GetLetter 先查 Redis，未命中再查 SQL 并回填
func (s *Store) GetLetter(ctx context.Context, id string) (*domain.Letter, error) {
	if l, err := s.cache.GetCachedLetter(ctx, id); err == nil {
		return l, nil
	}

	l, err := s.Store.GetLetter(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.CacheLetter(ctx, l, letterTTL); err != nil {
		s.warn("failed to cache letter", err)
	}
	return l, nil
}

// UpdateLetter 更新后删除缓存
func (s *Store) UpdateLetter(ctx context.Context, letter *domain.Letter) error {
	if err := s.Store.UpdateLetter(ctx, letter); err != nil {
		return err
	}
	if err := s.cache.DeleteCachedLetters(ctx, letter.ID); err != nil {
		s.warn("failed to invalidate letter cache", err)
	}
	return nil
}

// DeleteLetter 删除后清理信件与回信的缓存
func (s *Store) DeleteLetter(ctx context.Context, id string) ([]*domain.Letter, error) {
	removed, err := s.Store.DeleteLetter(ctx, id)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(removed))
	for _, l := range removed {
		ids = append(ids, l.ID)
	}
	if err := s.cache.DeleteCachedLetters(ctx, ids...); err != nil {
		s.warn("failed to invalidate letter cache", err)
	}
	return removed, nil
}

// ========== Collectible Repository ==========

// GetCollectible 先查 Redis，未命中再查 SQL 并回填
func (s *Store) GetCollectible(ctx context.Context, id string) (*domain.Collectible, error) {
	if c, err := s.cache.GetCachedCollectible(ctx, id); err == nil {
		return c, nil
	}

	c, err := s.Store.GetCollectible(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.CacheCollectible(ctx, c, collectibleTTL); err != nil {
		s.warn("failed to cache collectible", err)
	}
	return c, nil
}

// UpdateCollectible 更新后删除缓存
func (s *Store) UpdateCollectible(ctx context.Context, c *domain.Collectible) error {
	if err := s.Store.UpdateCollectible(ctx, c); err != nil {
		return err
	}
	if err := s.cache.DeleteCachedCollectible(ctx, c.ID); err != nil {
		s.warn("failed to invalidate collectible cache", err)
	}
	return nil
}

// DeleteCollectible 删除后清理缓存
func (s *Store) DeleteCollectible(ctx context.Context, id string) error {
	if err := s.Store.DeleteCollectible(ctx, id); err != nil {
		return err
	}
	if err := s.cache.DeleteCachedCollectible(ctx, id); err != nil {
		s.warn("failed to invalidate collectible cache", err)
	}
	return nil
}

// Health 同时检查 SQL 与 Redis
func (s *Store) Health(ctx context.Context) error {
	if err := s.Store.Health(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := s.redis.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close 关闭 SQL 连接（Redis 客户端由调用方关闭）
func (s *Store) Close() error {
	return s.Store.Close()
}
