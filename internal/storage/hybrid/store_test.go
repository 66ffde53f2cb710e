package hybrid

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"

	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/storage/postgres"
	"okitegami/backend/internal/storage/redis"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	sql, err := postgres.NewStoreWithDialector(sqlite.Open("file:hybrid?mode=memory&cache=shared"), postgres.PoolConfig{MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sql.Close() })

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewStore(sql, redis.NewFromClient(rdb, zap.NewNop()), zap.NewNop()), mr
}

func TestHybridStore_LetterCache(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	letter := &domain.Letter{Category: domain.CategoryOfficial, Title: "first"}
	require.NoError(t, store.CreateLetter(ctx, letter))

	got, err := store.GetLetter(ctx, letter.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)
	assert.True(t, mr.Exists("letter:"+letter.ID))

	got.Title = "second"
	require.NoError(t, store.UpdateLetter(ctx, got))
	assert.False(t, mr.Exists("letter:"+letter.ID))

	got, err = store.GetLetter(ctx, letter.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Title)

	_, err = store.DeleteLetter(ctx, letter.ID)
	require.NoError(t, err)
	assert.False(t, mr.Exists("letter:"+letter.ID))

	_, err = store.GetLetter(ctx, letter.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestHybridStore_Health(t *testing.T) {
	store, mr := newTestStore(t)
	require.NoError(t, store.Health(context.Background()))

	mr.Close()
	assert.Error(t, store.Health(context.Background()))
}
