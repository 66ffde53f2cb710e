package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"okitegami/backend/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	store, err := NewStoreWithDialector(sqlite.Open(dsn), PoolConfig{MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func TestStore_LetterLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	box := &domain.Letter{
		Category: domain.CategoryPostBox,
		Lat:      35.68,
		Lng:      139.76,
		Title:    "box",
		Secret:   strPtr("sakura"),
		OwnerID:  strPtr("owner"),
	}
	require.NoError(t, store.CreateLetter(ctx, box))

	got, err := store.GetLetter(ctx, box.ID)
	require.NoError(t, err)
	assert.Equal(t, "sakura", *got.Secret)

	got.Title = "renamed"
	got.Secret = nil
	got.Category = domain.CategoryUser
	require.NoError(t, store.UpdateLetter(ctx, got))

	got, err = store.GetLetter(ctx, box.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Nil(t, got.Secret)
	assert.Equal(t, domain.CategoryPostBox, got.Category)

	reply := &domain.Letter{Category: domain.CategoryPostBoxReply, ParentID: &box.ID, OwnerID: strPtr("v")}
	require.NoError(t, store.CreateLetter(ctx, reply))
	_, err = store.InsertReceipt(ctx, &domain.ReadReceipt{LetterID: box.ID, ViewerID: "v"})
	require.NoError(t, err)

	removed, err := store.DeleteLetter(ctx, box.ID)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	_, err = store.GetLetter(ctx, reply.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	has, err := store.HasReceipt(ctx, box.ID, "v")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = store.DeleteLetter(ctx, box.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_ListLettersAndStatistics(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.CreateLetter(ctx, &domain.Letter{Category: domain.CategoryUser, OwnerID: strPtr("u1"), CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, store.CreateLetter(ctx, &domain.Letter{Category: domain.CategoryUser, OwnerID: strPtr("u1"), CreatedAt: now.Add(-72 * time.Hour)}))
	require.NoError(t, store.CreateLetter(ctx, &domain.Letter{Category: domain.CategoryOfficial, CreatedAt: now.Add(-100 * time.Hour)}))

	cutoff := now.Add(-48 * time.Hour)
	archived, total, err := store.ListLetters(ctx, domain.LetterFilter{
		Categories:    []domain.LetterCategory{domain.CategoryUser},
		OwnerID:       strPtr("u1"),
		CreatedBefore: &cutoff,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, archived, 1)

	onMap, total, err := store.ListLetters(ctx, domain.LetterFilter{ActiveAfter: &cutoff})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, onMap, 2)
	assert.Equal(t, domain.CategoryOfficial, onMap[1].Category)

	page, total, err := store.ListLetters(ctx, domain.LetterFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt))

	stats, err := store.GetStatistics(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalLetters)
	assert.Equal(t, 2, stats.LettersByCategory[domain.CategoryUser])
	assert.Equal(t, 1, stats.ActiveUserLetters)
	assert.Equal(t, 1, stats.ArchivedLetters)
}

func TestStore_ReceiptUpsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created, err := store.InsertReceipt(ctx, &domain.ReadReceipt{LetterID: "l", ViewerID: "v"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.InsertReceipt(ctx, &domain.ReadReceipt{LetterID: "l", ViewerID: "v"})
	require.NoError(t, err)
	assert.False(t, created)

	n, err := store.DeleteReceiptsByLetter(ctx, "l")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_AwardUpserts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ok, err := store.InsertAwardIfAbsent(ctx, &domain.CollectibleAward{UserID: "u", AwardKey: domain.ReadAwardKey("l"), CollectibleID: "c", Trigger: domain.TriggerRead})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.InsertAwardIfAbsent(ctx, &domain.CollectibleAward{UserID: "u", AwardKey: domain.ReadAwardKey("l"), CollectibleID: "c", Trigger: domain.TriggerRead})
	require.NoError(t, err)
	assert.False(t, ok)

	for i := 1; i <= 3; i++ {
		a, err := store.IncrementAward(ctx, &domain.CollectibleAward{UserID: "u", AwardKey: domain.DepositAwardKey("c2"), CollectibleID: "c2", Trigger: domain.TriggerDeposit})
		require.NoError(t, err)
		assert.Equal(t, i, a.Count)
	}

	awards, err := store.ListAwardsByUser(ctx, "u")
	require.NoError(t, err)
	assert.Len(t, awards, 2)
}

func TestStore_Users(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	user := &domain.User{Email: "a@example.com", Nickname: "Alice", PasswordHash: "x", IsActive: true}
	require.NoError(t, store.CreateUser(ctx, user))

	err := store.CreateUser(ctx, &domain.User{Email: "b@example.com", Nickname: "ALICE"})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	email, err := store.EmailForNickname(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", email)

	got, err := store.GetUserByEmail(ctx, "A@Example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	require.NoError(t, store.UpdateLastLogin(ctx, user.ID, time.Now()))
	got, err = store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastLoginAt)

	users, total, err := store.ListUsers(ctx, 1, 10, "ali")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, users, 1)
}

func TestStore_CountReplies(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	day := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateLetter(ctx, &domain.Letter{
		Category: domain.CategoryPostBoxReply, ParentID: strPtr("pb"), OwnerID: strPtr("v"), CreatedAt: day.Add(2 * time.Hour),
	}))

	n, err := store.CountReplies(ctx, "pb", "v", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.CountReplies(ctx, "pb", "v", day.Add(24*time.Hour), day.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
