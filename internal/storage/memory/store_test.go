package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/storage"
)

func strPtr(s string) *string { return &s }

func TestMemoryStore_LetterOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	letter := &domain.Letter{
		Category: domain.CategoryPostBox,
		Lat:      35.0,
		Lng:      139.0,
		Title:    "post box",
		OwnerID:  strPtr("owner-1"),
	}
	require.NoError(t, store.CreateLetter(ctx, letter))
	require.NotEmpty(t, letter.ID)

	got, err := store.GetLetter(ctx, letter.ID)
	require.NoError(t, err)
	assert.Equal(t, "post box", got.Title)

	// 返回副本，修改不影响存储
	got.Title = "changed"
	again, _ := store.GetLetter(ctx, letter.ID)
	assert.Equal(t, "post box", again.Title)

	// 类别与所有者不可修改
	got.Category = domain.CategoryUser
	got.OwnerID = strPtr("intruder")
	require.NoError(t, store.UpdateLetter(ctx, got))
	again, _ = store.GetLetter(ctx, letter.ID)
	assert.Equal(t, "changed", again.Title)
	assert.Equal(t, domain.CategoryPostBox, again.Category)
	assert.Equal(t, "owner-1", *again.OwnerID)

	reply := &domain.Letter{Category: domain.CategoryPostBoxReply, ParentID: &letter.ID, OwnerID: strPtr("v")}
	require.NoError(t, store.CreateLetter(ctx, reply))
	_, err = store.InsertReceipt(ctx, &domain.ReadReceipt{LetterID: letter.ID, ViewerID: "v"})
	require.NoError(t, err)

	removed, err := store.DeleteLetter(ctx, letter.ID)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	_, err = store.GetLetter(ctx, reply.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	has, _ := store.HasReceipt(ctx, letter.ID, "v")
	assert.False(t, has)
}

func TestMemoryStore_ListLetters(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now().UTC()

	for i, c := range []domain.LetterCategory{domain.CategoryUser, domain.CategoryUser, domain.CategoryOfficial} {
		require.NoError(t, store.CreateLetter(ctx, &domain.Letter{
			Category:  c,
			OwnerID:   strPtr("u1"),
			CreatedAt: now.Add(-time.Duration(i*30) * time.Hour),
		}))
	}

	all, total, err := store.ListLetters(ctx, domain.LetterFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt))

	cutoff := now.Add(-48 * time.Hour)
	active, _, err := store.ListLetters(ctx, domain.LetterFilter{
		Categories:   []domain.LetterCategory{domain.CategoryUser},
		CreatedAfter: &cutoff,
	})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	// 已归档的 user 信件被排除，official 不受影响
	dayAgo := now.Add(-24 * time.Hour)
	onMap, _, err := store.ListLetters(ctx, domain.LetterFilter{ActiveAfter: &dayAgo})
	require.NoError(t, err)
	require.Len(t, onMap, 2)
	assert.Equal(t, domain.CategoryOfficial, onMap[1].Category)

	page, total, err := store.ListLetters(ctx, domain.LetterFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 1)
}

func TestMemoryStore_ReceiptDedup(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	created, err := store.InsertReceipt(ctx, &domain.ReadReceipt{LetterID: "l1", ViewerID: "v1"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.InsertReceipt(ctx, &domain.ReadReceipt{LetterID: "l1", ViewerID: "v1"})
	require.NoError(t, err)
	assert.False(t, created)

	stats, err := store.GetStatistics(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalReceipts)
}

func TestMemoryStore_Awards(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	read := &domain.CollectibleAward{UserID: "u", AwardKey: domain.ReadAwardKey("l1"), CollectibleID: "c1"}
	ok, err := store.InsertAwardIfAbsent(ctx, read)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.InsertAwardIfAbsent(ctx, &domain.CollectibleAward{UserID: "u", AwardKey: domain.ReadAwardKey("l1"), CollectibleID: "c1"})
	require.NoError(t, err)
	assert.False(t, ok)

	for i := 0; i < 3; i++ {
		a, err := store.IncrementAward(ctx, &domain.CollectibleAward{UserID: "u", AwardKey: domain.DepositAwardKey("c2"), CollectibleID: "c2"})
		require.NoError(t, err)
		assert.Equal(t, i+1, a.Count)
	}

	awards, err := store.ListAwardsByUser(ctx, "u")
	require.NoError(t, err)
	assert.Len(t, awards, 2)
}

func TestMemoryStore_Users(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.CreateUser(ctx, &domain.User{Email: "a@example.com", Nickname: "Alice"}))

	err := store.CreateUser(ctx, &domain.User{Email: "A@example.com", Nickname: "other"})
	assert.True(t, errors.Is(err, domain.ErrConflict))
	err = store.CreateUser(ctx, &domain.User{Email: "b@example.com", Nickname: "alice"})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	email, err := store.EmailForNickname(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", email)

	_, err = store.EmailForNickname(ctx, "nobody")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	users, total, err := store.ListUsers(ctx, 1, 10, "ali")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Alice", users[0].Nickname)
}

func TestMemoryStore_CountReplies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	day := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateLetter(ctx, &domain.Letter{
		Category: domain.CategoryPostBoxReply, ParentID: strPtr("pb"), OwnerID: strPtr("v"), CreatedAt: day.Add(time.Hour),
	}))
	require.NoError(t, store.CreateLetter(ctx, &domain.Letter{
		Category: domain.CategoryPostBoxReply, ParentID: strPtr("pb"), OwnerID: strPtr("v"), CreatedAt: day.Add(25 * time.Hour),
	}))

	n, err := store.CountReplies(ctx, "pb", "v", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.CountReplies(ctx, "pb", "other", day, day.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemoryStore_PlacementLock(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	unlock, err := store.Lock(ctx, "placement", time.Second)
	require.NoError(t, err)

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = store.Lock(timeoutCtx, "placement", time.Second)
	assert.True(t, errors.Is(err, storage.ErrLockTimeout))

	unlock()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := store.Lock(ctx, "placement", time.Second)
			if err != nil {
				return
			}
			counter++
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, counter)
}

func TestLocker_ReleasesIdleKeys(t *testing.T) {
	locker := NewLocker()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		release, err := locker.Lock(ctx, fmt.Sprintf("deposit:pb:viewer-%d", i), time.Second)
		require.NoError(t, err)
		release()
		release()
	}
	assert.Equal(t, 0, locker.size())

	release, err := locker.Lock(ctx, "deposit:pb:viewer", time.Second)
	require.NoError(t, err)

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(timeoutCtx, "deposit:pb:viewer", time.Second)
	assert.ErrorIs(t, err, storage.ErrLockTimeout)
	assert.Equal(t, 1, locker.size())

	release()
	assert.Equal(t, 0, locker.size())
}
