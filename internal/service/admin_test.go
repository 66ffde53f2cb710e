package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okitegami/backend/internal/domain"
)

func TestAdminService_RequiresAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	l := f.place(t, owner, domain.CategoryUser, origin, nil)

	_, err := f.admin.ListLetters(ctx, owner, ListLettersInput{})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = f.admin.GetLetter(ctx, owner, l.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	err = f.admin.DeleteLetter(ctx, owner, l.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = f.admin.ListUsers(ctx, visitor, ListUsersInput{})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = f.admin.GetStatistics(ctx, stranger)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestAdminService_ListLetters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	secret := "sakura"
	old := f.place(t, owner, domain.CategoryUser, origin, &secret)
	f.advance(49 * time.Hour)
	fresh := f.place(t, visitor, domain.CategoryUser, north(origin, 100), nil)
	official := f.place(t, admin, domain.CategoryOfficial, north(origin, 200), nil)

	result, err := f.admin.ListLetters(ctx, admin, ListLettersInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total, "默认不含已归档")

	result, err = f.admin.ListLetters(ctx, admin, ListLettersInput{IncludeArchived: true})
	require.NoError(t, err)
	require.Equal(t, 3, result.Total)

	byID := map[string]*AdminLetter{}
	for _, item := range result.Items {
		byID[item.ID] = item
	}
	assert.True(t, byID[old.ID].Archived)
	assert.True(t, byID[old.ID].HasSecret)
	assert.False(t, byID[fresh.ID].Archived)
	assert.Nil(t, byID[official.ID].ExpiresAt)

	result, err = f.admin.ListLetters(ctx, admin, ListLettersInput{Category: domain.CategoryOfficial})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, official.ID, result.Items[0].ID)

	result, err = f.admin.ListLetters(ctx, admin, ListLettersInput{OwnerID: visitor.ID})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, fresh.ID, result.Items[0].ID)

	result, err = f.admin.ListLetters(ctx, admin, ListLettersInput{IncludeArchived: true, Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Items, 1)
	assert.Equal(t, 2, result.TotalPages)

	_, err = f.admin.ListLetters(ctx, admin, ListLettersInput{Category: "unknown"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAdminService_ManageLetters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	official := f.place(t, admin, domain.CategoryOfficial, origin, nil)
	to := north(origin, 500)

	updated, err := f.admin.UpdateLetter(ctx, admin, official.ID, UpdateLetterInput{Position: &to})
	require.NoError(t, err)
	assert.Equal(t, to, updated.Coordinates())

	got, err := f.admin.GetLetter(ctx, admin, official.ID)
	require.NoError(t, err)
	assert.Equal(t, to, got.Coordinates())
	assert.False(t, got.Archived)

	userLetter := f.place(t, owner, domain.CategoryUser, origin, nil)
	require.NoError(t, f.admin.DeleteLetter(ctx, admin, userLetter.ID))
	_, err = f.admin.GetLetter(ctx, admin, userLetter.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdminService_UsersAndStatistics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i, nickname := range []string{"hanako", "taro", "hanamaru"} {
		require.NoError(t, f.store.CreateUser(ctx, &domain.User{
			ID:        nickname,
			Email:     nickname + "@example.com",
			Nickname:  nickname,
			IsActive:  true,
			CreatedAt: f.now.Add(time.Duration(i) * time.Minute),
		}))
	}

	users, err := f.admin.ListUsers(ctx, admin, ListUsersInput{Search: "hana"})
	require.NoError(t, err)
	assert.Equal(t, 2, users.Total)
	assert.Equal(t, "hanamaru", users.Items[0].Nickname)

	f.place(t, owner, domain.CategoryUser, origin, nil)
	f.advance(49 * time.Hour)
	f.place(t, owner, domain.CategoryUser, origin, nil)
	f.place(t, admin, domain.CategoryPostBox, north(origin, 300), nil)

	stats, err := f.admin.GetStatistics(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalUsers)
	assert.Equal(t, 3, stats.TotalLetters)
	assert.Equal(t, 1, stats.ArchivedLetters)
	assert.Equal(t, 1, stats.ActiveUserLetters)
	assert.Equal(t, 1, stats.LettersByCategory[domain.CategoryPostBox])
}
