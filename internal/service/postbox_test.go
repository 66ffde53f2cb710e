package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okitegami/backend/internal/domain"
)

var reader = domain.Viewer{ID: "reader-2", Email: "reader@example.com"}

func TestDayBounds(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 2024-04-01 16:30 UTC 是东京 4 月 2 日 01:30
	start, end := dayBounds(time.Date(2024, 4, 1, 16, 30, 0, 0, time.UTC), loc)
	assert.Equal(t, time.Date(2024, 4, 1, 15, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 4, 2, 15, 0, 0, 0, time.UTC), end)
}

func TestPostBoxService_DailyLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	box := f.place(t, owner, domain.CategoryPostBox, origin, nil)
	pos := at(north(origin, 10))
	in := DepositInput{Title: "お返事", Pages: []string{"ありがとう"}}

	result, err := f.postbox.Deposit(ctx, visitor, box.ID, pos, in)
	require.NoError(t, err)
	reply := result.Reply
	assert.Equal(t, domain.CategoryPostBoxReply, reply.Category)
	assert.Equal(t, box.ID, *reply.ParentID)
	assert.Equal(t, box.Coordinates(), reply.Coordinates())
	assert.Nil(t, result.Award)

	_, err = f.postbox.Deposit(ctx, visitor, box.ID, pos, in)
	assert.ErrorIs(t, err, domain.ErrDailyDepositLimit)

	// 其他访问者不受影响
	_, err = f.postbox.Deposit(ctx, reader, box.ID, pos, in)
	require.NoError(t, err)

	// 东京时间 23:59 仍是同一天
	f.advance(11*time.Hour + 59*time.Minute)
	_, err = f.postbox.Deposit(ctx, visitor, box.ID, pos, in)
	assert.ErrorIs(t, err, domain.ErrDailyDepositLimit)

	f.advance(time.Minute)
	_, err = f.postbox.Deposit(ctx, visitor, box.ID, pos, in)
	require.NoError(t, err)
}

func TestPostBoxService_DepositAward(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stamp := f.insertCollectible(t)

	box, err := f.letters.Place(ctx, admin, PlaceLetterInput{
		Category:      domain.CategoryPostBox,
		Position:      origin,
		Title:         "記念ポスト",
		Pages:         []string{"投函してね"},
		CollectibleID: &stamp.ID,
	})
	require.NoError(t, err)
	pos := at(north(origin, 10))

	for day := 0; day < 2; day++ {
		result, err := f.postbox.Deposit(ctx, visitor, box.ID, pos, DepositInput{
			Title: "投函",
			Pages: []string{"今日も来ました"},
			Image: &ImageUpload{Data: pngData},
		})
		require.NoError(t, err)
		require.NotNil(t, result.Award)
		assert.True(t, result.Award.Granted)
		assert.Equal(t, day+1, result.Award.Award.Count)
		assert.NotEmpty(t, result.Reply.ImagePath)
		f.advance(24 * time.Hour)
	}
}

func TestPostBoxService_DepositRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	box := f.place(t, owner, domain.CategoryPostBox, origin, nil)
	letter := f.place(t, owner, domain.CategoryUser, north(origin, 200), nil)
	in := DepositInput{Title: "お返事", Pages: []string{"本文"}}

	_, err := f.postbox.Deposit(ctx, stranger, box.ID, at(origin), in)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)

	_, err = f.postbox.Deposit(ctx, visitor, box.ID, at(north(origin, 60)), in)
	assert.ErrorIs(t, err, domain.ErrNotReachable)

	_, err = f.postbox.Deposit(ctx, visitor, letter.ID, at(north(origin, 200)), in)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "postboxId", ve.Field)

	_, err = f.postbox.Deposit(ctx, visitor, "missing", at(origin), in)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.postbox.Deposit(ctx, visitor, box.ID, at(origin), DepositInput{Title: "", Pages: []string{"本文"}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	replies, err := f.postbox.ListReplies(ctx, owner, box.ID)
	require.NoError(t, err)
	assert.Empty(t, replies)
}

func TestPostBoxService_Replies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	box := f.place(t, owner, domain.CategoryPostBox, origin, nil)
	pos := at(north(origin, 10))

	mine, err := f.postbox.Deposit(ctx, visitor, box.ID, pos, DepositInput{Title: "一通目", Pages: []string{"本文"}})
	require.NoError(t, err)
	theirs, err := f.postbox.Deposit(ctx, reader, box.ID, pos, DepositInput{Title: "二通目", Pages: []string{"本文"}})
	require.NoError(t, err)

	t.Run("邮筒所有者看到全部回信", func(t *testing.T) {
		replies, err := f.postbox.ListReplies(ctx, owner, box.ID)
		require.NoError(t, err)
		assert.Len(t, replies, 2)

		replies, err = f.postbox.ListReplies(ctx, admin, box.ID)
		require.NoError(t, err)
		assert.Len(t, replies, 2)
	})

	t.Run("投递者只看到自己的回信", func(t *testing.T) {
		replies, err := f.postbox.ListReplies(ctx, visitor, box.ID)
		require.NoError(t, err)
		require.Len(t, replies, 1)
		assert.Equal(t, mine.Reply.ID, replies[0].ID)

		_, err = f.postbox.ListReplies(ctx, stranger, box.ID)
		assert.ErrorIs(t, err, domain.ErrSessionExpired)
	})

	t.Run("回信不在地图上", func(t *testing.T) {
		_, err := f.letters.Open(ctx, visitor, mine.Reply.ID, pos, nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		items, err := f.letters.Nearby(ctx, visitor, pos, nil)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, box.ID, items[0].ID)
	})

	t.Run("删除回信", func(t *testing.T) {
		err := f.postbox.DeleteReply(ctx, visitor, theirs.Reply.ID)
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)

		err = f.postbox.DeleteReply(ctx, visitor, box.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, f.postbox.DeleteReply(ctx, owner, theirs.Reply.ID))
		require.NoError(t, f.postbox.DeleteReply(ctx, visitor, mine.Reply.ID))

		replies, err := f.postbox.ListReplies(ctx, owner, box.ID)
		require.NoError(t, err)
		assert.Empty(t, replies)
	})

	t.Run("删除邮筒连带删除回信", func(t *testing.T) {
		reply, err := f.postbox.Deposit(ctx, visitor, box.ID, pos, DepositInput{Title: "三通目", Pages: []string{"本文"}})
		require.NoError(t, err)

		require.NoError(t, f.letters.Delete(ctx, owner, box.ID))
		_, err = f.store.GetLetter(ctx, reply.Reply.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
