package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiptLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	secret := "sakura"
	l := f.place(t, owner, "user", origin, &secret)

	t.Run("重复记录只产生一条已读记录", func(t *testing.T) {
		inserted, err := f.receipts.RecordRead(ctx, l, visitor)
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = f.receipts.RecordRead(ctx, l, visitor)
		require.NoError(t, err)
		assert.False(t, inserted)

		stats, err := f.store.GetStatistics(ctx, f.now)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.TotalReceipts)

		read, err := f.receipts.HasRead(ctx, l.ID, visitor, nil)
		require.NoError(t, err)
		assert.True(t, read)
	})

	t.Run("所有者不写入已读记录", func(t *testing.T) {
		inserted, err := f.receipts.RecordRead(ctx, l, owner)
		require.NoError(t, err)
		assert.False(t, inserted)

		read, err := f.receipts.HasRead(ctx, l.ID, owner, nil)
		require.NoError(t, err)
		assert.False(t, read)
	})

	t.Run("匿名访问者使用客户端集合", func(t *testing.T) {
		inserted, err := f.receipts.RecordRead(ctx, l, stranger)
		require.NoError(t, err)
		assert.False(t, inserted)

		read, err := f.receipts.HasRead(ctx, l.ID, stranger, []string{"other", l.ID})
		require.NoError(t, err)
		assert.True(t, read)

		read, err = f.receipts.HasRead(ctx, l.ID, stranger, nil)
		require.NoError(t, err)
		assert.False(t, read)
	})

	t.Run("作废已读记录", func(t *testing.T) {
		n, err := f.receipts.Invalidate(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		read, err := f.receipts.HasRead(ctx, l.ID, visitor, nil)
		require.NoError(t, err)
		assert.False(t, read)
	})
}

func TestAwardService_ReadAwardOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stamp := f.insertCollectible(t)

	l := f.place(t, admin, "official", origin, nil)
	l.CollectibleID = &stamp.ID

	first, err := f.awards.AwardForRead(ctx, visitor, l)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, first.Granted)
	assert.Equal(t, 1, first.Award.Count)
	require.NotNil(t, first.Collectible)
	assert.Equal(t, "桜の切手", first.Collectible.Name)

	second, err := f.awards.AwardForRead(ctx, visitor, l)
	require.NoError(t, err)
	assert.False(t, second.Granted)

	awards, err := f.awards.ListAwards(ctx, visitor.ID)
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.Equal(t, 1, awards[0].Count)
	assert.Equal(t, l.ID, awards[0].SourceLetterID)
	require.NotNil(t, awards[0].Collectible)
}

func TestAwardService_NoCollectibleOrAnonymous(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stamp := f.insertCollectible(t)
	l := f.place(t, admin, "official", origin, nil)

	result, err := f.awards.AwardForRead(ctx, visitor, l)
	require.NoError(t, err)
	assert.Nil(t, result)

	l.CollectibleID = &stamp.ID
	result, err = f.awards.AwardForRead(ctx, stranger, l)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestAwardService_DepositAccumulates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stamp := f.insertCollectible(t)

	boxA := f.place(t, admin, "postbox", origin, nil)
	boxB := f.place(t, admin, "postbox", north(origin, 500), nil)
	boxA.CollectibleID = &stamp.ID
	boxB.CollectibleID = &stamp.ID

	for _, box := range []string{boxA.ID, boxB.ID, boxA.ID} {
		parent := boxA
		if box == boxB.ID {
			parent = boxB
		}
		result, err := f.awards.AwardForDeposit(ctx, visitor, parent)
		require.NoError(t, err)
		assert.True(t, result.Granted)
	}

	awards, err := f.awards.ListAwards(ctx, visitor.ID)
	require.NoError(t, err)
	require.Len(t, awards, 1, "按收藏品定义累加")
	assert.Equal(t, 3, awards[0].Count)
}

func TestAwardService_DeletedCollectible(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stamp := f.insertCollectible(t)
	l := f.place(t, admin, "official", origin, nil)
	l.CollectibleID = &stamp.ID

	_, err := f.awards.AwardForRead(ctx, visitor, l)
	require.NoError(t, err)
	require.NoError(t, f.collectibles.Delete(ctx, admin, stamp.ID))

	awards, err := f.awards.ListAwards(ctx, visitor.ID)
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.Nil(t, awards[0].Collectible)
}
