package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/monitoring"
	"okitegami/backend/internal/storage"
)

// ReceiptLedger 已读记录
//
// 登录用户的记录保存在服务端；匿名访问者的记录只保存在客户端，
// 由请求携带已解锁的信件 ID 集合。
type ReceiptLedger struct {
	repo    storage.ReceiptRepository
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewReceiptLedger 创建已读记录服务
func NewReceiptLedger(repo storage.ReceiptRepository, metrics *monitoring.Metrics, log *zap.Logger) *ReceiptLedger {
	return &ReceiptLedger{repo: repo, metrics: metrics, log: log.Named("receipts")}
}

// HasRead 判断访问者是否已经解锁过该信件
func (l *ReceiptLedger) HasRead(ctx context.Context, letterID string, viewer domain.Viewer, anonymousSeen []string) (bool, error) {
	if viewer.Anonymous() {
		for _, id := range anonymousSeen {
			if id == letterID {
				return true, nil
			}
		}
		return false, nil
	}
	return l.repo.HasReceipt(ctx, letterID, viewer.ID)
}

// RecordRead 记录已读，返回是否新增了记录
//
// 所有者和匿名访问者不写入服务端；重复记录由唯一约束去重。
func (l *ReceiptLedger) RecordRead(ctx context.Context, letter *domain.Letter, viewer domain.Viewer) (bool, error) {
	if viewer.Anonymous() || viewer.IsOwner(letter) {
		return false, nil
	}

	inserted, err := l.repo.InsertReceipt(ctx, &domain.ReadReceipt{
		ID:       uuid.NewString(),
		LetterID: letter.ID,
		ViewerID: viewer.ID,
	})
	if err != nil {
		return false, err
	}
	if inserted {
		l.metrics.RecordReceipt()
		l.log.Debug("Read receipt recorded", zap.String("letter_id", letter.ID), zap.String("viewer_id", viewer.ID))
	}
	return inserted, nil
}

// Invalidate 删除信件的全部已读记录（暗号变更且开启作废时）
func (l *ReceiptLedger) Invalidate(ctx context.Context, letterID string) (int, error) {
	n, err := l.repo.DeleteReceiptsByLetter(ctx, letterID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.log.Info("Read receipts invalidated", zap.String("letter_id", letterID), zap.Int("count", n))
	}
	return n, nil
}
