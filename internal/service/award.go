package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/monitoring"
	"okitegami/backend/internal/storage"
)

// CollectibleLookup 查找收藏品定义
type CollectibleLookup interface {
	Get(ctx context.Context, id string) (*domain.Collectible, error)
}

// AwardResult 一次发放的结果
type AwardResult struct {
	Award       *domain.CollectibleAward `json:"award,omitempty"`
	Collectible *domain.Collectible      `json:"collectible,omitempty"`
	// Granted 为 true 表示本次新发放或累加，客户端据此展示获得动画
	Granted bool `json:"granted"`
}

// AwardService 收藏品发放规则
type AwardService struct {
	repo         storage.AwardRepository
	collectibles CollectibleLookup
	metrics      *monitoring.Metrics
	log          *zap.Logger
}

// NewAwardService 创建收藏品发放服务
func NewAwardService(repo storage.AwardRepository, collectibles CollectibleLookup, metrics *monitoring.Metrics, log *zap.Logger) *AwardService {
	return &AwardService{repo: repo, collectibles: collectibles, metrics: metrics, log: log.Named("awards")}
}

// AwardForRead 读完携带收藏品的信件时发放，每人每封只发一次
//
// 匿名访问者或信件不携带收藏品时返回 (nil, nil)。
func (s *AwardService) AwardForRead(ctx context.Context, viewer domain.Viewer, letter *domain.Letter) (*AwardResult, error) {
	if viewer.Anonymous() || letter.CollectibleID == nil {
		return nil, nil
	}

	award := &domain.CollectibleAward{
		ID:             uuid.NewString(),
		UserID:         viewer.ID,
		AwardKey:       domain.ReadAwardKey(letter.ID),
		CollectibleID:  *letter.CollectibleID,
		SourceLetterID: letter.ID,
		Trigger:        domain.TriggerRead,
		Count:          1,
	}
	inserted, err := s.repo.InsertAwardIfAbsent(ctx, award)
	if err != nil {
		return nil, err
	}

	result := &AwardResult{Granted: inserted}
	if inserted {
		result.Award = award
		s.metrics.RecordAward(string(domain.TriggerRead))
		s.log.Info("Collectible awarded",
			zap.String("trigger", string(domain.TriggerRead)),
			zap.String("user_id", viewer.ID),
			zap.String("letter_id", letter.ID),
		)
	}
	result.Collectible = s.lookup(ctx, *letter.CollectibleID)
	return result, nil
}

// AwardForDeposit 向携带收藏品的邮筒投递回信时发放，按收藏品定义累加
func (s *AwardService) AwardForDeposit(ctx context.Context, viewer domain.Viewer, postbox *domain.Letter) (*AwardResult, error) {
	if viewer.Anonymous() || postbox.CollectibleID == nil {
		return nil, nil
	}

	award, err := s.repo.IncrementAward(ctx, &domain.CollectibleAward{
		ID:             uuid.NewString(),
		UserID:         viewer.ID,
		AwardKey:       domain.DepositAwardKey(*postbox.CollectibleID),
		CollectibleID:  *postbox.CollectibleID,
		SourceLetterID: postbox.ID,
		Trigger:        domain.TriggerDeposit,
		Count:          1,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordAward(string(domain.TriggerDeposit))
	s.log.Info("Collectible awarded",
		zap.String("trigger", string(domain.TriggerDeposit)),
		zap.String("user_id", viewer.ID),
		zap.String("postbox_id", postbox.ID),
		zap.Int("count", award.Count),
	)
	return &AwardResult{Award: award, Collectible: s.lookup(ctx, award.CollectibleID), Granted: true}, nil
}

// ListAwards 列出用户的收藏品及其定义
func (s *AwardService) ListAwards(ctx context.Context, userID string) ([]*domain.AwardWithCollectible, error) {
	awards, err := s.repo.ListAwardsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make([]*domain.AwardWithCollectible, 0, len(awards))
	for _, a := range awards {
		result = append(result, &domain.AwardWithCollectible{
			CollectibleAward: *a,
			Collectible:      s.lookup(ctx, a.CollectibleID),
		})
	}
	return result, nil
}

// lookup 查找定义，已被删除的定义返回 nil
func (s *AwardService) lookup(ctx context.Context, id string) *domain.Collectible {
	c, err := s.collectibles.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("Failed to load collectible", zap.String("collectible_id", id), zap.Error(err))
		}
		return nil
	}
	return c
}
