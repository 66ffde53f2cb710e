package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/proximity"
)

// DepositInput 投递回信输入
type DepositInput struct {
	Title string
	Pages []string
	Image *ImageUpload
}

// DepositResult 投递结果
type DepositResult struct {
	Reply *domain.Letter `json:"reply"`
	Award *AwardResult   `json:"award,omitempty"`
}

// PostBoxService 邮筒回信
type PostBoxService struct {
	letters *LetterService
	log     *zap.Logger
}

// NewPostBoxService 创建邮筒服务，复用信件服务的存储、分级器与收藏品规则
func NewPostBoxService(letters *LetterService, log *zap.Logger) *PostBoxService {
	return &PostBoxService{letters: letters, log: log.Named("postbox")}
}

// dayBounds 返回 now 所在自然日在 loc 时区下的 [开始, 结束)
func dayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

// loadPostBox 获取邮筒，类别不是 postbox 时返回校验错误
func (s *PostBoxService) loadPostBox(ctx context.Context, id string) (*domain.Letter, error) {
	parent, err := s.letters.store.GetLetter(ctx, id)
	if err != nil {
		return nil, err
	}
	if parent.Category != domain.CategoryPostBox {
		return nil, domain.NewValidationError("postboxId", "letter is not a postbox")
	}
	return parent, nil
}

// Deposit 向邮筒投递回信
//
// 要求登录且位于邮筒的可打开范围内；同一访问者对同一邮筒每天（letter.timezone）
// 最多投递 daily_deposit_limit 封，超出返回 domain.ErrDailyDepositLimit，不会进入发放步骤。
// 邮筒在写入前重新检查，投递成功后若邮筒携带收藏品则累加发放。
func (s *PostBoxService) Deposit(ctx context.Context, viewer domain.Viewer, postboxID string, pos *domain.Coordinates, in DepositInput) (*DepositResult, error) {
	ls := s.letters
	if viewer.Anonymous() {
		return nil, domain.ErrSessionExpired
	}
	if err := ls.validateText(in.Title, in.Pages); err != nil {
		return nil, err
	}
	if in.Image != nil {
		if _, _, err := ls.images.Inspect("image", in.Image.Data); err != nil {
			return nil, err
		}
	}

	parent, err := s.loadPostBox(ctx, postboxID)
	if err != nil {
		return nil, err
	}
	now := ls.now()
	if ls.classifier.Classify(pos, parent, viewer, now) != proximity.Reachable {
		return nil, domain.ErrNotReachable
	}

	release, err := ls.locker.Lock(ctx, fmt.Sprintf("deposit:%s:%s", postboxID, viewer.ID), placementLockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	since, until := dayBounds(now, ls.cfg.Location)
	count, err := ls.store.CountReplies(ctx, postboxID, viewer.ID, since, until)
	if err != nil {
		return nil, err
	}
	if count >= ls.cfg.DailyDepositLimit {
		ls.metrics.RecordDeposit("limited")
		return nil, domain.ErrDailyDepositLimit
	}

	reply := &domain.Letter{
		ID:        uuid.NewString(),
		Category:  domain.CategoryPostBoxReply,
		ParentID:  strPtr(parent.ID),
		Lat:       parent.Lat,
		Lng:       parent.Lng,
		Title:     in.Title,
		Body:      domain.JoinPages(in.Pages),
		OwnerID:   strPtr(viewer.ID),
		CreatedAt: now,
	}

	if in.Image != nil {
		path, err := ls.uploadLetterImage(ctx, viewer.ID, in.Image)
		if err != nil {
			return nil, err
		}
		reply.ImagePath = path
	}

	// 写入前重新确认邮筒仍然存在且仍是 postbox
	if parent, err = s.loadPostBox(ctx, postboxID); err != nil {
		removeObjects(ctx, ls.objects, s.log, reply.ImagePath)
		return nil, err
	}
	if err := ls.store.CreateLetter(ctx, reply); err != nil {
		removeObjects(ctx, ls.objects, s.log, reply.ImagePath)
		return nil, &domain.StepError{Step: domain.StepCreateLetter, Err: err}
	}
	ls.metrics.RecordDeposit("accepted")
	s.log.Info("Reply deposited",
		zap.String("postbox_id", postboxID),
		zap.String("reply_id", reply.ID),
		zap.String("owner_id", viewer.ID),
	)

	result := &DepositResult{Reply: reply}
	award, err := ls.awards.AwardForDeposit(ctx, viewer, parent)
	if err != nil {
		s.log.Error("Failed to award deposit collectible", zap.String("postbox_id", postboxID), zap.Error(err))
		return result, &domain.StepError{Step: domain.StepAwardCollectible, Err: err}
	}
	result.Award = award
	return result, nil
}

// ListReplies 列出邮筒的回信
//
// 邮筒所有者和管理员可以看到全部，其他人只能看到自己投递的。
func (s *PostBoxService) ListReplies(ctx context.Context, viewer domain.Viewer, postboxID string) ([]*domain.Letter, error) {
	if viewer.Anonymous() {
		return nil, domain.ErrSessionExpired
	}
	parent, err := s.loadPostBox(ctx, postboxID)
	if err != nil {
		return nil, err
	}

	filter := domain.LetterFilter{
		Categories: []domain.LetterCategory{domain.CategoryPostBoxReply},
		ParentID:   &parent.ID,
	}
	if !viewer.CanModify(parent) {
		filter.OwnerID = &viewer.ID
	}
	replies, _, err := s.letters.store.ListLetters(ctx, filter)
	if err != nil {
		return nil, err
	}
	return replies, nil
}

// DeleteReply 删除回信：回信作者、邮筒所有者或管理员
func (s *PostBoxService) DeleteReply(ctx context.Context, viewer domain.Viewer, replyID string) error {
	reply, err := s.letters.store.GetLetter(ctx, replyID)
	if err != nil {
		return err
	}
	if reply.Category != domain.CategoryPostBoxReply {
		return fmt.Errorf("reply %s: %w", replyID, domain.ErrNotFound)
	}
	return s.letters.Delete(ctx, viewer, replyID)
}
