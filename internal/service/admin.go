package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/proximity"
	"okitegami/backend/internal/storage"
)

// AdminService 管理后台
type AdminService struct {
	store   storage.Store
	letters *LetterService
	policy  proximity.Policy
	log     *zap.Logger
}

// NewAdminService 创建管理服务
func NewAdminService(store storage.Store, letters *LetterService, log *zap.Logger) *AdminService {
	return &AdminService{
		store:   store,
		letters: letters,
		policy:  letters.policy,
		log:     log.Named("admin"),
	}
}

// ListLettersInput 管理后台信件查询条件
type ListLettersInput struct {
	Category        domain.LetterCategory // 为空表示全部类别
	OwnerID         string
	IncludeArchived bool
	Page            int
	PageSize        int
}

// AdminLetter 管理后台中的信件
type AdminLetter struct {
	*domain.Letter
	Archived  bool       `json:"archived"`
	HasSecret bool       `json:"hasSecret"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	ImageURL  string     `json:"imageUrl,omitempty"`
}

func (s *AdminService) toAdminLetter(l *domain.Letter, now time.Time) *AdminLetter {
	a := &AdminLetter{
		Letter:    l,
		Archived:  !s.policy.IsActive(l, now),
		HasSecret: l.HasSecret(),
		ExpiresAt: s.policy.ExpiresAt(l),
	}
	if l.ImagePath != "" {
		a.ImageURL = s.letters.objects.PublicURL(l.ImagePath)
	}
	return a
}

// ListLetters 按条件分页列出信件（需要管理员权限）
func (s *AdminService) ListLetters(ctx context.Context, viewer domain.Viewer, input ListLettersInput) (*PageResult[*AdminLetter], error) {
	if !viewer.IsAdmin {
		return nil, domain.ErrPermissionDenied
	}
	if input.Category != "" && !input.Category.Valid() {
		return nil, domain.NewValidationError("category", "unknown category")
	}

	page, pageSize := normalizePage(input.Page, input.PageSize)
	now := s.letters.now()
	filter := domain.LetterFilter{Page: page, PageSize: pageSize}
	if input.Category != "" {
		filter.Categories = []domain.LetterCategory{input.Category}
	}
	if input.OwnerID != "" {
		filter.OwnerID = &input.OwnerID
	}
	if !input.IncludeArchived {
		activeAfter := now.Add(-s.policy.Window)
		filter.ActiveAfter = &activeAfter
	}

	letters, total, err := s.store.ListLetters(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]*AdminLetter, 0, len(letters))
	for _, l := range letters {
		items = append(items, s.toAdminLetter(l, now))
	}
	return newPageResult(items, total, page, pageSize), nil
}

// GetLetter 获取信件详情（需要管理员权限）
func (s *AdminService) GetLetter(ctx context.Context, viewer domain.Viewer, id string) (*AdminLetter, error) {
	if !viewer.IsAdmin {
		return nil, domain.ErrPermissionDenied
	}
	l, err := s.store.GetLetter(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toAdminLetter(l, s.letters.now()), nil
}

// UpdateLetter 修改信件，管理员可以移动 official 信件
func (s *AdminService) UpdateLetter(ctx context.Context, viewer domain.Viewer, id string, input UpdateLetterInput) (*AdminLetter, error) {
	if !viewer.IsAdmin {
		return nil, domain.ErrPermissionDenied
	}
	l, err := s.letters.Update(ctx, viewer, id, input)
	if err != nil {
		return nil, err
	}
	return s.toAdminLetter(l, s.letters.now()), nil
}

// DeleteLetter 删除信件（需要管理员权限）
func (s *AdminService) DeleteLetter(ctx context.Context, viewer domain.Viewer, id string) error {
	if !viewer.IsAdmin {
		return domain.ErrPermissionDenied
	}
	return s.letters.Delete(ctx, viewer, id)
}

// ListUsersInput 列出用户的输入参数
type ListUsersInput struct {
	Page     int
	PageSize int
	Search   string // 搜索关键词（邮箱/昵称）
}

// ListUsers 列出用户（需要管理员权限）
func (s *AdminService) ListUsers(ctx context.Context, viewer domain.Viewer, input ListUsersInput) (*PageResult[*domain.User], error) {
	if !viewer.IsAdmin {
		return nil, domain.ErrPermissionDenied
	}
	page, pageSize := normalizePage(input.Page, input.PageSize)
	users, total, err := s.store.ListUsers(ctx, page, pageSize, input.Search)
	if err != nil {
		return nil, err
	}
	return newPageResult(users, total, page, pageSize), nil
}

// GetStatistics 获取系统统计（需要管理员权限）
func (s *AdminService) GetStatistics(ctx context.Context, viewer domain.Viewer) (*domain.Statistics, error) {
	if !viewer.IsAdmin {
		return nil, domain.ErrPermissionDenied
	}
	stats, err := s.store.GetStatistics(ctx, s.letters.now().Add(-s.policy.Window))
	if err != nil {
		s.log.Error("Failed to load statistics", zap.Error(err))
		return nil, err
	}
	return stats, nil
}
