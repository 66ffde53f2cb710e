package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"okitegami/backend/internal/cache"
	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/security"
	"okitegami/backend/internal/storage"
)

// CollectibleInput 创建或修改收藏品定义
type CollectibleInput struct {
	Name        string
	Description string
	Image       *ImageUpload // 为 nil 时保留原图
}

// CollectibleService 收藏品定义管理
//
// 定义读多写少，读取走进程内 TTL 缓存。
type CollectibleService struct {
	repo    storage.CollectibleRepository
	objects storage.ObjectStore
	images  *security.ImageInspector
	cache   *cache.LocalCache[*domain.Collectible]
	log     *zap.Logger
}

// NewCollectibleService 创建收藏品服务
func NewCollectibleService(repo storage.CollectibleRepository, objects storage.ObjectStore, images *security.ImageInspector, log *zap.Logger) *CollectibleService {
	return &CollectibleService{
		repo:    repo,
		objects: objects,
		images:  images,
		cache:   cache.NewLocalCache[*domain.Collectible](1000, 5*time.Minute),
		log:     log.Named("collectibles"),
	}
}

// Cache 返回定义缓存，用于后台定期清理
func (s *CollectibleService) Cache() *cache.LocalCache[*domain.Collectible] {
	return s.cache
}

// Get 获取收藏品定义
func (s *CollectibleService) Get(ctx context.Context, id string) (*domain.Collectible, error) {
	if c, ok := s.cache.Get(id); ok {
		return c, nil
	}
	c, err := s.repo.GetCollectible(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(id, c, 0)
	return c, nil
}

// List 列出全部收藏品定义
func (s *CollectibleService) List(ctx context.Context) ([]*domain.Collectible, error) {
	return s.repo.ListCollectibles(ctx)
}

// Create 创建收藏品定义（仅管理员）
func (s *CollectibleService) Create(ctx context.Context, viewer domain.Viewer, input CollectibleInput) (*domain.Collectible, error) {
	if !viewer.IsAdmin {
		return nil, domain.ErrPermissionDenied
	}
	return s.create(ctx, viewer, input)
}

// create 校验并创建定义，邮筒放置时也会调用
//
// 图片上传失败返回 StepUploadCollectibleImage，写入失败返回 StepCreateCollectible，
// 写入失败时已上传的图片会被删除。
func (s *CollectibleService) create(ctx context.Context, viewer domain.Viewer, input CollectibleInput) (*domain.Collectible, error) {
	if err := domain.ValidateCollectible(domain.CollectibleContent{Name: input.Name, Description: input.Description}); err != nil {
		return nil, err
	}

	c := &domain.Collectible{
		ID:          uuid.NewString(),
		Name:        input.Name,
		Description: input.Description,
		CreatedBy:   viewer.ID,
	}

	if input.Image != nil {
		path, err := s.uploadImage(ctx, c.ID, input.Image)
		if err != nil {
			return nil, err
		}
		c.ImagePath = path
	}

	if err := s.repo.CreateCollectible(ctx, c); err != nil {
		removeObjects(ctx, s.objects, s.log, c.ImagePath)
		return nil, &domain.StepError{Step: domain.StepCreateCollectible, Err: err}
	}

	s.log.Info("Collectible created", zap.String("collectible_id", c.ID), zap.String("name", c.Name))
	return c, nil
}

func (s *CollectibleService) uploadImage(ctx context.Context, collectibleID string, img *ImageUpload) (string, error) {
	contentType, ext, err := s.images.Inspect("collectibleImage", img.Data)
	if err != nil {
		return "", err
	}
	path := objectPath("collectibles", collectibleID, ext)
	if err := s.objects.Upload(ctx, path, img.Data, contentType); err != nil {
		return "", &domain.StepError{Step: domain.StepUploadCollectibleImage, Err: err}
	}
	return path, nil
}

// Update 修改收藏品定义（仅管理员）
func (s *CollectibleService) Update(ctx context.Context, viewer domain.Viewer, id string, input CollectibleInput) (*domain.Collectible, error) {
	if !viewer.IsAdmin {
		return nil, domain.ErrPermissionDenied
	}
	if err := domain.ValidateCollectible(domain.CollectibleContent{Name: input.Name, Description: input.Description}); err != nil {
		return nil, err
	}

	c, err := s.repo.GetCollectible(ctx, id)
	if err != nil {
		return nil, err
	}

	oldImage := ""
	if input.Image != nil {
		path, err := s.uploadImage(ctx, c.ID, input.Image)
		if err != nil {
			return nil, err
		}
		oldImage, c.ImagePath = c.ImagePath, path
	}
	c.Name = input.Name
	c.Description = input.Description

	if err := s.repo.UpdateCollectible(ctx, c); err != nil {
		if input.Image != nil {
			removeObjects(ctx, s.objects, s.log, c.ImagePath)
		}
		return nil, err
	}
	s.cache.Delete(id)
	removeObjects(ctx, s.objects, s.log, oldImage)
	return c, nil
}

// Delete 删除收藏品定义（仅管理员）
//
// 已发放的收藏品记录保留，展示时定义缺失。
func (s *CollectibleService) Delete(ctx context.Context, viewer domain.Viewer, id string) error {
	if !viewer.IsAdmin {
		return domain.ErrPermissionDenied
	}
	c, err := s.repo.GetCollectible(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCollectible(ctx, id); err != nil {
		return err
	}
	s.cache.Delete(id)
	removeObjects(ctx, s.objects, s.log, c.ImagePath)
	s.log.Info("Collectible deleted", zap.String("collectible_id", id))
	return nil
}
