package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"okitegami/backend/internal/config"
	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/monitoring"
	"okitegami/backend/internal/proximity"
	"okitegami/backend/internal/security"
	"okitegami/backend/internal/storage"
)

// placementLockKey user 信件的间距检查共用一把锁
const placementLockKey = "placement:user"

const placementLockTTL = 15 * time.Second

// LetterDeps 信件服务依赖
type LetterDeps struct {
	Store        storage.Store
	Locker       storage.PlacementLocker
	Objects      storage.ObjectStore
	Classifier   *proximity.Classifier
	Receipts     *ReceiptLedger
	Awards       *AwardService
	Collectibles *CollectibleService
	Images       *security.ImageInspector
	Filter       *security.ContentFilter
	Config       config.LetterConfig
	Metrics      *monitoring.Metrics
	Logger       *zap.Logger
}

// LetterService 信件的放置、阅读、修改与删除
type LetterService struct {
	store        storage.Store
	locker       storage.PlacementLocker
	objects      storage.ObjectStore
	classifier   *proximity.Classifier
	policy       proximity.Policy
	receipts     *ReceiptLedger
	awards       *AwardService
	collectibles *CollectibleService
	images       *security.ImageInspector
	filter       *security.ContentFilter
	cfg          config.LetterConfig
	limits       domain.LetterLimits
	metrics      *monitoring.Metrics
	log          *zap.Logger
	events       EventPublisher
	now          func() time.Time
}

// NewLetterService 创建信件服务
func NewLetterService(deps LetterDeps) *LetterService {
	return &LetterService{
		store:        deps.Store,
		locker:       deps.Locker,
		objects:      deps.Objects,
		classifier:   deps.Classifier,
		policy:       deps.Classifier.Policy,
		receipts:     deps.Receipts,
		awards:       deps.Awards,
		collectibles: deps.Collectibles,
		images:       deps.Images,
		filter:       deps.Filter,
		cfg:          deps.Config,
		limits:       domain.LetterLimits{MaxPages: deps.Config.MaxPages, MaxCharsPerPage: deps.Config.MaxCharsPerPage},
		metrics:      deps.Metrics,
		log:          deps.Logger.Named("letters"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetEventPublisher 设置事件接收方（避免与实时推送循环依赖）
func (s *LetterService) SetEventPublisher(p EventPublisher) {
	s.events = p
}

func (s *LetterService) publish(ctx context.Context, kind string, l *domain.Letter) {
	if s.events == nil || !l.Category.TopLevel() {
		return
	}
	s.events.PublishLetterEvent(ctx, newLetterEvent(kind, l))
}

// ========== 视图 ==========

// LetterView 单封信件对某个访问者的展示
//
// 只有 Reachable 且暗号门可读时 Letter 才包含正文与图片。
type LetterView struct {
	Letter     *domain.Letter       `json:"letter"`
	Visibility proximity.Visibility `json:"visibility"`
	Lock       proximity.LockState  `json:"lock"`
	Pages      []string             `json:"pages,omitempty"`
	ImageURL   string               `json:"imageUrl,omitempty"`
	Distance   *float64             `json:"distanceMeters,omitempty"`
	ExpiresAt  *time.Time           `json:"expiresAt,omitempty"`
	IsOwner    bool                 `json:"isOwner"`
	// RecordLocal 提示匿名访问者把该信件加入本地已解锁集合
	RecordLocal bool `json:"recordLocal,omitempty"`
}

// Readable 内容是否可读
func (v *LetterView) Readable() bool {
	return v.Visibility == proximity.Reachable && v.Lock.Readable()
}

// NearbyLetter 地图上的一封信件，Near 时只有位置与类别
type NearbyLetter struct {
	ID             string                `json:"id"`
	Category       domain.LetterCategory `json:"category"`
	Lat            float64               `json:"lat"`
	Lng            float64               `json:"lng"`
	Title          string                `json:"title,omitempty"`
	Visibility     proximity.Visibility  `json:"visibility"`
	Lock           proximity.LockState   `json:"lock"`
	HasCollectible bool                  `json:"hasCollectible"`
	Distance       *float64              `json:"distanceMeters,omitempty"`
	ExpiresAt      *time.Time            `json:"expiresAt,omitempty"`
	IsOwner        bool                  `json:"isOwner"`
}

// buildView 按可见性与暗号门状态生成视图
func (s *LetterService) buildView(l *domain.Letter, viewer domain.Viewer, pos *domain.Coordinates, vis proximity.Visibility, lock proximity.LockState) *LetterView {
	v := &LetterView{
		Visibility: vis,
		Lock:       lock,
		ExpiresAt:  s.policy.ExpiresAt(l),
		IsOwner:    viewer.IsOwner(l),
	}
	if pos != nil {
		d := proximity.Distance(*pos, l.Coordinates())
		v.Distance = &d
	}
	if v.Readable() {
		cp := *l
		cp.Secret = nil
		v.Letter = &cp
		v.Pages = l.Pages()
		if l.ImagePath != "" {
			v.ImageURL = s.objects.PublicURL(l.ImagePath)
		}
	} else {
		v.Letter = l.Redacted()
	}
	return v
}

// lockState 计算初始暗号门状态，只有带暗号的信件才查询已读记录
func (s *LetterService) lockState(ctx context.Context, l *domain.Letter, viewer domain.Viewer, seen []string) (proximity.LockState, error) {
	if !l.HasSecret() {
		return proximity.NoSecret, nil
	}
	hasRead, err := s.receipts.HasRead(ctx, l.ID, viewer, seen)
	if err != nil {
		return proximity.Locked, err
	}
	return proximity.InitialState(l, viewer, hasRead), nil
}

// reachable 获取可以打开的顶层信件，否则返回 ErrNotReachable
func (s *LetterService) reachable(ctx context.Context, viewer domain.Viewer, id string, pos *domain.Coordinates) (*domain.Letter, error) {
	l, err := s.store.GetLetter(ctx, id)
	if err != nil {
		return nil, err
	}
	if !l.Category.TopLevel() {
		return nil, fmt.Errorf("letter %s: %w", id, domain.ErrNotFound)
	}
	if s.classifier.Classify(pos, l, viewer, s.now()) != proximity.Reachable {
		return nil, domain.ErrNotReachable
	}
	return l, nil
}

// ========== 查询 ==========

// Get 获取信件原始数据
func (s *LetterService) Get(ctx context.Context, id string) (*domain.Letter, error) {
	return s.store.GetLetter(ctx, id)
}

// ListActive 列出地图上的全部有效顶层信件
func (s *LetterService) ListActive(ctx context.Context) ([]*domain.Letter, error) {
	activeAfter := s.now().Add(-s.policy.Window)
	letters, _, err := s.store.ListLetters(ctx, domain.LetterFilter{
		Categories:  []domain.LetterCategory{domain.CategoryOfficial, domain.CategoryUser, domain.CategoryPostBox},
		ActiveAfter: &activeAfter,
	})
	return letters, err
}

// ListArchived 列出访问者自己已归档的 user 信件（按页）
func (s *LetterService) ListArchived(ctx context.Context, viewer domain.Viewer, page, pageSize int) (*PageResult[*LetterView], error) {
	if viewer.Anonymous() {
		return nil, domain.ErrSessionExpired
	}
	page, pageSize = normalizePage(page, pageSize)
	before := s.now().Add(-s.policy.Window)
	letters, total, err := s.store.ListLetters(ctx, domain.LetterFilter{
		Categories:    []domain.LetterCategory{domain.CategoryUser},
		OwnerID:       &viewer.ID,
		CreatedBefore: &before,
		Page:          page,
		PageSize:      pageSize,
	})
	if err != nil {
		return nil, err
	}

	return newPageResult(s.archivedViews(letters, viewer), total, page, pageSize), nil
}

// archivedViews 归档信件对所有者完整可见
func (s *LetterService) archivedViews(letters []*domain.Letter, viewer domain.Viewer) []*LetterView {
	views := make([]*LetterView, 0, len(letters))
	for _, l := range letters {
		cp := *l
		cp.Secret = nil
		v := &LetterView{
			Letter:     &cp,
			Visibility: proximity.Hidden,
			Lock:       proximity.Unlocked,
			Pages:      l.Pages(),
			ExpiresAt:  s.policy.ExpiresAt(l),
			IsOwner:    viewer.IsOwner(l),
		}
		if l.ImagePath != "" {
			v.ImageURL = s.objects.PublicURL(l.ImagePath)
		}
		views = append(views, v)
	}
	return views
}

// Nearby 地图信息流：返回对访问者为 Near 或 Reachable 的信件
func (s *LetterService) Nearby(ctx context.Context, viewer domain.Viewer, pos *domain.Coordinates, seen []string) ([]*NearbyLetter, error) {
	letters, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := make([]*NearbyLetter, 0)
	for _, l := range letters {
		vis := s.classifier.Classify(pos, l, viewer, now)
		if vis == proximity.Hidden {
			continue
		}
		item := &NearbyLetter{
			ID:             l.ID,
			Category:       l.Category,
			Lat:            l.Lat,
			Lng:            l.Lng,
			Visibility:     vis,
			Lock:           proximity.NoSecret,
			HasCollectible: l.CollectibleID != nil,
			ExpiresAt:      s.policy.ExpiresAt(l),
			IsOwner:        viewer.IsOwner(l),
		}
		if l.HasSecret() {
			item.Lock = proximity.Locked
		}
		if pos != nil {
			d := proximity.Distance(*pos, l.Coordinates())
			item.Distance = &d
		}
		if vis == proximity.Reachable {
			item.Title = l.Title
			lock, err := s.lockState(ctx, l, viewer, seen)
			if err != nil {
				return nil, err
			}
			item.Lock = lock
		}
		result = append(result, item)
	}
	return result, nil
}

// Open 打开信件，必须 Reachable；带暗号且未解锁时不返回正文
func (s *LetterService) Open(ctx context.Context, viewer domain.Viewer, id string, pos *domain.Coordinates, seen []string) (*LetterView, error) {
	l, err := s.reachable(ctx, viewer, id, pos)
	if err != nil {
		return nil, err
	}
	lock, err := s.lockState(ctx, l, viewer, seen)
	if err != nil {
		return nil, err
	}
	return s.buildView(l, viewer, pos, proximity.Reachable, lock), nil
}

// Unlock 用暗号解锁
//
// 成功时登录用户写入已读记录，匿名访问者由客户端记录（RecordLocal）。
// 暗号不匹配返回 domain.ErrUnlockMismatch，可以无限重试。
func (s *LetterService) Unlock(ctx context.Context, viewer domain.Viewer, id string, pos *domain.Coordinates, secret string, seen []string) (*LetterView, error) {
	l, err := s.reachable(ctx, viewer, id, pos)
	if err != nil {
		return nil, err
	}

	hasRead := false
	if l.HasSecret() {
		if hasRead, err = s.receipts.HasRead(ctx, l.ID, viewer, seen); err != nil {
			return nil, err
		}
	}
	gate := proximity.NewGate(l, viewer, hasRead)
	result, err := gate.Attempt(secret)
	if err != nil {
		s.metrics.RecordUnlockAttempt("mismatch")
		return nil, err
	}

	view := s.buildView(l, viewer, pos, proximity.Reachable, result.State)
	if result.Recorded {
		s.metrics.RecordUnlockAttempt("success")
		if viewer.Anonymous() {
			view.RecordLocal = true
		} else if _, err := s.receipts.RecordRead(ctx, l, viewer); err != nil {
			return nil, err
		}
	}
	return view, nil
}

// CompleteReading 读完最后一页，携带收藏品时发放阅读奖励
func (s *LetterService) CompleteReading(ctx context.Context, viewer domain.Viewer, id string, pos *domain.Coordinates, seen []string) (*AwardResult, error) {
	l, err := s.reachable(ctx, viewer, id, pos)
	if err != nil {
		return nil, err
	}
	lock, err := s.lockState(ctx, l, viewer, seen)
	if err != nil {
		return nil, err
	}
	if !lock.Readable() {
		return nil, domain.ErrPermissionDenied
	}

	result, err := s.awards.AwardForRead(ctx, viewer, l)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &AwardResult{}
	}
	return result, nil
}

// ========== 放置 ==========

// CollectibleDraft 放置邮筒时一并创建的收藏品
type CollectibleDraft struct {
	Name        string
	Description string
	Image       *ImageUpload
}

// PlaceLetterInput 放置信件输入
type PlaceLetterInput struct {
	Category domain.LetterCategory
	Position domain.Coordinates
	Title    string
	Pages    []string
	Secret   *string
	Image    *ImageUpload
	// CollectibleID 附加已有的收藏品定义（仅管理员）
	CollectibleID *string
	// Collectible 新建收藏品（仅邮筒）
	Collectible *CollectibleDraft
}

// validateText 校验标题与正文并做内容过滤
func (s *LetterService) validateText(title string, pages []string) error {
	if err := domain.ValidateLetterContent(domain.LetterContent{Title: title, Pages: pages}, s.limits); err != nil {
		return err
	}
	if s.filter == nil {
		return nil
	}
	if ok, reason := s.filter.FilterText(title); !ok {
		return domain.NewValidationError("title", reason)
	}
	if ok, reason := s.filter.FilterText(strings.Join(pages, "\n")); !ok {
		return domain.NewValidationError("pages", reason)
	}
	return nil
}

func (s *LetterService) validatePlace(ctx context.Context, viewer domain.Viewer, in PlaceLetterInput) error {
	if !in.Category.TopLevel() {
		return domain.NewValidationError("category", "must be official, user or postbox")
	}
	if err := domain.ValidateCoordinates(in.Position); err != nil {
		return err
	}
	if err := s.validateText(in.Title, in.Pages); err != nil {
		return err
	}
	if err := domain.ValidateSecret(in.Secret); err != nil {
		return err
	}
	if in.Image != nil {
		if _, _, err := s.images.Inspect("image", in.Image.Data); err != nil {
			return err
		}
	}

	if in.CollectibleID != nil && in.Collectible != nil {
		return domain.NewValidationError("collectible", "cannot attach and create a collectible at once")
	}
	if in.Collectible != nil {
		if in.Category != domain.CategoryPostBox {
			return domain.NewValidationError("collectible", "only postboxes can carry a new collectible")
		}
		if err := domain.ValidateCollectible(domain.CollectibleContent{Name: in.Collectible.Name, Description: in.Collectible.Description}); err != nil {
			return err
		}
		if in.Collectible.Image != nil {
			if _, _, err := s.images.Inspect("collectibleImage", in.Collectible.Image.Data); err != nil {
				return err
			}
		}
	}

	// 权限
	if in.Category == domain.CategoryOfficial && !viewer.IsAdmin {
		return domain.ErrPermissionDenied
	}
	if in.CollectibleID != nil {
		if !viewer.IsAdmin {
			return domain.ErrPermissionDenied
		}
		if _, err := s.collectibles.Get(ctx, *in.CollectibleID); err != nil {
			return err
		}
	}
	return nil
}

// Place 放置信件
//
// 步骤：校验 → 权限 → 间距检查（持有放置锁直到写入完成）→ 上传信件图片 →
// 上传收藏品图片并创建定义 → 写入信件。任一步骤失败返回 *domain.StepError，
// 已上传的图片和已创建的收藏品会被尽力清理。
func (s *LetterService) Place(ctx context.Context, viewer domain.Viewer, in PlaceLetterInput) (*domain.Letter, error) {
	if viewer.Anonymous() {
		return nil, domain.ErrSessionExpired
	}
	if err := s.validatePlace(ctx, viewer, in); err != nil {
		return nil, err
	}

	if in.Category == domain.CategoryUser {
		release, err := s.locker.Lock(ctx, placementLockKey, placementLockTTL)
		if err != nil {
			return nil, err
		}
		defer release()

		if err := s.checkPlacement(ctx, in.Position); err != nil {
			return nil, err
		}
	}

	letter := &domain.Letter{
		ID:            uuid.NewString(),
		Category:      in.Category,
		Lat:           in.Position.Lat,
		Lng:           in.Position.Lng,
		Title:         in.Title,
		Body:          domain.JoinPages(in.Pages),
		Secret:        in.Secret,
		OwnerID:       strPtr(viewer.ID),
		CollectibleID: in.CollectibleID,
		CreatedAt:     s.now(),
	}

	var uploaded []string
	var created *domain.Collectible
	cleanup := func() {
		removeObjects(ctx, s.objects, s.log, uploaded...)
		if created != nil {
			if err := s.store.DeleteCollectible(context.WithoutCancel(ctx), created.ID); err != nil {
				s.log.Warn("Failed to remove collectible", zap.String("collectible_id", created.ID), zap.Error(err))
			}
		}
	}

	if in.Image != nil {
		path, err := s.uploadLetterImage(ctx, viewer.ID, in.Image)
		if err != nil {
			return nil, err
		}
		uploaded = append(uploaded, path)
		letter.ImagePath = path
	}

	if in.Collectible != nil {
		c, err := s.collectibles.create(ctx, viewer, CollectibleInput{
			Name:        in.Collectible.Name,
			Description: in.Collectible.Description,
			Image:       in.Collectible.Image,
		})
		if err != nil {
			cleanup()
			return nil, err
		}
		created = c
		uploaded = append(uploaded, c.ImagePath)
		letter.CollectibleID = &c.ID
	}

	if err := s.store.CreateLetter(ctx, letter); err != nil {
		cleanup()
		return nil, &domain.StepError{Step: domain.StepCreateLetter, Err: err}
	}

	s.metrics.RecordLetterPlaced(string(letter.Category))
	s.log.Info("Letter placed",
		zap.String("letter_id", letter.ID),
		zap.String("category", string(letter.Category)),
		zap.String("owner_id", viewer.ID),
	)
	s.publish(ctx, EventLetterPlaced, letter)
	return letter, nil
}

// checkPlacement 与所有有效 user 信件做间距检查
func (s *LetterService) checkPlacement(ctx context.Context, pos domain.Coordinates) error {
	now := s.now()
	activeAfter := now.Add(-s.policy.Window)
	existing, _, err := s.store.ListLetters(ctx, domain.LetterFilter{
		Categories:   []domain.LetterCategory{domain.CategoryUser},
		CreatedAfter: &activeAfter,
	})
	if err != nil {
		return err
	}
	err = proximity.CheckPlacement(pos, domain.CategoryUser, existing, s.cfg.MinPlacementDistanceMeters, s.policy, now)
	if err != nil {
		s.metrics.RecordPlacementRejected()
	}
	return err
}

func (s *LetterService) uploadLetterImage(ctx context.Context, ownerID string, img *ImageUpload) (string, error) {
	contentType, ext, err := s.images.Inspect("image", img.Data)
	if err != nil {
		return "", err
	}
	path := objectPath("letters", ownerID, ext)
	if err := s.objects.Upload(ctx, path, img.Data, contentType); err != nil {
		return "", &domain.StepError{Step: domain.StepUploadImage, Err: err}
	}
	return path, nil
}

// UploadMedia 单独上传图片，返回对象路径，供修改信件时引用
func (s *LetterService) UploadMedia(ctx context.Context, viewer domain.Viewer, img *ImageUpload) (string, error) {
	if viewer.Anonymous() {
		return "", domain.ErrSessionExpired
	}
	return s.uploadLetterImage(ctx, viewer.ID, img)
}

// MediaURL 返回对象的公开地址
func (s *LetterService) MediaURL(path string) string {
	return s.objects.PublicURL(path)
}

// ========== 修改与删除 ==========

// UpdateLetterInput 修改信件，nil 字段保持不变
type UpdateLetterInput struct {
	Title       *string
	Pages       []string
	Secret      *string // 设置新暗号，不能为空串
	ClearSecret bool
	// ImagePath 引用已上传的图片，空串表示移除图片
	ImagePath *string
	// CollectibleID 仅管理员，空串表示解除
	CollectibleID *string
	// Position 仅管理员修改 official 信件时允许
	Position *domain.Coordinates
}

// Update 修改信件（所有者或管理员）
//
// 类别、所有者和创建时间不可修改；只有管理员可以移动 official 信件。
// 开启 invalidate_receipts_on_secret_change 时，暗号变化会作废已有的已读记录。
func (s *LetterService) Update(ctx context.Context, viewer domain.Viewer, id string, in UpdateLetterInput) (*domain.Letter, error) {
	if viewer.Anonymous() {
		return nil, domain.ErrSessionExpired
	}
	l, err := s.store.GetLetter(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.CanModify(l) {
		return nil, domain.ErrPermissionDenied
	}

	title := l.Title
	if in.Title != nil {
		title = *in.Title
	}
	pages := l.Pages()
	if in.Pages != nil {
		pages = in.Pages
	}
	if in.Title != nil || in.Pages != nil {
		if err := s.validateText(title, pages); err != nil {
			return nil, err
		}
	}

	if in.Secret != nil && in.ClearSecret {
		return nil, domain.NewValidationError("secret", "cannot set and clear at once")
	}
	if err := domain.ValidateSecret(in.Secret); err != nil {
		return nil, err
	}

	if in.Position != nil {
		if !viewer.IsAdmin {
			return nil, domain.ErrPermissionDenied
		}
		if l.Category != domain.CategoryOfficial {
			return nil, domain.NewValidationError("position", "only official letters can be relocated")
		}
		if err := domain.ValidateCoordinates(*in.Position); err != nil {
			return nil, err
		}
	}

	if in.CollectibleID != nil {
		if !viewer.IsAdmin {
			return nil, domain.ErrPermissionDenied
		}
		if *in.CollectibleID != "" {
			if _, err := s.collectibles.Get(ctx, *in.CollectibleID); err != nil {
				return nil, err
			}
		}
	}

	oldImage := ""
	if in.ImagePath != nil && *in.ImagePath != l.ImagePath {
		if *in.ImagePath != "" && !ownsImage(viewer, l, *in.ImagePath) {
			return nil, domain.NewValidationError("imagePath", "must reference an uploaded image")
		}
		oldImage = l.ImagePath
	}

	// 应用修改
	oldSecret := l.Secret
	l.Title = title
	l.Body = domain.JoinPages(pages)
	switch {
	case in.ClearSecret:
		l.Secret = nil
	case in.Secret != nil:
		l.Secret = in.Secret
	}
	if in.ImagePath != nil {
		l.ImagePath = *in.ImagePath
	}
	if in.CollectibleID != nil {
		if *in.CollectibleID == "" {
			l.CollectibleID = nil
		} else {
			l.CollectibleID = in.CollectibleID
		}
	}
	if in.Position != nil {
		l.Lat, l.Lng = in.Position.Lat, in.Position.Lng
	}

	if err := s.store.UpdateLetter(ctx, l); err != nil {
		return nil, err
	}

	if s.cfg.InvalidateReceiptsOnSecretChange && secretChanged(oldSecret, l.Secret) {
		if _, err := s.receipts.Invalidate(ctx, l.ID); err != nil {
			return nil, err
		}
	}
	removeObjects(ctx, s.objects, s.log, oldImage)

	s.log.Info("Letter updated", zap.String("letter_id", l.ID), zap.String("by", viewer.ID))
	s.publish(ctx, EventLetterUpdated, l)
	return l, nil
}

// ownsImage 图片必须是信件所有者上传的；管理员还可以引用自己上传的图片
func ownsImage(viewer domain.Viewer, l *domain.Letter, p string) bool {
	if path.Clean(p) != p {
		return false
	}
	if l.OwnerID != nil && strings.HasPrefix(p, "letters/"+*l.OwnerID+"/") {
		return true
	}
	return viewer.IsAdmin && strings.HasPrefix(p, "letters/"+viewer.ID+"/")
}

func secretChanged(before, after *string) bool {
	switch {
	case before == nil && after == nil:
		return false
	case before == nil || after == nil:
		return true
	default:
		return *before != *after
	}
}

// Delete 删除信件（所有者或管理员），连同回信、已读记录和图片
//
// 回信也可以由所属邮筒的所有者删除。
func (s *LetterService) Delete(ctx context.Context, viewer domain.Viewer, id string) error {
	if viewer.Anonymous() {
		return domain.ErrSessionExpired
	}
	l, err := s.store.GetLetter(ctx, id)
	if err != nil {
		return err
	}
	allowed, err := s.canDelete(ctx, viewer, l)
	if err != nil {
		return err
	}
	if !allowed {
		return domain.ErrPermissionDenied
	}

	deleted, err := s.store.DeleteLetter(ctx, id)
	if err != nil {
		return err
	}

	paths := make([]string, 0, len(deleted))
	for _, d := range deleted {
		paths = append(paths, d.ImagePath)
	}
	removeObjects(ctx, s.objects, s.log, paths...)

	s.metrics.RecordLettersDeleted(len(deleted))
	s.log.Info("Letter deleted",
		zap.String("letter_id", id),
		zap.String("by", viewer.ID),
		zap.Int("removed", len(deleted)),
	)
	s.publish(ctx, EventLetterRemoved, l)
	return nil
}

func (s *LetterService) canDelete(ctx context.Context, viewer domain.Viewer, l *domain.Letter) (bool, error) {
	if viewer.CanModify(l) {
		return true, nil
	}
	if l.Category != domain.CategoryPostBoxReply || l.ParentID == nil {
		return false, nil
	}
	parent, err := s.store.GetLetter(ctx, *l.ParentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return viewer.IsOwner(parent), nil
}
