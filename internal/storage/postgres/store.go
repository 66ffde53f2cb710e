package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"okitegami/backend/internal/config"
	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/storage"
)

// Store 基于 GORM 的 SQL 存储实现（PostgreSQL / MySQL / SQLite）
type Store struct {
	db *gorm.DB
}

var _ storage.Store = (*Store)(nil)

// PoolConfig 连接池参数
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewStore 根据数据库类型创建存储实例
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	pool := PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}

	switch cfg.Type {
	case "postgres":
		return NewStoreWithDialector(postgres.Open(cfg.DSN), pool)
	case "mysql":
		return NewStoreWithDialector(mysql.Open(cfg.DSN), pool)
	case "sqlite":
		return NewStoreWithDialector(sqlite.Open(cfg.DSN), pool)
	default:
		return nil, fmt.Errorf("unsupported database type: %s (supported: postgres, mysql, sqlite)", cfg.Type)
	}
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, pool PoolConfig) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate 自动迁移数据库表结构
//
// 昵称的大小写不敏感唯一索引与昵称查邮箱函数由 cmd/migrate 创建。
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.User{},
		&domain.Letter{},
		&domain.ReadReceipt{},
		&domain.Collectible{},
		&domain.CollectibleAward{},
	)
}

// DB 返回底层 GORM 连接（迁移与测试使用）
func (s *Store) DB() *gorm.DB {
	return s.db
}

func translate(err error, kind, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s %s: %w", kind, id, domain.ErrConflict)
	default:
		return err
	}
}

// ========== Letter Repository ==========

// CreateLetter 保存新信件
func (s *Store) CreateLetter(ctx context.Context, letter *domain.Letter) error {
	if letter.ID == "" {
		letter.ID = uuid.New().String()
	}
	if letter.CreatedAt.IsZero() {
		letter.CreatedAt = time.Now()
	}
	letter.CreatedAt = letter.CreatedAt.UTC()
	return translate(s.db.WithContext(ctx).Create(letter).Error, "letter", letter.ID)
}

// GetLetter 根据 ID 获取信件
func (s *Store) GetLetter(ctx context.Context, id string) (*domain.Letter, error) {
	var letter domain.Letter
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&letter).Error; err != nil {
		return nil, translate(err, "letter", id)
	}
	return &letter, nil
}

// UpdateLetter 更新可修改字段，类别、所有者、父邮筒与创建时间不在更新范围内
func (s *Store) UpdateLetter(ctx context.Context, letter *domain.Letter) error {
	res := s.db.WithContext(ctx).Model(&domain.Letter{}).Where("id = ?", letter.ID).
		Select("lat", "lng", "title", "body", "secret", "collectible_id", "image_path", "updated_at").
		Updates(map[string]interface{}{
			"lat":            letter.Lat,
			"lng":            letter.Lng,
			"title":          letter.Title,
			"body":           letter.Body,
			"secret":         letter.Secret,
			"collectible_id": letter.CollectibleID,
			"image_path":     letter.ImagePath,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "letter", letter.ID)
	}
	return nil
}

// DeleteLetter 在事务中删除信件、回信及已读记录
func (s *Store) DeleteLetter(ctx context.Context, id string) ([]*domain.Letter, error) {
	var removed []*domain.Letter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var letter domain.Letter
		if err := tx.Where("id = ?", id).First(&letter).Error; err != nil {
			return translate(err, "letter", id)
		}
		var replies []*domain.Letter
		if err := tx.Where("parent_id = ?", id).Find(&replies).Error; err != nil {
			return err
		}

		removed = append([]*domain.Letter{&letter}, replies...)
		ids := make([]string, 0, len(removed))
		for _, l := range removed {
			ids = append(ids, l.ID)
		}
		if err := tx.Where("letter_id IN ?", ids).Delete(&domain.ReadReceipt{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&domain.Letter{}).Error
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// ListLetters 按条件列出信件（按创建时间倒序）
func (s *Store) ListLetters(ctx context.Context, filter domain.LetterFilter) ([]*domain.Letter, int, error) {
	query := s.db.WithContext(ctx).Model(&domain.Letter{})
	if len(filter.Categories) > 0 {
		query = query.Where("category IN ?", filter.Categories)
	}
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.ParentID != nil {
		query = query.Where("parent_id = ?", *filter.ParentID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", filter.CreatedAfter.UTC())
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", filter.CreatedBefore.UTC())
	}
	if filter.ActiveAfter != nil {
		query = query.Where("NOT (category = ? AND created_at < ?)", domain.CategoryUser, filter.ActiveAfter.UTC())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("created_at DESC").Order("id")
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var letters []*domain.Letter
	if err := query.Find(&letters).Error; err != nil {
		return nil, 0, err
	}
	return letters, int(total), nil
}

// CountReplies 统计用户在 [since, until) 内投递到邮筒的回信数
func (s *Store) CountReplies(ctx context.Context, parentID, ownerID string, since, until time.Time) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.Letter{}).
		Where("category = ? AND parent_id = ? AND owner_id = ?", domain.CategoryPostBoxReply, parentID, ownerID).
		Where("created_at >= ? AND created_at < ?", since.UTC(), until.UTC()).
		Count(&n).Error
	return int(n), err
}

// ========== Receipt Repository ==========

// InsertReceipt 依赖唯一索引的幂等插入
func (s *Store) InsertReceipt(ctx context.Context, receipt *domain.ReadReceipt) (bool, error) {
	if receipt.ID == "" {
		receipt.ID = uuid.New().String()
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "letter_id"}, {Name: "viewer_id"}},
			DoNothing: true,
		}).
		Create(receipt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// HasReceipt 判断是否存在已读记录
func (s *Store) HasReceipt(ctx context.Context, letterID, viewerID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.ReadReceipt{}).
		Where("letter_id = ? AND viewer_id = ?", letterID, viewerID).
		Count(&n).Error
	return n > 0, err
}

// DeleteReceiptsByLetter 删除信件的全部已读记录
func (s *Store) DeleteReceiptsByLetter(ctx context.Context, letterID string) (int, error) {
	res := s.db.WithContext(ctx).Where("letter_id = ?", letterID).Delete(&domain.ReadReceipt{})
	return int(res.RowsAffected), res.Error
}

// ========== Collectible Repository ==========

// CreateCollectible 保存收藏品定义
func (s *Store) CreateCollectible(ctx context.Context, c *domain.Collectible) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return translate(s.db.WithContext(ctx).Create(c).Error, "collectible", c.ID)
}

// GetCollectible 获取收藏品定义
func (s *Store) GetCollectible(ctx context.Context, id string) (*domain.Collectible, error) {
	var c domain.Collectible
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, translate(err, "collectible", id)
	}
	return &c, nil
}

// ListCollectibles 列出全部收藏品定义
func (s *Store) ListCollectibles(ctx context.Context) ([]*domain.Collectible, error) {
	var out []*domain.Collectible
	err := s.db.WithContext(ctx).Order("created_at").Find(&out).Error
	return out, err
}

// UpdateCollectible 更新名称、描述与图片
func (s *Store) UpdateCollectible(ctx context.Context, c *domain.Collectible) error {
	res := s.db.WithContext(ctx).Model(&domain.Collectible{}).Where("id = ?", c.ID).
		Select("name", "description", "image_path").
		Updates(map[string]interface{}{
			"name":        c.Name,
			"description": c.Description,
			"image_path":  c.ImagePath,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "collectible", c.ID)
	}
	return nil
}

// DeleteCollectible 删除收藏品定义
func (s *Store) DeleteCollectible(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Collectible{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "collectible", id)
	}
	return nil
}

// ========== Award Repository ==========

var awardConflictColumns = []clause.Column{{Name: "user_id"}, {Name: "award_key"}}

// InsertAwardIfAbsent 依赖 (user_id, award_key) 唯一索引，重复时不做任何修改
func (s *Store) InsertAwardIfAbsent(ctx context.Context, award *domain.CollectibleAward) (bool, error) {
	if award.ID == "" {
		award.ID = uuid.New().String()
	}
	award.Count = 1
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: awardConflictColumns, DoNothing: true}).
		Create(award)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IncrementAward 原子 upsert：不存在时插入 count=1，存在时 count+1
func (s *Store) IncrementAward(ctx context.Context, award *domain.CollectibleAward) (*domain.CollectibleAward, error) {
	if award.ID == "" {
		award.ID = uuid.New().String()
	}
	award.Count = 1
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: awardConflictColumns,
			DoUpdates: clause.Assignments(map[string]interface{}{
				"count":            gorm.Expr("? + 1", clause.Column{Table: "collectible_awards", Name: "count"}),
				"source_letter_id": award.SourceLetterID,
				"updated_at":       now,
			}),
		}).
		Create(award).Error
	if err != nil {
		return nil, err
	}

	var out domain.CollectibleAward
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND award_key = ?", award.UserID, award.AwardKey).
		First(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAwardsByUser 列出用户获得的收藏品（按获得时间倒序）
func (s *Store) ListAwardsByUser(ctx context.Context, userID string) ([]*domain.CollectibleAward, error) {
	var out []*domain.CollectibleAward
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error
	return out, err
}

// ========== User Repository ==========

// CreateUser 创建用户，邮箱与昵称不区分大小写唯一
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		err := tx.Model(&domain.User{}).
			Where("LOWER(email) = ? OR LOWER(nickname) = ?", strings.ToLower(user.Email), strings.ToLower(user.Nickname)).
			Count(&n).Error
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("user %s: %w", user.Email, domain.ErrConflict)
		}
		return translate(tx.Create(user).Error, "user", user.Email)
	})
}

// GetUserByID 根据ID获取用户
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err, "user", id)
	}
	return &user, nil
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(email)).First(&user).Error
	if err != nil {
		return nil, translate(err, "user", email)
	}
	return &user, nil
}

// EmailForNickname 昵称查邮箱
func (s *Store) EmailForNickname(ctx context.Context, nickname string) (string, error) {
	var user domain.User
	err := s.db.WithContext(ctx).Select("email").
		Where("LOWER(nickname) = ?", strings.ToLower(nickname)).
		First(&user).Error
	if err != nil {
		return "", translate(err, "nickname", nickname)
	}
	return user.Email, nil
}

// UpdateLastLogin 更新用户最后登录时间
func (s *Store) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	at = at.UTC()
	res := s.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"last_login_at": at, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "user", userID)
	}
	return nil
}

// ListUsers 列出用户（支持分页和按邮箱/昵称搜索）
func (s *Store) ListUsers(ctx context.Context, page, pageSize int, search string) ([]*domain.User, int, error) {
	query := s.db.WithContext(ctx).Model(&domain.User{})
	if search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(nickname) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize > 0 {
		query = query.Offset((page - 1) * pageSize).Limit(pageSize)
	}

	var users []*domain.User
	if err := query.Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, int(total), nil
}

// ========== Stats Repository ==========

type categoryCount struct {
	Category domain.LetterCategory
	Total    int
}

// GetStatistics 获取系统统计信息
func (s *Store) GetStatistics(ctx context.Context, archivedBefore time.Time) (*domain.Statistics, error) {
	db := s.db.WithContext(ctx)
	stats := &domain.Statistics{LettersByCategory: make(map[domain.LetterCategory]int)}

	var rows []categoryCount
	if err := db.Model(&domain.Letter{}).Select("category, COUNT(*) AS total").Group("category").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		stats.LettersByCategory[r.Category] = r.Total
		stats.TotalLetters += r.Total
	}

	counts := []struct {
		dst   *int
		query *gorm.DB
	}{
		{&stats.TotalUsers, db.Model(&domain.User{})},
		{&stats.TotalReceipts, db.Model(&domain.ReadReceipt{})},
		{&stats.TotalCollectibles, db.Model(&domain.Collectible{})},
		{&stats.TotalAwards, db.Model(&domain.CollectibleAward{})},
		{&stats.ArchivedLetters, db.Model(&domain.Letter{}).
			Where("category = ? AND created_at < ?", domain.CategoryUser, archivedBefore.UTC())},
	}
	for _, c := range counts {
		var n int64
		if err := c.query.Count(&n).Error; err != nil {
			return nil, err
		}
		*c.dst = int(n)
	}
	stats.ActiveUserLetters = stats.LettersByCategory[domain.CategoryUser] - stats.ArchivedLetters
	return stats, nil
}

// Health 检查数据库连接
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
