package storage

import (
	"context"
	"errors"
	"time"

	"okitegami/backend/internal/domain"
)

// ErrLockTimeout 在等待放置锁超时时返回
var ErrLockTimeout = errors.New("placement lock timeout")

// LetterRepository 定义信件数据存取操作。
//
// 查不到时返回包装了 domain.ErrNotFound 的错误。
type LetterRepository interface {
	CreateLetter(ctx context.Context, letter *domain.Letter) error
	GetLetter(ctx context.Context, id string) (*domain.Letter, error)
	UpdateLetter(ctx context.Context, letter *domain.Letter) error
	// DeleteLetter 删除信件及其回信和已读记录，返回被删除的信件（含回信）
	DeleteLetter(ctx context.Context, id string) ([]*domain.Letter, error)
	// ListLetters 按条件列出信件，按创建时间倒序，返回当前页和总数
	ListLetters(ctx context.Context, filter domain.LetterFilter) ([]*domain.Letter, int, error)
	// CountReplies 统计某用户在 [since, until) 内投递到邮筒的回信数
	CountReplies(ctx context.Context, parentID, ownerID string, since, until time.Time) (int, error)
}

// ReceiptRepository 定义已读记录数据存取操作。
type ReceiptRepository interface {
	// InsertReceipt 幂等插入，(letter_id, viewer_id) 已存在时返回 false
	InsertReceipt(ctx context.Context, receipt *domain.ReadReceipt) (bool, error)
	HasReceipt(ctx context.Context, letterID, viewerID string) (bool, error)
	DeleteReceiptsByLetter(ctx context.Context, letterID string) (int, error)
}

// CollectibleRepository 定义收藏品定义数据存取操作。
type CollectibleRepository interface {
	CreateCollectible(ctx context.Context, c *domain.Collectible) error
	GetCollectible(ctx context.Context, id string) (*domain.Collectible, error)
	ListCollectibles(ctx context.Context) ([]*domain.Collectible, error)
	UpdateCollectible(ctx context.Context, c *domain.Collectible) error
	DeleteCollectible(ctx context.Context, id string) error
}

// AwardRepository 定义用户收藏品数据存取操作。
//
// 两个写操作都依赖 (user_id, award_key) 唯一约束，不做应用层先查后写。
type AwardRepository interface {
	// InsertAwardIfAbsent 不存在时插入（count=1），已存在时返回 false
	InsertAwardIfAbsent(ctx context.Context, award *domain.CollectibleAward) (bool, error)
	// IncrementAward 不存在时插入，存在时 count+1，返回最新记录
	IncrementAward(ctx context.Context, award *domain.CollectibleAward) (*domain.CollectibleAward, error)
	ListAwardsByUser(ctx context.Context, userID string) ([]*domain.CollectibleAward, error)
}

// UserRepository 定义用户数据存取操作。
type UserRepository interface {
	// CreateUser 邮箱或昵称（不区分大小写）重复时返回 domain.ErrConflict
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	// EmailForNickname 昵称登录时查找对应邮箱
	EmailForNickname(ctx context.Context, nickname string) (string, error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
	ListUsers(ctx context.Context, page, pageSize int, search string) ([]*domain.User, int, error)
}

// StatsRepository 定义统计查询。
type StatsRepository interface {
	// GetStatistics 创建时间早于 archivedBefore 的 user 信件计为已归档
	GetStatistics(ctx context.Context, archivedBefore time.Time) (*domain.Statistics, error)
}

// PlacementLocker 串行化"检查间距-插入"过程
type PlacementLocker interface {
	// Lock 获取锁，返回释放函数；ctx 取消或超时时返回 ErrLockTimeout
	Lock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// ObjectStore 图片对象存储
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	PublicURL(path string) string
	// Remove 删除对象，不存在的路径忽略
	Remove(ctx context.Context, paths ...string) error
}

// Store 定义完整的存储接口。
type Store interface {
	LetterRepository
	ReceiptRepository
	CollectibleRepository
	AwardRepository
	UserRepository
	StatsRepository

	Health(ctx context.Context) error
	Close() error
}
