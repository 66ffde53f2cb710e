package proximity

import (
	"time"

	"okitegami/backend/internal/domain"
)

// IsActive 判断信件是否仍在地图上有效
//
// 只有 user 类别会过期，边界包含在内：now-createdAt == window 时仍有效。
func IsActive(createdAt time.Time, category domain.LetterCategory, now time.Time, window time.Duration) bool {
	if category != domain.CategoryUser {
		return true
	}
	return now.Sub(createdAt) <= window
}

// Policy 全局唯一的过期窗口
type Policy struct {
	Window time.Duration
}

// NewPolicy 按小时数创建过期策略
func NewPolicy(hours int) Policy {
	return Policy{Window: time.Duration(hours) * time.Hour}
}

// IsActive 判断信件在 now 时刻是否有效
func (p Policy) IsActive(l *domain.Letter, now time.Time) bool {
	return IsActive(l.CreatedAt, l.Category, now, p.Window)
}

// ExpiresAt 返回 user 信件的归档时刻，其他类别返回 nil
func (p Policy) ExpiresAt(l *domain.Letter) *time.Time {
	if l.Category != domain.CategoryUser {
		return nil
	}
	t := l.CreatedAt.Add(p.Window)
	return &t
}
