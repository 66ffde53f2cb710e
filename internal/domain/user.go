package domain

import "time"

// User 表示注册用户（个人资料）
type User struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string     `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	Nickname     string     `json:"nickname" gorm:"uniqueIndex;type:varchar(32);not null"`
	PasswordHash string     `json:"-" gorm:"type:varchar(255)"` // 不返回给前端
	IsActive     bool       `json:"isActive" gorm:"default:true"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// Viewer 表示发起请求的身份，匿名访问时 ID 为空
type Viewer struct {
	ID      string
	Email   string
	IsAdmin bool
}

// Anonymous 判断是否为匿名访问者
func (v Viewer) Anonymous() bool {
	return v.ID == ""
}

// IsOwner 判断访问者是否为信件的所有者
func (v Viewer) IsOwner(l *Letter) bool {
	if v.Anonymous() || l == nil || l.OwnerID == nil {
		return false
	}
	return *l.OwnerID == v.ID
}

// CanModify 所有者或管理员可以修改、删除信件
func (v Viewer) CanModify(l *Letter) bool {
	return v.IsAdmin || v.IsOwner(l)
}

// ReadReceipt 记录访问者已经通过某封信件的暗号
type ReadReceipt struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	LetterID  string    `json:"letterId" gorm:"type:varchar(36);not null;uniqueIndex:idx_receipt_letter_viewer"`
	ViewerID  string    `json:"viewerId" gorm:"type:varchar(36);not null;uniqueIndex:idx_receipt_letter_viewer"`
	CreatedAt time.Time `json:"createdAt"`
}
