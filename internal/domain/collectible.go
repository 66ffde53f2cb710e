package domain

import "time"

// AwardTrigger 收藏品的获得方式
type AwardTrigger string

const (
	TriggerRead    AwardTrigger = "read"    // 读完携带收藏品的信件
	TriggerDeposit AwardTrigger = "deposit" // 向携带收藏品的邮筒投递回信
)

// Collectible 收藏品（邮票）定义
type Collectible struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name        string    `json:"name" gorm:"type:varchar(100);not null"`
	Description string    `json:"description" gorm:"type:text"`
	ImagePath   string    `json:"imagePath,omitempty" gorm:"type:varchar(255)"`
	CreatedBy   string    `json:"createdBy" gorm:"type:varchar(36)"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CollectibleAward 用户获得的收藏品
//
// AwardKey 决定唯一性：阅读获得按信件计（read:<letterID>），
// 投递获得按收藏品定义计（deposit:<collectibleID>），重复投递累加 Count。
type CollectibleAward struct {
	ID             string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID         string       `json:"userId" gorm:"type:varchar(36);not null;uniqueIndex:idx_award_user_key"`
	AwardKey       string       `json:"-" gorm:"type:varchar(80);not null;uniqueIndex:idx_award_user_key"`
	CollectibleID  string       `json:"collectibleId" gorm:"type:varchar(36);not null;index"`
	SourceLetterID string       `json:"sourceLetterId" gorm:"type:varchar(36)"`
	Trigger        AwardTrigger `json:"trigger" gorm:"type:varchar(20)"`
	Count          int          `json:"count" gorm:"not null;default:1"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// ReadAwardKey 阅读获得的唯一键
func ReadAwardKey(letterID string) string {
	return "read:" + letterID
}

// DepositAwardKey 投递获得的唯一键
func DepositAwardKey(collectibleID string) string {
	return "deposit:" + collectibleID
}

// AwardWithCollectible 收藏品及其定义，用于列表展示
type AwardWithCollectible struct {
	CollectibleAward
	Collectible *Collectible `json:"collectible,omitempty"`
}
