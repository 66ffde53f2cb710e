package domain

import (
	"strings"
	"time"
)

// LetterCategory 信件类别
type LetterCategory string

const (
	CategoryOfficial     LetterCategory = "official"      // 运营方放置的信件，永不过期
	CategoryUser         LetterCategory = "user"          // 用户放置的限时信件
	CategoryPostBox      LetterCategory = "postbox"       // 邮筒，接受回信投递
	CategoryPostBoxReply LetterCategory = "postbox_reply" // 投递到邮筒里的回信
)

// Valid 判断类别是否合法
func (c LetterCategory) Valid() bool {
	switch c {
	case CategoryOfficial, CategoryUser, CategoryPostBox, CategoryPostBoxReply:
		return true
	}
	return false
}

// TopLevel 判断是否为可直接放置在地图上的类别
func (c LetterCategory) TopLevel() bool {
	return c == CategoryOfficial || c == CategoryUser || c == CategoryPostBox
}

// PageDelimiter 正文分页使用的保留分隔符
const PageDelimiter = "\n" + pageMarker + "\n"

// pageMarker 页面内容中禁止出现的标记
const pageMarker = "<<<page>>>"

// Coordinates 经纬度坐标
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Letter 表示放置在地图上的信件（含邮筒与回信）
type Letter struct {
	ID            string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Category      LetterCategory `json:"category" gorm:"type:varchar(20);not null;index"`
	ParentID      *string        `json:"parentId,omitempty" gorm:"type:varchar(36);index"` // 回信所属邮筒
	Lat           float64        `json:"lat" gorm:"not null"`
	Lng           float64        `json:"lng" gorm:"not null"`
	Title         string         `json:"title" gorm:"type:varchar(100)"`
	Body          string         `json:"body,omitempty" gorm:"type:text"`
	Secret        *string        `json:"-" gorm:"type:varchar(100)"` // 不返回给前端
	OwnerID       *string        `json:"ownerId,omitempty" gorm:"type:varchar(36);index"`
	CollectibleID *string        `json:"collectibleId,omitempty" gorm:"type:varchar(36)"`
	ImagePath     string         `json:"imagePath,omitempty" gorm:"type:varchar(255)"`
	CreatedAt     time.Time      `json:"createdAt" gorm:"index"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Coordinates 返回信件坐标
func (l *Letter) Coordinates() Coordinates {
	return Coordinates{Lat: l.Lat, Lng: l.Lng}
}

// HasSecret 判断信件是否设置了暗号
func (l *Letter) HasSecret() bool {
	return l.Secret != nil && *l.Secret != ""
}

// Pages 按保留分隔符拆分正文
func (l *Letter) Pages() []string {
	return SplitPages(l.Body)
}

// SplitPages 将正文拆分为页
func SplitPages(body string) []string {
	if body == "" {
		return []string{}
	}
	return strings.Split(body, PageDelimiter)
}

// JoinPages 将多页正文合并为一个文本
func JoinPages(pages []string) string {
	return strings.Join(pages, PageDelimiter)
}

// Redacted 返回去掉正文与图片的副本，用于未解锁或仅"附近"的展示
func (l *Letter) Redacted() *Letter {
	cp := *l
	cp.Body = ""
	cp.ImagePath = ""
	cp.Secret = nil
	return &cp
}
