package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/storage"
)

// 分页默认值
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// 信件事件类型，由实时推送转发给所有在线客户端
const (
	EventLetterPlaced  = "letter_placed"
	EventLetterUpdated = "letter_updated"
	EventLetterRemoved = "letter_removed"
)

// LetterEvent 信件变化事件
type LetterEvent struct {
	Type     string                `json:"type"`
	LetterID string                `json:"letterId"`
	Category domain.LetterCategory `json:"category"`
	Lat      float64               `json:"lat"`
	Lng      float64               `json:"lng"`
}

// EventPublisher 接收信件变化事件
type EventPublisher interface {
	PublishLetterEvent(ctx context.Context, event LetterEvent)
}

func newLetterEvent(kind string, l *domain.Letter) LetterEvent {
	return LetterEvent{Type: kind, LetterID: l.ID, Category: l.Category, Lat: l.Lat, Lng: l.Lng}
}

// ImageUpload 随请求提交的图片
type ImageUpload struct {
	Data []byte
}

// PageResult 分页结果
type PageResult[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

func newPageResult[T any](items []T, total, page, pageSize int) *PageResult[T] {
	if items == nil {
		items = []T{}
	}
	return &PageResult[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
}

// normalizePage 设置默认分页
func normalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// objectPath 生成对象存储路径：<prefix>/<ownerID>/<uuid><ext>
func objectPath(prefix, ownerID, ext string) string {
	return strings.Join([]string{prefix, ownerID, uuid.NewString() + ext}, "/")
}

// removeObjects 尽力删除已上传的对象，失败只记录日志
func removeObjects(ctx context.Context, objects storage.ObjectStore, log *zap.Logger, paths ...string) {
	var nonEmpty []string
	for _, p := range paths {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) == 0 {
		return
	}
	if err := objects.Remove(context.WithoutCancel(ctx), nonEmpty...); err != nil {
		log.Warn("Failed to remove objects", zap.Strings("paths", nonEmpty), zap.Error(err))
	}
}

func strPtr(s string) *string { return &s }
