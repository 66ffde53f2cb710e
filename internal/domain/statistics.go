package domain

import "time"

// Statistics 系统统计数据（管理后台）
type Statistics struct {
	TotalUsers        int                    `json:"totalUsers"`
	TotalLetters      int                    `json:"totalLetters"`
	LettersByCategory map[LetterCategory]int `json:"lettersByCategory"`
	ActiveUserLetters int                    `json:"activeUserLetters"`
	ArchivedLetters   int                    `json:"archivedLetters"`
	TotalReceipts     int                    `json:"totalReceipts"`
	TotalCollectibles int                    `json:"totalCollectibles"`
	TotalAwards       int                    `json:"totalAwards"`
}

// LetterFilter 信件列表过滤条件，零值字段不参与过滤
type LetterFilter struct {
	Categories    []LetterCategory
	OwnerID       *string
	ParentID      *string
	CreatedAfter  *time.Time // 含边界
	CreatedBefore *time.Time // 不含边界
	// ActiveAfter 非空时排除 created_at 早于它的 user 信件（即已归档的），其他类别不受影响
	ActiveAfter   *time.Time
	Page          int        // 从 1 开始，0 表示不分页
	PageSize      int
}
