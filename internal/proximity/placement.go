package proximity

import (
	"time"

	"okitegami/backend/internal/domain"
)

// CheckPlacement 检查新的 user 信件是否离已有的有效 user 信件过近
//
// 其他类别不受限制。过近时返回 *domain.PlacementRejectedError，指向最近的一封。
func CheckPlacement(proposed domain.Coordinates, category domain.LetterCategory, existing []*domain.Letter,
	minDistance float64, policy Policy, now time.Time) error {
	if category != domain.CategoryUser {
		return nil
	}

	var nearest *domain.PlacementRejectedError
	for _, l := range existing {
		if l.Category != domain.CategoryUser || !policy.IsActive(l, now) {
			continue
		}
		d := Distance(proposed, l.Coordinates())
		if d >= minDistance {
			continue
		}
		if nearest == nil || d < nearest.Distance {
			nearest = &domain.PlacementRejectedError{NearestID: l.ID, Distance: d, Required: minDistance}
		}
	}
	if nearest != nil {
		return nearest
	}
	return nil
}
