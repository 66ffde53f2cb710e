package proximity

import (
	"fmt"
	"time"

	"okitegami/backend/internal/domain"
)

// Visibility 信件对访问者的可见等级
type Visibility int

const (
	Hidden    Visibility = iota // 不显示
	Near                        // 附近提示，不开放内容
	Reachable                   // 可以打开（仍受暗号限制）
)

func (v Visibility) String() string {
	switch v {
	case Near:
		return "near"
	case Reachable:
		return "reachable"
	default:
		return "hidden"
	}
}

// MarshalText 以字符串形式输出到 JSON
func (v Visibility) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText 解析 MarshalText 的输出
func (v *Visibility) UnmarshalText(text []byte) error {
	switch string(text) {
	case "hidden":
		*v = Hidden
	case "near":
		*v = Near
	case "reachable":
		*v = Reachable
	default:
		return fmt.Errorf("unknown visibility %q", text)
	}
	return nil
}

// Classifier 可见性分级器
type Classifier struct {
	UnlockDistance       float64
	NotificationDistance float64
	Policy               Policy
}

// NewClassifier 创建分级器，通知距离必须严格大于解锁距离
func NewClassifier(unlockDistance, notificationDistance float64, policy Policy) (*Classifier, error) {
	if unlockDistance <= 0 {
		return nil, fmt.Errorf("unlock distance must be positive, got %v", unlockDistance)
	}
	if notificationDistance <= unlockDistance {
		return nil, fmt.Errorf("notification distance (%v) must be greater than unlock distance (%v)",
			notificationDistance, unlockDistance)
	}
	return &Classifier{
		UnlockDistance:       unlockDistance,
		NotificationDistance: notificationDistance,
		Policy:               policy,
	}, nil
}

// Classify 计算信件对访问者的可见等级
//
// pos 为 nil 表示尚未定位。所有者和管理员不受距离限制。
func (c *Classifier) Classify(pos *domain.Coordinates, l *domain.Letter, viewer domain.Viewer, now time.Time) Visibility {
	if !c.Policy.IsActive(l, now) {
		return Hidden
	}
	if viewer.IsAdmin || viewer.IsOwner(l) {
		return Reachable
	}
	if pos == nil {
		return Hidden
	}
	return c.ClassifyDistance(Distance(*pos, l.Coordinates()))
}

// ClassifyDistance 仅按距离分级，阈值包含在内
func (c *Classifier) ClassifyDistance(d float64) Visibility {
	switch {
	case d <= c.UnlockDistance:
		return Reachable
	case d <= c.NotificationDistance:
		return Near
	default:
		return Hidden
	}
}
