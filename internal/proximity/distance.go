// Package proximity 实现基于位置的可见性规则：距离、过期、可见性分级、暗号解锁和重复放置检查。
//
// 本包只包含纯函数与无副作用的状态机，HTTP、WebSocket 和管理后台共用同一套规则。
package proximity

import (
	"math"

	"okitegami/backend/internal/domain"
)

// EarthRadiusMeters 平均地球半径（IUGG）
const EarthRadiusMeters = 6371008.8

// Distance 使用 haversine 公式计算两点间的大圆距离（米）
func Distance(a, b domain.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	// 浮点误差可能让 h 略大于 1
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}
