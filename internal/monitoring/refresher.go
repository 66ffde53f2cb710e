package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"okitegami/backend/internal/storage"
)

// StatsRefresher 定期从存储读取统计数据并更新仪表类指标
type StatsRefresher struct {
	stats      storage.StatsRepository
	metrics    *Metrics
	expiration time.Duration
	logger     *zap.Logger
	pool       func() int // 可选：数据库连接数
}

// NewStatsRefresher 创建统计刷新器
func NewStatsRefresher(stats storage.StatsRepository, metrics *Metrics, expiration time.Duration, logger *zap.Logger) *StatsRefresher {
	return &StatsRefresher{stats: stats, metrics: metrics, expiration: expiration, logger: logger}
}

// WithPoolStats 设置数据库连接数来源
func (r *StatsRefresher) WithPoolStats(fn func() int) *StatsRefresher {
	r.pool = fn
	return r
}

// Refresh 刷新一次
func (r *StatsRefresher) Refresh(ctx context.Context) error {
	st, err := r.stats.GetStatistics(ctx, time.Now().UTC().Add(-r.expiration))
	if err != nil {
		return err
	}
	active := st.TotalLetters - st.ArchivedLetters
	r.metrics.UpdateLetterCounts(active, st.ArchivedLetters)
	r.metrics.UpdateUsersTotal(st.TotalUsers)
	if r.pool != nil {
		r.metrics.UpdateDatabaseConnections(r.pool())
	}
	return nil
}

// Run 按 interval 刷新，直到 ctx 结束
func (r *StatsRefresher) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("Failed to refresh statistics", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
