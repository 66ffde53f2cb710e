package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"okitegami/backend/internal/storage"
)

const (
	checkTimeout  = 3 * time.Second
	maxGoroutines  = 10000
)

// PingFunc 依赖的连通性检查
type PingFunc func(ctx context.Context) error

// Checker 存活与就绪探针
//
// 存活只检查存储与进程本身；就绪额外检查数据库连接池和 Redis。
type Checker struct {
	health healthcheck.Handler
	logger *zap.Logger
}

// NewChecker 创建探针，存储检查同时作为存活检查
func NewChecker(store storage.Store, logger *zap.Logger) *Checker {
	c := &Checker{
		health: healthcheck.NewHandler(),
		logger: logger.Named("health"),
	}
	c.health.AddLivenessCheck("store", c.wrap("store", store.Health))
	c.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(maxGoroutines))
	return c
}

// AddReadiness 添加就绪检查，例如 pgx 连接池与 Redis 的 Ping
func (c *Checker) AddReadiness(name string, ping PingFunc) {
	c.health.AddReadinessCheck(name, c.wrap(name, ping))
}

func (c *Checker) wrap(name string, ping PingFunc) healthcheck.Check {
	return healthcheck.Timeout(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		if err := ping(ctx); err != nil {
			c.logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			return err
		}
		return nil
	}, checkTimeout+time.Second)
}

// LiveHandler 存活探针
func (c *Checker) LiveHandler() http.HandlerFunc {
	return c.health.LiveEndpoint
}

// ReadyHandler 就绪探针，失败时返回 503
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return c.health.ReadyEndpoint
}
