package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"okitegami/backend/internal/cache"
	"okitegami/backend/internal/monitoring"
)

const (
	limiterIdleTTL = 10 * time.Minute
	maxTrackedIPs  = 100000
)

// IPRateLimiter 写接口的单 IP 令牌桶限流
type IPRateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *cache.LocalCache[*rate.Limiter]
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewIPRateLimiter 创建限流器，rps <= 0 时不限流
func NewIPRateLimiter(rps float64, burst int, metrics *monitoring.Metrics, log *zap.Logger) *IPRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &IPRateLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: cache.NewLocalCache[*rate.Limiter](maxTrackedIPs, limiterIdleTTL),
		metrics:  metrics,
		log:      log.Named("ratelimit"),
	}
}

// Run 定期清理空闲 IP 的限流器
func (l *IPRateLimiter) Run(ctx context.Context) {
	l.limiters.Run(ctx, limiterIdleTTL)
}

func (l *IPRateLimiter) limiter(ip string) *rate.Limiter {
	if lim, ok := l.limiters.Get(ip); ok {
		// 刷新过期时间
		l.limiters.Set(ip, lim, limiterIdleTTL)
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.limiters.Set(ip, lim, limiterIdleTTL)
	return lim
}

// Middleware 只对写请求限流，GET/HEAD/OPTIONS 直接放行
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	if l == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if l.limit <= 0 {
			c.Next()
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		ip := c.ClientIP()
		lim := l.limiter(ip)
		c.Header("X-RateLimit-Limit", strconv.Itoa(l.burst))
		if !lim.Allow() {
			l.metrics.RecordRateLimitBlock("ip")
			l.log.Debug("request rate limited", zap.String("ip", ip), zap.String("path", c.FullPath()))
			c.Header("Retry-After", "1")
			abortJSON(c, http.StatusTooManyRequests, ReasonRateLimited, "リクエストが多すぎます。しばらくしてから再度お試しください")
			return
		}
		c.Next()
	}
}
