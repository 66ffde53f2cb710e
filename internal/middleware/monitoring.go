package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"okitegami/backend/internal/monitoring"
)

// HTTPMetrics HTTP 指标中间件
//
// 以路由模板作为 endpoint 标签，未匹配的路由统一记为 unmatched。
func HTTPMetrics(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RecordHTTPRequest(
			c.Request.Method,
			endpoint,
			strconv.Itoa(status),
			time.Since(start),
			int64(c.Writer.Size()),
		)

		if status >= http.StatusInternalServerError {
			metrics.RecordError("http_error", "http")
		}
	}
}
