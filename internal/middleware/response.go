package middleware

import (
	"github.com/gin-gonic/gin"
)

// 机器可读的错误原因，与 transport/http 的响应保持一致
const (
	ReasonUnauthorized     = "unauthorized"
	ReasonInvalidToken     = "invalid_token"
	ReasonSessionExpired   = "session_expired"
	ReasonPermissionDenied = "permission_denied"
	ReasonRateLimited      = "rate_limited"
	ReasonBodyTooLarge     = "body_too_large"
	ReasonInternal         = "internal"
)

func abortJSON(c *gin.Context, status int, reason, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":   status,
		"msg":    msg,
		"reason": reason,
	})
}
