package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAdmin 要求管理员权限，需放在 RequireAuth 之后
//
// 管理员身份由配置的邮箱白名单决定，认证时已写入 Viewer。
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer := ViewerFrom(c)
		if viewer.Anonymous() {
			abortJSON(c, http.StatusUnauthorized, ReasonUnauthorized, "ログインが必要です")
			return
		}
		if !viewer.IsAdmin {
			abortJSON(c, http.StatusForbidden, ReasonPermissionDenied, "管理者権限が必要です")
			return
		}
		c.Next()
	}
}
