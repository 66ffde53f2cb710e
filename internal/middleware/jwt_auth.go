package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"okitegami/backend/internal/domain"
)

const viewerKey = "viewer"

// Authenticator 将访问令牌解析为访问者身份
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Viewer, error)
}

// JWTAuth JWT认证中间件
type JWTAuth struct {
	auth Authenticator
	log  *zap.Logger
}

// NewJWTAuth 创建JWT认证中间件
func NewJWTAuth(auth Authenticator, log *zap.Logger) *JWTAuth {
	return &JWTAuth{
		auth: auth,
		log:  log.Named("auth"),
	}
}

// RequireAuth 要求JWT认证
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			abortJSON(c, http.StatusUnauthorized, ReasonUnauthorized, "ログインが必要です")
			return
		}
		if !ja.authenticate(c, token) {
			return
		}
		c.Next()
	}
}

// OptionalAuth 可选的JWT认证
//
// 未携带令牌时以匿名身份继续；令牌无效或会话过期时返回 401，客户端据此重新登录。
func (ja *JWTAuth) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			c.Next()
			return
		}
		if !ja.authenticate(c, token) {
			return
		}
		c.Next()
	}
}

func (ja *JWTAuth) authenticate(c *gin.Context, token string) bool {
	viewer, err := ja.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			abortJSON(c, http.StatusUnauthorized, ReasonSessionExpired, "セッションの有効期限が切れました。もう一度ログインしてください")
			return false
		}
		ja.log.Debug("invalid token", zap.Error(err), zap.String("ip", c.ClientIP()))
		abortJSON(c, http.StatusUnauthorized, ReasonInvalidToken, "認証トークンが無効です")
		return false
	}
	c.Set(viewerKey, viewer)
	return true
}

// ViewerFrom 取出当前请求的访问者，未认证时为匿名
func ViewerFrom(c *gin.Context) domain.Viewer {
	if v, ok := c.Get(viewerKey); ok {
		if viewer, ok := v.(domain.Viewer); ok {
			return viewer
		}
	}
	return domain.Viewer{}
}

// ExtractToken 从 Authorization 头或 cookie 提取令牌
func ExtractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	token, err := c.Cookie("access_token")
	if err == nil && token != "" {
		return token
	}
	return ""
}
