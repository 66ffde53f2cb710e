package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	// 默认请求体大小限制
	DefaultBodyLimit = 1 * 1024 * 1024 // 1MB - 普通 JSON 请求

	// multipart 上传额外预留的表单开销
	multipartOverhead = 64 * 1024
)

// BodySizeLimit 限制请求体大小的中间件
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			abortJSON(c, http.StatusRequestEntityTooLarge, ReasonBodyTooLarge, "リクエストが大きすぎます")
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Header("X-Max-Body-Size", strconv.FormatInt(maxBytes, 10))
		c.Next()
	}
}

// UploadBodyLimit 图片上传接口的限制，按单张图片上限加表单开销计算
func UploadBodyLimit(maxImageBytes int64) gin.HandlerFunc {
	return BodySizeLimit(maxImageBytes + multipartOverhead)
}

// JSONBodyLimit 携带 base64 图片的 JSON 接口上限：images 张图片编码后的长度加普通正文
func JSONBodyLimit(maxImageBytes int64, images int) int64 {
	return int64(images)*base64Len(maxImageBytes) + DefaultBodyLimit
}

// base64Len 标准 base64 编码后的长度（含填充）
func base64Len(n int64) int64 {
	return (n + 2) / 3 * 4
}
