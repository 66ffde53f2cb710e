package security

import (
	"net/http"

	"okitegami/backend/internal/domain"
)

// 允许上传的图片类型及对应扩展名
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageInspector 图片上传检查器
//
// 以文件内容嗅探的类型为准，不信任客户端声明的 Content-Type。
type ImageInspector struct {
	maxBytes int64
}

// NewImageInspector 创建图片检查器
func NewImageInspector(maxBytes int64) *ImageInspector {
	return &ImageInspector{maxBytes: maxBytes}
}

// MaxBytes 允许的最大字节数
func (ii *ImageInspector) MaxBytes() int64 {
	return ii.maxBytes
}

// Inspect 检查图片，返回嗅探到的类型和扩展名
func (ii *ImageInspector) Inspect(field string, data []byte) (contentType, ext string, err error) {
	if len(data) == 0 {
		return "", "", domain.NewValidationError(field, "image is empty")
	}
	if ii.maxBytes > 0 && int64(len(data)) > ii.maxBytes {
		return "", "", domain.NewValidationError(field, "image is too large")
	}

	contentType = http.DetectContentType(data)
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return "", "", domain.NewValidationError(field, "unsupported image type "+contentType)
	}
	return contentType, ext, nil
}
