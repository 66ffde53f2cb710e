package httptransport

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/middleware"
	"okitegami/backend/internal/service"
)

// MediaSource 读取已上传的图片
type MediaSource interface {
	Open(path string) ([]byte, error)
}

// MediaHandler 图片上传与访问
type MediaHandler struct {
	letters  *service.LetterService
	source   MediaSource
	maxBytes int64
	log      *zap.Logger
}

// NewMediaHandler 创建图片处理器
func NewMediaHandler(letters *service.LetterService, source MediaSource, maxBytes int64, log *zap.Logger) *MediaHandler {
	return &MediaHandler{
		letters:  letters,
		source:   source,
		maxBytes: maxBytes,
		log:      log.Named("media"),
	}
}

// readFormImage 读取 multipart 表单中的图片，超出上限时返回校验错误
func readFormImage(c *gin.Context, field string, maxBytes int64) (*service.ImageUpload, error) {
	file, _, err := c.Request.FormFile(field)
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, domain.NewValidationError(field, "invalid multipart upload")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, domain.NewValidationError(field, "failed to read upload")
	}
	if int64(len(data)) > maxBytes {
		return nil, domain.NewValidationError(field, "image is too large")
	}
	return imageUpload(data), nil
}

// Upload godoc
// @Summary 上传图片
// @Description 上传一张图片，返回对象路径，修改信件时通过 imagePath 引用
// @Tags Media
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "图片"
// @Success 201 {object} Response{data=object{path=string,url=string}}
// @Failure 400 {object} Response
// @Security BearerAuth
// @Router /v1/media [post]
func (h *MediaHandler) Upload(c *gin.Context) {
	img, err := readFormImage(c, "file", h.maxBytes)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	if img == nil {
		RespondError(c, h.log, domain.NewValidationError("image", "file is required"))
		return
	}
	path, err := h.letters.UploadMedia(c.Request.Context(), middleware.ViewerFrom(c), img)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Created(c, gin.H{"path": path, "url": h.letters.MediaURL(path)})
}

// Serve 返回已上传的图片，路径只允许 letters/ 与 collectibles/ 前缀
func (h *MediaHandler) Serve(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")
	if !strings.HasPrefix(path, "letters/") && !strings.HasPrefix(path, "collectibles/") {
		RespondError(c, h.log, domain.ErrNotFound)
		return
	}
	data, err := h.source.Open(path)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=86400, immutable")
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}
