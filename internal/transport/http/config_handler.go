package httptransport

import (
	"github.com/gin-gonic/gin"

	"okitegami/backend/internal/service"
)

// ConfigHandler 公开配置API处理器
type ConfigHandler struct {
	configService *service.ConfigService
}

// NewConfigHandler 创建配置处理器
func NewConfigHandler(configService *service.ConfigService) *ConfigHandler {
	return &ConfigHandler{
		configService: configService,
	}
}

// GetPublicConfig godoc
// @Summary 获取公开配置
// @Description 客户端使用的距离、过期和投递阈值（无需认证）
// @Tags Public
// @Produce json
// @Success 200 {object} Response{data=service.PublicConfig}
// @Router /v1/config/public [get]
func (h *ConfigHandler) GetPublicConfig(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=300")
	Success(c, h.configService.GetPublicConfig())
}
