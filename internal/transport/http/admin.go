package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/middleware"
	"okitegami/backend/internal/service"
)

// AdminHandler 管理API处理器
type AdminHandler struct {
	adminService       *service.AdminService
	collectibleService *service.CollectibleService
	maxImageBytes      int64
	log                *zap.Logger
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(adminService *service.AdminService, collectibleService *service.CollectibleService, maxImageBytes int64, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		adminService:       adminService,
		collectibleService: collectibleService,
		maxImageBytes:      maxImageBytes,
		log:                log.Named("admin"),
	}
}

// ========== 信件管理 ==========

// ListLetters godoc
// @Summary 获取信件列表
// @Description 包含已归档信件与回信（需要管理员权限）
// @Tags Admin
// @Produce json
// @Param category query string false "类别（official/user/postbox/postbox_reply）"
// @Param ownerId query string false "所有者ID"
// @Param includeArchived query bool false "包含已归档的 user 信件"
// @Param page query int false "页码" default(1)
// @Param pageSize query int false "每页数量" default(20)
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Router /v1/admin/letters [get]
func (h *AdminHandler) ListLetters(c *gin.Context) {
	page, pageSize := pageParams(c)
	includeArchived, _ := strconv.ParseBool(c.DefaultQuery("includeArchived", "true"))

	result, err := h.adminService.ListLetters(c.Request.Context(), middleware.ViewerFrom(c), service.ListLettersInput{
		Category:        domain.LetterCategory(c.Query("category")),
		OwnerID:         c.Query("ownerId"),
		IncludeArchived: includeArchived,
		Page:            page,
		PageSize:        pageSize,
	})
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Success(c, result)
}

// GetLetter godoc
// @Summary 获取信件详情
// @Tags Admin
// @Produce json
// @Param id path string true "信件ID"
// @Success 200 {object} Response{data=service.AdminLetter}
// @Failure 404 {object} Response
// @Router /v1/admin/letters/{id} [get]
func (h *AdminHandler) GetLetter(c *gin.Context) {
	letter, err := h.adminService.GetLetter(c.Request.Context(), middleware.ViewerFrom(c), c.Param("id"))
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Success(c, letter)
}

// UpdateLetter godoc
// @Summary 修改信件
// @Description 管理员可修改任意信件并移动 official 信件
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "信件ID"
// @Param request body updateLetterRequest true "修改内容"
// @Success 200 {object} Response{data=service.AdminLetter}
// @Router /v1/admin/letters/{id} [patch]
func (h *AdminHandler) UpdateLetter(c *gin.Context) {
	var req updateLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	input, err := req.input()
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	letter, err := h.adminService.UpdateLetter(c.Request.Context(), middleware.ViewerFrom(c), c.Param("id"), input)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Success(c, letter)
}

// DeleteLetter godoc
// @Summary 删除信件
// @Tags Admin
// @Param id path string true "信件ID"
// @Success 204
// @Router /v1/admin/letters/{id} [delete]
func (h *AdminHandler) DeleteLetter(c *gin.Context) {
	if err := h.adminService.DeleteLetter(c.Request.Context(), middleware.ViewerFrom(c), c.Param("id")); err != nil {
		RespondError(c, h.log, err)
		return
	}
	NoContent(c)
}

// ========== 用户管理 ==========

// ListUsers godoc
// @Summary 获取用户列表
// @Description 获取系统中的用户列表（需要管理员权限）
// @Tags Admin
// @Produce json
// @Param page query int false "页码" default(1)
// @Param pageSize query int false "每页数量" default(20)
// @Param search query string false "搜索关键词（邮箱/昵称）"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Router /v1/admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, pageSize := pageParams(c)
	result, err := h.adminService.ListUsers(c.Request.Context(), middleware.ViewerFrom(c), service.ListUsersInput{
		Page:     page,
		PageSize: pageSize,
		Search:   c.Query("search"),
	})
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Success(c, result)
}

// GetStatistics godoc
// @Summary 获取系统统计
// @Tags Admin
// @Produce json
// @Success 200 {object} Response{data=domain.Statistics}
// @Router /v1/admin/statistics [get]
func (h *AdminHandler) GetStatistics(c *gin.Context) {
	stats, err := h.adminService.GetStatistics(c.Request.Context(), middleware.ViewerFrom(c))
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Success(c, stats)
}

// ========== 收藏品管理 ==========

// collectibleForm 从 multipart 表单读取收藏品定义，图片字段为 image
func (h *AdminHandler) collectibleForm(c *gin.Context) (service.CollectibleInput, error) {
	img, err := readFormImage(c, "image", h.maxImageBytes)
	if err != nil {
		return service.CollectibleInput{}, err
	}
	return service.CollectibleInput{
		Name:        c.PostForm("name"),
		Description: c.PostForm("description"),
		Image:       img,
	}, nil
}

// ListCollectibles godoc
// @Summary 收藏品定义列表
// @Tags Admin - Collectibles
// @Produce json
// @Success 200 {object} Response{data=[]domain.Collectible}
// @Router /v1/admin/collectibles [get]
func (h *AdminHandler) ListCollectibles(c *gin.Context) {
	items, err := h.collectibleService.List(c.Request.Context())
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Success(c, items)
}

// CreateCollectible godoc
// @Summary 创建收藏品定义
// @Tags Admin - Collectibles
// @Accept multipart/form-data
// @Produce json
// @Param name formData string true "名称"
// @Param description formData string false "说明"
// @Param image formData file false "图片"
// @Success 201 {object} Response{data=domain.Collectible}
// @Router /v1/admin/collectibles [post]
func (h *AdminHandler) CreateCollectible(c *gin.Context) {
	input, err := h.collectibleForm(c)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	item, err := h.collectibleService.Create(c.Request.Context(), middleware.ViewerFrom(c), input)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Created(c, item)
}

// GetCollectible godoc
// @Summary 收藏品定义详情
// @Tags Admin - Collectibles
// @Produce json
// @Param id path string true "收藏品ID"
// @Success 200 {object} Response{data=domain.Collectible}
// @Router /v1/admin/collectibles/{id} [get]
func (h *AdminHandler) GetCollectible(c *gin.Context) {
	item, err := h.collectibleService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Success(c, item)
}

// UpdateCollectible godoc
// @Summary 修改收藏品定义
// @Description 未上传图片时保留原图
// @Tags Admin - Collectibles
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "收藏品ID"
// @Success 200 {object} Response{data=domain.Collectible}
// @Router /v1/admin/collectibles/{id} [patch]
func (h *AdminHandler) UpdateCollectible(c *gin.Context) {
	input, err := h.collectibleForm(c)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	item, err := h.collectibleService.Update(c.Request.Context(), middleware.ViewerFrom(c), c.Param("id"), input)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Success(c, item)
}

// DeleteCollectible godoc
// @Summary 删除收藏品定义
// @Tags Admin - Collectibles
// @Param id path string true "收藏品ID"
// @Success 204
// @Router /v1/admin/collectibles/{id} [delete]
func (h *AdminHandler) DeleteCollectible(c *gin.Context) {
	if err := h.collectibleService.Delete(c.Request.Context(), middleware.ViewerFrom(c), c.Param("id")); err != nil {
		RespondError(c, h.log, err)
		return
	}
	NoContent(c)
}
