package httptransport

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/middleware"
	"okitegami/backend/internal/service"
)

// SeenLettersHeader 匿名访问者本地已解锁的信件 ID，逗号分隔
const SeenLettersHeader = "X-Seen-Letters"

const maxSeenLetters = 500

// LetterHandler 信件、回信与奖励接口
type LetterHandler struct {
	letters *service.LetterService
	postbox *service.PostBoxService
	awards  *service.AwardService
	log     *zap.Logger
}

// NewLetterHandler 创建信件处理器
func NewLetterHandler(letters *service.LetterService, postbox *service.PostBoxService, awards *service.AwardService, log *zap.Logger) *LetterHandler {
	return &LetterHandler{
		letters: letters,
		postbox: postbox,
		awards:  awards,
		log:     log.Named("letters"),
	}
}

// positionRequest 请求体中的当前位置，两个字段都缺省表示位置未知
type positionRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (p positionRequest) coordinates() (*domain.Coordinates, error) {
	if p.Lat == nil && p.Lng == nil {
		return nil, nil
	}
	if p.Lat == nil || p.Lng == nil {
		return nil, domain.NewValidationError("coordinates", "lat and lng must be given together")
	}
	pos := domain.Coordinates{Lat: *p.Lat, Lng: *p.Lng}
	if err := domain.ValidateCoordinates(pos); err != nil {
		return nil, err
	}
	return &pos, nil
}

// queryPosition 从 lat/lng 查询参数解析位置
func queryPosition(c *gin.Context) (*domain.Coordinates, error) {
	var req positionRequest
	for name, dst := range map[string]**float64{"lat": &req.Lat, "lng": &req.Lng} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, domain.NewValidationError(name, "must be a number")
		}
		*dst = &v
	}
	return req.coordinates()
}

// seenLetters 读取匿名访问者本地已解锁集合
func seenLetters(c *gin.Context) []string {
	raw := c.GetHeader(SeenLettersHeader)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	seen := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			seen = append(seen, p)
		}
		if len(seen) == maxSeenLetters {
			break
		}
	}
	return seen
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	return page, pageSize
}

func imageUpload(data []byte) *service.ImageUpload {
	if len(data) == 0 {
		return nil
	}
	return &service.ImageUpload{Data: data}
}

// Nearby godoc
// @Summary 附近的信件
// @Description 地图信息流，只返回 Near 与 Reachable 的信件；Near 只有位置与类别
// @Tags Letters
// @Produce json
// @Param lat query number false "纬度"
// @Param lng query number false "经度"
// @Param X-Seen-Letters header string false "匿名访问者本地已解锁的信件"
// @Success 200 {object} Response{data=[]service.NearbyLetter}
// @Failure 400 {object} Response
// @Router /v1/letters/nearby [get]
func (h *LetterHandler) Nearby(c *gin.Context) {
	pos, err := queryPosition(c)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	letters, err := h.letters.Nearby(c.Request.Context(), middleware.ViewerFrom(c), pos, seenLetters(c))
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Success(c, letters)
}

type collectibleDraftRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       []byte `json:"image"`
}

type placeLetterRequest struct {
	Category      domain.LetterCategory    `json:"category"`
	Lat           float64                  `json:"lat"`
	Lng           float64                  `json:"lng"`
	Title         string                   `json:"title"`
	Pages         []string                 `json:"pages"`
	Secret        *string                  `json:"secret"`
	Image         []byte                   `json:"image"` // base64
	CollectibleID *string                  `json:"collectibleId"`
	Collectible   *collectibleDraftRequest `json:"collectible"`
}

// Place godoc
// @Summary 放置信件
// @Description 在当前位置放置信件；附近已有信件时返回 409 与还需移动的米数
// @Tags Letters
// @Accept json
// @Produce json
// @Param request body placeLetterRequest true "信件内容"
// @Success 201 {object} Response{data=domain.Letter}
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Failure 502 {object} Response
// @Security BearerAuth
// @Router /v1/letters [post]
func (h *LetterHandler) Place(c *gin.Context) {
	var req placeLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if req.Category == "" {
		req.Category = domain.CategoryUser
	}

	input := service.PlaceLetterInput{
		Category:      req.Category,
		Position:      domain.Coordinates{Lat: req.Lat, Lng: req.Lng},
		Title:         req.Title,
		Pages:         req.Pages,
		Secret:        req.Secret,
		Image:         imageUpload(req.Image),
		CollectibleID: req.CollectibleID,
	}
	if req.Collectible != nil {
		input.Collectible = &service.CollectibleDraft{
			Name:        req.Collectible.Name,
			Description: req.Collectible.Description,
			Image:       imageUpload(req.Collectible.Image),
		}
	}

	letter, err := h.letters.Place(c.Request.Context(), middleware.ViewerFrom(c), input)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	CreatedWithMsg(c, "手紙を置きました", letter)
}

// Open godoc
// @Summary 打开信件
// @Description 必须在可打开范围内；带暗号且未解锁时不返回正文
// @Tags Letters
// @Produce json
// @Param id path string true "信件ID"
// @Param lat query number true "纬度"
// @Param lng query number true "经度"
// @Success 200 {object} Response{data=service.LetterView}
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /v1/letters/{id}/open [get]
func (h *LetterHandler) Open(c *gin.Context) {
	pos, err := queryPosition(c)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	view, err := h.letters.Open(c.Request.Context(), middleware.ViewerFrom(c), c.Param("id"), pos, seenLetters(c))
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Success(c, view)
}

type unlockRequest struct {
	positionRequest
	Secret string `json:"secret"`
}

// Unlock godoc
// @Summary 用暗号解锁信件
// @Description 暗号不匹配返回 403 且 retryable 为 true，可以无限重试
// @Tags Letters
// @Accept json
// @Produce json
// @Param id path string true "信件ID"
// @Param request body unlockRequest true "暗号与当前位置"
// @Success 200 {object} Response{data=service.LetterView}
// @Failure 403 {object} Response
// @Router /v1/letters/{id}/unlock [post]
func (h *LetterHandler) Unlock(c *gin.Context) {
	var req unlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	pos, err := req.coordinates()
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	view, err := h.letters.Unlock(c.Request.Context(), middleware.ViewerFrom(c), c.Param("id"), pos, req.Secret, seenLetters(c))
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Success(c, view)
}

// Complete godoc
// @Summary 读完信件
// @Description 读完最后一页，信件携带收藏品时发放阅读奖励
// @Tags Letters
// @Accept json
// @Produce json
// @Param id path string true "信件ID"
// @Param request body positionRequest true "当前位置"
// @Success 200 {object} Response{data=service.AwardResult}
// @Router /v1/letters/{id}/complete [post]
func (h *LetterHandler) Complete(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	pos, err := req.coordinates()
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	result, err := h.letters.CompleteReading(c.Request.Context(), middleware.ViewerFrom(c), c.Param("id"), pos, seenLetters(c))
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Success(c, result)
}

type updateLetterRequest struct {
	Title         *string          `json:"title"`
	Pages         []string         `json:"pages"`
	Secret        *string          `json:"secret"`
	ClearSecret   bool             `json:"clearSecret"`
	ImagePath     *string          `json:"imagePath"`
	CollectibleID *string          `json:"collectibleId"`
	Position      *positionRequest `json:"position"`
}

func (r updateLetterRequest) input() (service.UpdateLetterInput, error) {
	in := service.UpdateLetterInput{
		Title:         r.Title,
		Pages:         r.Pages,
		Secret:        r.Secret,
		ClearSecret:   r.ClearSecret,
		ImagePath:     r.ImagePath,
		CollectibleID: r.CollectibleID,
	}
	if r.Position != nil {
		pos, err := r.Position.coordinates()
		if err != nil {
			return in, err
		}
		if pos == nil {
			return in, domain.NewValidationError("coordinates", "lat and lng are required")
		}
		in.Position = pos
	}
	return in, nil
}

// Update godoc
// @Summary 修改信件
// @Description 所有者或管理员；只有管理员可以移动 official 信件
// @Tags Letters
// @Accept json
// @Produce json
// @Param id path string true "信件ID"
// @Param request body updateLetterRequest true "修改内容"
// @Success 200 {object} Response{data=domain.Letter}
// @Failure 403 {object} Response
// @Security BearerAuth
// @Router /v1/letters/{id} [patch]
func (h *LetterHandler) Update(c *gin.Context) {
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
	letter, err := h.letters.Update(c.Request.Context(), middleware.ViewerFrom(c), c.Param("id"), input)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "手紙を更新しました", letter)
}

// Delete godoc
// @Summary 删除信件
// @Description 所有者或管理员；邮筒连同回信一起删除
// @Tags Letters
// @Param id path string true "信件ID"
// @Success 204
// @Failure 403 {object} Response
// @Security BearerAuth
// @Router /v1/letters/{id} [delete]
func (h *LetterHandler) Delete(c *gin.Context) {
	if err := h.letters.Delete(c.Request.Context(), middleware.ViewerFrom(c), c.Param("id")); err != nil {
		RespondError(c, h.log, err)
		return
	}
	NoContent(c)
}

// Archive godoc
// @Summary 我的归档信件
// @Tags Letters
// @Produce json
// @Param page query int false "页码" default(1)
// @Param pageSize query int false "每页数量" default(20)
// @Success 200 {object} Response
// @Security BearerAuth
// @Router /v1/letters/archive [get]
func (h *LetterHandler) Archive(c *gin.Context) {
	page, pageSize := pageParams(c)
	result, err := h.letters.ListArchived(c.Request.Context(), middleware.ViewerFrom(c), page, pageSize)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Success(c, result)
}

type depositRequest struct {
	positionRequest
	Title string   `json:"title"`
	Pages []string `json:"pages"`
	Image []byte   `json:"image"`
}

// Deposit godoc
// @Summary 向邮筒投递回信
// @Description 每天每个邮筒限投 daily_deposit_limit 封，超出返回 429
// @Tags Replies
// @Accept json
// @Produce json
// @Param id path string true "邮筒ID"
// @Param request body depositRequest true "回信内容与当前位置"
// @Success 201 {object} Response{data=service.DepositResult}
// @Failure 429 {object} Response
// @Security BearerAuth
// @Router /v1/letters/{id}/replies [post]
func (h *LetterHandler) Deposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	pos, err := req.coordinates()
	if err != nil {
		RespondError(c, h.log, err)
		return
	}

	result, err := h.postbox.Deposit(c.Request.Context(), middleware.ViewerFrom(c), c.Param("id"), pos, service.DepositInput{
		Title: req.Title,
		Pages: req.Pages,
		Image: imageUpload(req.Image),
	})
	var stepErr *domain.StepError
	if err != nil && result != nil && errors.As(err, &stepErr) {
		// 回信已保存，仅奖励失败
		h.log.Warn("Reply saved without award", zap.String("postbox_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusCreated, Response{
			Code:   CodeCreated,
			Msg:    "投函しましたが、" + stepMessages[stepErr.Step],
			Data:   gin.H{"reply": result.Reply, "failedStep": stepErr.Step},
			Reason: ReasonStepFailed,
		})
		return
	}
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	CreatedWithMsg(c, "投函しました", result)
}

// ListReplies godoc
// @Summary 邮筒回信列表
// @Description 邮筒所有者和管理员看到全部，其他人只看到自己的
// @Tags Replies
// @Produce json
// @Param id path string true "邮筒ID"
// @Success 200 {object} Response{data=[]domain.Letter}
// @Security BearerAuth
// @Router /v1/letters/{id}/replies [get]
func (h *LetterHandler) ListReplies(c *gin.Context) {
	replies, err := h.postbox.ListReplies(c.Request.Context(), middleware.ViewerFrom(c), c.Param("id"))
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Success(c, replies)
}

// DeleteReply godoc
// @Summary 删除回信
// @Tags Replies
// @Param id path string true "回信ID"
// @Success 204
// @Security BearerAuth
// @Router /v1/replies/{id} [delete]
func (h *LetterHandler) DeleteReply(c *gin.Context) {
	if err := h.postbox.DeleteReply(c.Request.Context(), middleware.ViewerFrom(c), c.Param("id")); err != nil {
		RespondError(c, h.log, err)
		return
	}
	NoContent(c)
}

// MyAwards godoc
// @Summary 我的收藏品
// @Tags Awards
// @Produce json
// @Success 200 {object} Response{data=[]domain.AwardWithCollectible}
// @Security BearerAuth
// @Router /v1/me/awards [get]
func (h *LetterHandler) MyAwards(c *gin.Context) {
	viewer := middleware.ViewerFrom(c)
	awards, err := h.awards.ListAwards(c.Request.Context(), viewer.ID)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	Success(c, awards)
}
