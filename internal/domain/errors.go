package domain

import (
	"errors"
	"fmt"
	"math"
)

// 业务错误定义，HTTP 层通过 errors.Is / errors.As 映射为响应
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrNotReachable      = errors.New("letter is not within reach")
	ErrUnlockMismatch    = errors.New("secret does not match")
	ErrPlacementRejected = errors.New("placement too close to an existing letter")
	ErrDailyDepositLimit = errors.New("daily deposit limit reached")
	ErrSessionExpired    = errors.New("session expired")
	ErrConflict          = errors.New("already exists")
)

// ValidationError 输入校验失败，Field 为出错字段
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Is 使 errors.Is(err, ErrValidation) 成立
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError 创建校验错误
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// PlacementRejectedError 放置位置距离已有信件过近
type PlacementRejectedError struct {
	NearestID string  // 最近的已有信件
	Distance  float64 // 与最近信件的距离（米）
	Required  float64 // 要求的最小距离（米）
}

func (e *PlacementRejectedError) Error() string {
	return fmt.Sprintf("too close to letter %s: %.1fm < %.0fm", e.NearestID, e.Distance, e.Required)
}

// Is 使 errors.Is(err, ErrPlacementRejected) 成立
func (e *PlacementRejectedError) Is(target error) bool {
	return target == ErrPlacementRejected
}

// MoveAway 还需要移动的米数（向上取整，至少 1 米）
//
// 差值先按微米舍入，避免 24.9999999997 这类浮点误差多算 1 米。
func (e *PlacementRejectedError) MoveAway() int {
	gap := math.Round((e.Required-e.Distance)*1e6) / 1e6
	m := int(math.Ceil(gap))
	if m < 1 {
		m = 1
	}
	return m
}

// 多步骤提交的步骤名称
const (
	StepUploadImage            = "upload_image"
	StepUploadCollectibleImage = "upload_collectible_image"
	StepCreateCollectible      = "create_collectible"
	StepCreateLetter           = "create_letter"
	StepAwardCollectible       = "award_collectible"
)

// StepError 多步骤提交中某一步失败
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
