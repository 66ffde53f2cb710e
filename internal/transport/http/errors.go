package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"okitegami/backend/internal/auth"
	jwtpkg "okitegami/backend/internal/auth/jwt"
	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/middleware"
	"okitegami/backend/internal/storage"
)

// 机器可读的错误原因
const (
	ReasonValidation         = "validation"
	ReasonPlacementRejected  = "placement_rejected"
	ReasonUnlockMismatch     = "unlock_mismatch"
	ReasonNotReachable       = "not_reachable"
	ReasonPermissionDenied   = middleware.ReasonPermissionDenied
	ReasonNotFound           = "not_found"
	ReasonConflict           = "conflict"
	ReasonDailyDepositLimit  = "daily_deposit_limit"
	ReasonSessionExpired     = middleware.ReasonSessionExpired
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonInvalidToken       = middleware.ReasonInvalidToken
	ReasonStepFailed         = "step_failed"
	ReasonBusy               = "busy"
	ReasonInternal           = middleware.ReasonInternal
)

// 通用错误消息
const (
	MsgInvalidRequest     = "リクエストの形式が正しくありません"
	MsgInvalidPosition    = "位置情報が正しくありません"
	MsgPlacementRejected  = "近くに別の手紙があります。もう少し離れてから置いてください"
	MsgUnlockMismatch     = "合言葉が違います"
	MsgNotReachable       = "手紙に近づいてから開いてください"
	MsgPermissionDenied   = "この操作を行う権限がありません"
	MsgNotFound           = "見つかりませんでした"
	MsgConflict           = "すでに使われています"
	MsgDailyDepositLimit  = "今日はもうこのポストに投函しました。また明日お試しください"
	MsgSessionExpired     = "セッションの有効期限が切れました。もう一度ログインしてください"
	MsgInvalidCredentials = "メールアドレス（またはニックネーム）かパスワードが違います"
	MsgUserInactive       = "このアカウントは利用停止中です"
	MsgInvalidToken       = "認証トークンが無効です"
	MsgBusy               = "混み合っています。しばらくしてから再度お試しください"
	MsgInternalError      = "サーバーエラーが発生しました。しばらくしてから再度お試しください"
)

// 多步骤提交失败时按步骤提示
var stepMessages = map[string]string{
	domain.StepUploadImage:            "画像のアップロードに失敗しました",
	domain.StepUploadCollectibleImage: "スタンプ画像のアップロードに失敗しました",
	domain.StepCreateCollectible:      "スタンプの作成に失敗しました",
	domain.StepCreateLetter:           "手紙の保存に失敗しました",
	domain.StepAwardCollectible:       "スタンプの付与に失敗しました",
}

// 校验失败字段的提示
var fieldMessages = map[string]string{
	"email":            "メールアドレスの形式が正しくありません",
	"password":         "パスワードは8〜72文字で入力してください",
	"nickname":         "ニックネームは3〜32文字で入力してください",
	"title":            "タイトルを確認してください",
	"pages":            "本文のページ数または文字数が上限を超えています",
	"secret":           "合言葉を確認してください",
	"lat":              MsgInvalidPosition,
	"lng":              MsgInvalidPosition,
	"position":         "この手紙は移動できません",
	"category":         "手紙の種類が正しくありません",
	"image":            "画像はJPEG・PNG・GIF・WebPで、サイズ上限以内にしてください",
	"collectible":      "スタンプの指定が正しくありません",
	"collectibleId":    "スタンプの指定が正しくありません",
	"postboxId":        "ポストの指定が正しくありません",
	"coordinates":      MsgInvalidPosition,
	"imagePath":        "画像の指定が正しくありません",
	"name":             "スタンプ名を確認してください",
	"description":      "スタンプの説明が長すぎます",
	"collectibleImage": "スタンプ画像はJPEG・PNG・GIF・WebPで、サイズ上限以内にしてください",
}

// RespondError 将业务错误转换为统一响应
//
// 未识别的错误记录日志后返回通用提示。
func RespondError(c *gin.Context, log *zap.Logger, err error) {
	var (
		validationErr *domain.ValidationError
		placementErr  *domain.PlacementRejectedError
		stepErr       *domain.StepError
	)

	switch {
	case errors.As(err, &placementErr):
		Fail(c, http.StatusConflict, ReasonPlacementRejected, MsgPlacementRejected, gin.H{
			"moveAwayMeters": placementErr.MoveAway(),
			"nearestId":      placementErr.NearestID,
		})
	case errors.As(err, &validationErr):
		msg, ok := fieldMessages[validationErr.Field]
		if !ok {
			msg = MsgInvalidRequest
		}
		Fail(c, http.StatusBadRequest, ReasonValidation, msg, gin.H{
			"field":  validationErr.Field,
			"detail": validationErr.Message,
		})
	case errors.Is(err, domain.ErrValidation):
		Fail(c, http.StatusBadRequest, ReasonValidation, MsgInvalidRequest, nil)
	case errors.Is(err, domain.ErrUnlockMismatch):
		Fail(c, http.StatusForbidden, ReasonUnlockMismatch, MsgUnlockMismatch, gin.H{"retryable": true})
	case errors.Is(err, domain.ErrNotReachable):
		Fail(c, http.StatusForbidden, ReasonNotReachable, MsgNotReachable, nil)
	case errors.Is(err, domain.ErrPermissionDenied):
		Fail(c, http.StatusForbidden, ReasonPermissionDenied, MsgPermissionDenied, nil)
	case errors.Is(err, domain.ErrNotFound):
		Fail(c, http.StatusNotFound, ReasonNotFound, MsgNotFound, nil)
	case errors.Is(err, domain.ErrConflict):
		Fail(c, http.StatusConflict, ReasonConflict, MsgConflict, nil)
	case errors.Is(err, domain.ErrDailyDepositLimit):
		Fail(c, http.StatusTooManyRequests, ReasonDailyDepositLimit, MsgDailyDepositLimit, nil)
	case errors.Is(err, domain.ErrSessionExpired):
		Fail(c, http.StatusUnauthorized, ReasonSessionExpired, MsgSessionExpired, nil)
	case errors.Is(err, auth.ErrInvalidCredentials):
		Fail(c, http.StatusUnauthorized, ReasonInvalidCredentials, MsgInvalidCredentials, nil)
	case errors.Is(err, auth.ErrUserInactive):
		Fail(c, http.StatusForbidden, ReasonPermissionDenied, MsgUserInactive, nil)
	case errors.Is(err, jwtpkg.ErrInvalidToken), errors.Is(err, jwtpkg.ErrExpiredToken):
		Fail(c, http.StatusUnauthorized, ReasonInvalidToken, MsgInvalidToken, nil)
	case errors.Is(err, storage.ErrLockTimeout):
		Fail(c, http.StatusServiceUnavailable, ReasonBusy, MsgBusy, nil)
	case errors.As(err, &stepErr):
		log.Error("Multi-step write failed", zap.String("step", stepErr.Step), zap.String("path", c.FullPath()), zap.Error(stepErr.Err))
		msg, ok := stepMessages[stepErr.Step]
		if !ok {
			msg = MsgInternalError
		}
		Fail(c, http.StatusBadGateway, ReasonStepFailed, msg, gin.H{"step": stepErr.Step})
	default:
		log.Error("Unhandled error", zap.String("path", c.FullPath()), zap.String("method", c.Request.Method), zap.Error(err))
		Fail(c, http.StatusInternalServerError, ReasonInternal, MsgInternalError, nil)
	}
}
