package domain

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// 验证常量
const (
	MaxEmailLength    = 254
	MinPasswordLength = 8
	MaxPasswordLength = 72 // bcrypt 上限
	MinNicknameLength = 3
	MaxNicknameLength = 32
	MaxTitleLength    = 100
	MaxSecretLength   = 100

	MaxCollectibleNameLength        = 100
	MaxCollectibleDescriptionLength = 500
)

// 昵称允许任意语言的字母数字，以及 _ . -
var nicknameRegex = regexp.MustCompile(`^[\p{L}\p{N}_.\-]+$`)

// LetterLimits 正文分页限制
type LetterLimits struct {
	MaxPages        int
	MaxCharsPerPage int
}

// LetterContent 可由用户提交的信件内容
type LetterContent struct {
	Title string   `json:"title"`
	Pages []string `json:"pages"`
}

// ValidateLetterContent 校验标题与分页正文
func ValidateLetterContent(content LetterContent, limits LetterLimits) error {
	err := validation.ValidateStruct(&content,
		validation.Field(&content.Title, validation.Required, validation.RuneLength(1, MaxTitleLength)),
		validation.Field(&content.Pages,
			validation.Required,
			validation.Length(1, limits.MaxPages),
			validation.Each(validation.RuneLength(0, limits.MaxCharsPerPage)),
		),
	)
	if err != nil {
		return toValidationError(err)
	}
	for _, p := range content.Pages {
		// 分隔符两侧是换行，只要页面不含标记，合并后的正文只会在分隔符处拆开
		if strings.Contains(p, pageMarker) {
			return NewValidationError("pages", "contains reserved delimiter")
		}
	}
	if strings.TrimSpace(strings.Join(content.Pages, "")) == "" {
		return NewValidationError("pages", "cannot be blank")
	}
	return nil
}

// ValidateCoordinates 校验经纬度范围
func ValidateCoordinates(c Coordinates) error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return NewValidationError("coordinates", "must be finite numbers")
	}
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Lat, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&c.Lng, validation.Min(-180.0), validation.Max(180.0)),
	)
	return toValidationError(err)
}

// ValidateSecret 暗号可以不设置，设置时不能为空串
func ValidateSecret(secret *string) error {
	if secret == nil {
		return nil
	}
	if *secret == "" {
		return NewValidationError("secret", "cannot be empty")
	}
	if err := validation.Validate(*secret, validation.RuneLength(1, MaxSecretLength)); err != nil {
		return NewValidationError("secret", err.Error())
	}
	return nil
}

// ValidateEmail 校验邮箱格式
func ValidateEmail(email string) error {
	err := validation.Validate(email,
		validation.Required,
		validation.Length(3, MaxEmailLength),
		is.EmailFormat,
	)
	if err != nil {
		return NewValidationError("email", err.Error())
	}
	return nil
}

// ValidatePassword 校验密码长度
func ValidatePassword(password string) error {
	err := validation.Validate(password,
		validation.Required,
		validation.Length(MinPasswordLength, MaxPasswordLength),
	)
	if err != nil {
		return NewValidationError("password", err.Error())
	}
	return nil
}

// ValidateNickname 校验昵称
func ValidateNickname(nickname string) error {
	err := validation.Validate(nickname,
		validation.Required,
		validation.RuneLength(MinNicknameLength, MaxNicknameLength),
		validation.Match(nicknameRegex),
	)
	if err != nil {
		return NewValidationError("nickname", err.Error())
	}
	return nil
}

// toValidationError 将 ozzo 的错误集合转换为 ValidationError（取字典序第一个字段）
func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if errors.As(err, &errs) {
		keys := make([]string, 0, len(errs))
		for k := range errs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > 0 {
			return &ValidationError{Field: keys[0], Message: errs[keys[0]].Error()}
		}
	}
	return &ValidationError{Message: err.Error()}
}

// CollectibleContent 收藏品定义的可编辑字段
type CollectibleContent struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ValidateCollectible 校验收藏品定义
func ValidateCollectible(c CollectibleContent) error {
	return toValidationError(validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required, validation.RuneLength(1, MaxCollectibleNameLength)),
		validation.Field(&c.Description, validation.RuneLength(0, MaxCollectibleDescriptionLength)),
	))
}
