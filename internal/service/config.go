package service

import (
	"okitegami/backend/internal/config"
)

// PublicConfig 客户端需要的规则阈值，所有界面共用同一份
type PublicConfig struct {
	UnlockDistanceMeters       float64 `json:"unlockDistanceMeters"`
	NotificationDistanceMeters float64 `json:"notificationDistanceMeters"`
	ExpirationHours            int     `json:"expirationHours"`
	MinPlacementDistanceMeters float64 `json:"minPlacementDistanceMeters"`
	MaxPages                   int     `json:"maxPages"`
	MaxCharsPerPage            int     `json:"maxCharsPerPage"`
	DailyDepositLimit          int     `json:"dailyDepositLimit"`
	Timezone                   string  `json:"timezone"`
	MaxImageBytes              int64   `json:"maxImageBytes"`
	HostedAuth                 bool    `json:"hostedAuth"`
}

// ConfigService 公开配置服务
type ConfigService struct {
	public PublicConfig
}

// NewConfigService 由全局配置生成公开配置
func NewConfigService(cfg *config.Config) *ConfigService {
	return &ConfigService{
		public: PublicConfig{
			UnlockDistanceMeters:       cfg.Letter.UnlockDistanceMeters,
			NotificationDistanceMeters: cfg.Letter.NotificationDistanceMeters,
			ExpirationHours:            cfg.Letter.ExpirationHours,
			MinPlacementDistanceMeters: cfg.Letter.MinPlacementDistanceMeters,
			MaxPages:                   cfg.Letter.MaxPages,
			MaxCharsPerPage:            cfg.Letter.MaxCharsPerPage,
			DailyDepositLimit:          cfg.Letter.DailyDepositLimit,
			Timezone:                   cfg.Letter.Timezone,
			MaxImageBytes:              cfg.Storage.MaxImageBytes,
			HostedAuth:                 cfg.Auth.JWKSURL != "",
		},
	}
}

// GetPublicConfig 获取公开配置
func (s *ConfigService) GetPublicConfig() PublicConfig {
	return s.public
}
