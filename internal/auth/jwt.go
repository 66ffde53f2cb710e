package auth

import (
	jwtpkg "okitegami/backend/internal/auth/jwt"
	"okitegami/backend/internal/config"
	"okitegami/backend/internal/domain"
)

// NewJWTManager 按配置创建内部令牌管理器
func NewJWTManager(cfg config.JWTConfig) *jwtpkg.Manager {
	return jwtpkg.NewManager(cfg.Secret, cfg.Issuer, cfg.AccessExpiry, cfg.RefreshExpiry)
}

// TokenResponse 令牌响应
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	User    *domain.User `json:"user"`
	IsAdmin bool         `json:"isAdmin"`
	TokenResponse
}

func (s *Service) issueTokens(user *domain.User) (*AuthResponse, error) {
	pair, err := s.tokens.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		User:    user,
		IsAdmin: s.cfg.IsAdminEmail(user.Email),
		TokenResponse: TokenResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			TokenType:    "Bearer",
			ExpiresIn:    pair.ExpiresIn,
		},
	}, nil
}
