package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	jwtpkg "okitegami/backend/internal/auth/jwt"
)

// HostedClaims 外部认证服务签发的令牌声明
type HostedClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// HostedVerifier 使用 JWKS 验证外部认证服务的令牌
type HostedVerifier struct {
	keyfunc jwt.Keyfunc
	log     *zap.Logger
}

// NewHostedVerifier 从 JWKS 地址创建验证器，公钥按 HTTP 缓存头自动刷新
func NewHostedVerifier(ctx context.Context, jwksURL string, log *zap.Logger) (*HostedVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}
	log.Info("Hosted auth verifier initialized", zap.String("jwks_url", jwksURL))
	return newHostedVerifier(jwks.Keyfunc, log), nil
}

func newHostedVerifier(kf jwt.Keyfunc, log *zap.Logger) *HostedVerifier {
	return &HostedVerifier{keyfunc: kf, log: log.Named("hosted_auth")}
}

// Verify 验证令牌，只接受 RS256 与 ES256
func (v *HostedVerifier) Verify(tokenString string) (*HostedClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &HostedClaims{}, v.keyfunc,
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, jwtpkg.ErrExpiredToken
		}
		v.log.Debug("Hosted token rejected", zap.Error(err))
		return nil, jwtpkg.ErrInvalidToken
	}

	claims, ok := token.Claims.(*HostedClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, jwtpkg.ErrInvalidToken
	}
	// 匿名会话的令牌不代表账号
	if claims.Role == "anon" {
		return nil, jwtpkg.ErrInvalidToken
	}
	return claims, nil
}
