package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	jwtpkg "okitegami/backend/internal/auth/jwt"
	"okitegami/backend/internal/config"
	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/monitoring"
	"okitegami/backend/internal/storage"
)

var (
	// ErrInvalidCredentials 凭证无效
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserInactive 用户已被禁用
	ErrUserInactive = errors.New("user is inactive")
)

// WelcomeSender 新用户欢迎邮件
type WelcomeSender interface {
	SendWelcome(ctx context.Context, user *domain.User)
}

// Service 账号注册、登录与令牌识别
type Service struct {
	users   storage.UserRepository
	tokens  *jwtpkg.Manager
	hosted  *HostedVerifier
	cfg     *config.Config
	welcome WelcomeSender
	metrics *monitoring.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewService 创建认证服务，hosted 为 nil 时只接受内部令牌
func NewService(users storage.UserRepository, tokens *jwtpkg.Manager, hosted *HostedVerifier, cfg *config.Config, metrics *monitoring.Metrics, log *zap.Logger) *Service {
	return &Service{
		users:   users,
		tokens:  tokens,
		hosted:  hosted,
		cfg:     cfg,
		metrics: metrics,
		log:     log.Named("auth"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetWelcomeSender 设置欢迎邮件发送方
func (s *Service) SetWelcomeSender(w WelcomeSender) {
	s.welcome = w
}

// RegisterInput 注册输入
type RegisterInput struct {
	Email    string
	Password string
	Nickname string
}

// LoginInput 登录输入，Identifier 为邮箱或昵称
type LoginInput struct {
	Identifier string
	Password   string
}

// Register 用户注册
func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	nickname := strings.TrimSpace(input.Nickname)

	if err := domain.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(input.Password); err != nil {
		return nil, err
	}
	if err := domain.ValidateNickname(nickname); err != nil {
		return nil, err
	}

	passwordHash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Nickname:     nickname,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// 邮箱与昵称的唯一性由存储层保证
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.metrics.RecordUserRegistered()
	s.log.Info("User registered", zap.String("user_id", user.ID), zap.String("nickname", user.Nickname))
	if s.welcome != nil {
		s.welcome.SendWelcome(ctx, user)
	}
	return s.issueTokens(user)
}

// Login 用户登录，昵称先解析为邮箱
func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	email := strings.ToLower(identifier)
	if !strings.Contains(identifier, "@") {
		resolved, err := s.users.EmailForNickname(ctx, identifier)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, ErrInvalidCredentials
			}
			return nil, err
		}
		email = resolved
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.log.Warn("Failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}
	return s.issueTokens(user)
}

// Refresh 使用刷新令牌换取新的令牌对
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return s.issueTokens(user)
}

// Authenticate 识别 Bearer 令牌对应的访问者
//
// 先按内部令牌验证，配置了 JWKS 时再尝试外部认证服务的令牌。
// 令牌有效但用户不存在时返回 domain.ErrSessionExpired。
func (s *Service) Authenticate(ctx context.Context, token string) (domain.Viewer, error) {
	userID, err := s.subject(token)
	if err != nil {
		return domain.Viewer{}, err
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return domain.Viewer{}, err
	}
	return s.viewerFor(user), nil
}

func (s *Service) subject(token string) (string, error) {
	claims, err := s.tokens.ValidateAccessToken(token)
	if err == nil {
		return claims.UserID, nil
	}
	if s.hosted == nil || errors.Is(err, jwtpkg.ErrExpiredToken) {
		return "", err
	}
	hosted, hostedErr := s.hosted.Verify(token)
	if hostedErr != nil {
		return "", hostedErr
	}
	return hosted.Subject, nil
}

func (s *Service) loadUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSessionExpired
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

func (s *Service) viewerFor(user *domain.User) domain.Viewer {
	return domain.Viewer{
		ID:      user.ID,
		Email:   user.Email,
		IsAdmin: s.cfg.IsAdminEmail(user.Email),
	}
}

// Me 获取当前用户资料
func (s *Service) Me(ctx context.Context, viewer domain.Viewer) (*domain.User, error) {
	if viewer.Anonymous() {
		return nil, domain.ErrSessionExpired
	}
	return s.loadUser(ctx, viewer.ID)
}

// HashPassword 哈希密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 检查密码是否匹配
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
