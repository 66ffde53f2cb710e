package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"okitegami/backend/internal/auth"
	"okitegami/backend/internal/config"
	"okitegami/backend/internal/health"
	"okitegami/backend/internal/middleware"
	"okitegami/backend/internal/monitoring"
	"okitegami/backend/internal/service"
	"okitegami/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config             *config.Config
	AuthService        *auth.Service
	LetterService      *service.LetterService
	PostBoxService     *service.PostBoxService
	AwardService       *service.AwardService
	AdminService       *service.AdminService
	CollectibleService *service.CollectibleService
	ConfigService      *service.ConfigService
	Media              MediaSource
	WebSocketHub       *websocket.Hub            // 为 nil 时不注册 /v1/ws
	Health             *health.Checker           // 存活与就绪探针
	Monitor            *monitoring.HealthChecker // /health 详细报告
	Metrics            *monitoring.Metrics
	RateLimiter        *middleware.IPRateLimiter
	Logger             *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()
	log := deps.Logger

	router.Use(middleware.RecoveryHandler(log, deps.Metrics))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.HTTPMetrics(deps.Metrics))
	router.Use(middleware.SecurityHeaders())

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins: deps.Config.CORS.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", SeenLettersHeader},
		ExposeHeaders: []string{
			"Content-Length",
			"X-RateLimit-Limit",
			"Retry-After",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 图片、指标与 WebSocket 不压缩
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		"/v1/ws",
		"/v1/media",
		"/metrics",
	})))

	maxImage := deps.Config.Storage.MaxImageBytes
	authHandler := NewAuthHandler(deps.AuthService, log)
	letterHandler := NewLetterHandler(deps.LetterService, deps.PostBoxService, deps.AwardService, log)
	mediaHandler := NewMediaHandler(deps.LetterService, deps.Media, maxImage, log)
	adminHandler := NewAdminHandler(deps.AdminService, deps.CollectibleService, maxImage, log)
	configHandler := NewConfigHandler(deps.ConfigService)

	jwtAuth := middleware.NewJWTAuth(deps.AuthService, log)
	rateLimit := deps.RateLimiter.Middleware()

	// 信件正文最多带两张 base64 图片
	jsonLimit := middleware.BodySizeLimit(middleware.JSONBodyLimit(maxImage, 2))
	uploadLimit := middleware.UploadBodyLimit(maxImage)

	// Swagger 文档
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 健康检查与指标
	router.GET("/health", func(c *gin.Context) {
		report := deps.Monitor.CheckHealth(c.Request.Context())
		status := http.StatusOK
		if report.Status == monitoring.HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	})
	router.GET("/health/live", gin.WrapF(deps.Health.LiveHandler()))
	router.GET("/health/ready", gin.WrapF(deps.Health.ReadyHandler()))
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	// V1 API
	v1 := router.Group("/v1")
	v1.Use(rateLimit)
	{
		v1.GET("/config/public", configHandler.GetPublicConfig)

		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth", jsonLimit)
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh", authHandler.Refresh)
			authRoutes.GET("/me", jwtAuth.RequireAuth(), authHandler.Me)
		}

		// ========== Letter Routes ==========
		letterRoutes := v1.Group("/letters", jsonLimit)
		{
			letterRoutes.GET("/nearby", jwtAuth.OptionalAuth(), letterHandler.Nearby)
			letterRoutes.GET("/archive", jwtAuth.RequireAuth(), letterHandler.Archive)
			letterRoutes.POST("", jwtAuth.RequireAuth(), letterHandler.Place)

			letterRoutes.GET("/:id/open", jwtAuth.OptionalAuth(), letterHandler.Open)
			letterRoutes.POST("/:id/unlock", jwtAuth.OptionalAuth(), letterHandler.Unlock)
			letterRoutes.POST("/:id/complete", jwtAuth.OptionalAuth(), letterHandler.Complete)
			letterRoutes.PATCH("/:id", jwtAuth.RequireAuth(), letterHandler.Update)
			letterRoutes.DELETE("/:id", jwtAuth.RequireAuth(), letterHandler.Delete)

			// 邮筒回信
			letterRoutes.POST("/:id/replies", jwtAuth.RequireAuth(), letterHandler.Deposit)
			letterRoutes.GET("/:id/replies", jwtAuth.RequireAuth(), letterHandler.ListReplies)
		}
		v1.DELETE("/replies/:id", jwtAuth.RequireAuth(), letterHandler.DeleteReply)
		v1.GET("/me/awards", jwtAuth.RequireAuth(), letterHandler.MyAwards)

		// ========== Media Routes ==========
		v1.POST("/media", uploadLimit, jwtAuth.RequireAuth(), mediaHandler.Upload)
		v1.GET("/media/*path", mediaHandler.Serve)

		// ========== WebSocket Routes ==========
		if deps.WebSocketHub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}

		// ========== Admin Routes ==========
		adminRoutes := v1.Group("/admin")
		adminRoutes.Use(jwtAuth.RequireAuth(), middleware.RequireAdmin()) // 所有管理路由都需要管理员
		{
			adminRoutes.GET("/letters", adminHandler.ListLetters)
			adminRoutes.GET("/letters/:id", adminHandler.GetLetter)
			adminRoutes.PATCH("/letters/:id", jsonLimit, adminHandler.UpdateLetter)
			adminRoutes.DELETE("/letters/:id", adminHandler.DeleteLetter)

			adminRoutes.GET("/users", adminHandler.ListUsers)
			adminRoutes.GET("/statistics", adminHandler.GetStatistics)

			adminRoutes.GET("/collectibles", adminHandler.ListCollectibles)
			adminRoutes.POST("/collectibles", uploadLimit, adminHandler.CreateCollectible)
			adminRoutes.GET("/collectibles/:id", adminHandler.GetCollectible)
			adminRoutes.PATCH("/collectibles/:id", uploadLimit, adminHandler.UpdateCollectible)
			adminRoutes.DELETE("/collectibles/:id", adminHandler.DeleteCollectible)
		}
	}

	return router
}
