package main

// @title Okitegami API
// @version 1.0.0
// @description 置き手紙：位置に紐づく手紙の配置・閲覧 API
// @BasePath /v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description 使用格式：Bearer {token}

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"okitegami/backend/internal/auth"
	"okitegami/backend/internal/config"
	"okitegami/backend/internal/health"
	"okitegami/backend/internal/logger"
	"okitegami/backend/internal/mailer"
	"okitegami/backend/internal/middleware"
	"okitegami/backend/internal/monitoring"
	"okitegami/backend/internal/pool"
	"okitegami/backend/internal/proximity"
	"okitegami/backend/internal/security"
	"okitegami/backend/internal/service"
	"okitegami/backend/internal/storage"
	"okitegami/backend/internal/storage/filesystem"
	"okitegami/backend/internal/storage/hybrid"
	"okitegami/backend/internal/storage/memory"
	"okitegami/backend/internal/storage/postgres"
	"okitegami/backend/internal/storage/redis"
	httptransport "okitegami/backend/internal/transport/http"
	"okitegami/backend/internal/websocket"
)

const version = "1.0.0"

// backends 启动时选定的存储组合
type backends struct {
	store  storage.Store
	locker storage.PlacementLocker
	redis  *redis.Client // 可能为 nil
	probe  *postgres.Client
}

func (b *backends) close(log *zap.Logger) {
	if b.probe != nil {
		b.probe.Close()
	}
	if err := b.store.Close(); err != nil {
		log.Warn("store close error", zap.Error(err))
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			log.Warn("redis close error", zap.Error(err))
		}
	}
}

// main 启动 HTTP API 与实时推送服务
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.NewLogger(logger.FromConfig(cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting okitegami server",
		zap.String("version", version),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.Float64("unlock_distance_m", cfg.Letter.UnlockDistanceMeters),
		zap.Float64("notification_distance_m", cfg.Letter.NotificationDistanceMeters),
		zap.Int("expiration_hours", cfg.Letter.ExpirationHours),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := initializeStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer be.close(log)

	files, err := filesystem.NewStore(cfg.Storage.Path, cfg.Storage.PublicBaseURL)
	if err != nil {
		log.Fatal("failed to initialize media storage", zap.Error(err))
	}
	log.Info("media storage initialized", zap.String("path", cfg.Storage.Path))

	metrics := monitoring.NewMetrics()

	classifier, err := proximity.NewClassifier(
		cfg.Letter.UnlockDistanceMeters,
		cfg.Letter.NotificationDistanceMeters,
		proximity.NewPolicy(cfg.Letter.ExpirationHours),
	)
	if err != nil {
		log.Fatal("invalid letter thresholds", zap.Error(err))
	}
	images := security.NewImageInspector(cfg.Storage.MaxImageBytes)

	// 服务层
	receipts := service.NewReceiptLedger(be.store, metrics, log)
	collectibles := service.NewCollectibleService(be.store, files, images, log)
	awards := service.NewAwardService(be.store, collectibles, metrics, log)
	letters := service.NewLetterService(service.LetterDeps{
		Store:        be.store,
		Locker:       be.locker,
		Objects:      files,
		Classifier:   classifier,
		Receipts:     receipts,
		Awards:       awards,
		Collectibles: collectibles,
		Images:       images,
		Filter:       security.NewContentFilter(),
		Config:       cfg.Letter,
		Metrics:      metrics,
		Logger:       log,
	})
	postboxes := service.NewPostBoxService(letters, log)
	adminService := service.NewAdminService(be.store, letters, log)
	configService := service.NewConfigService(cfg)

	// 认证
	var hosted *auth.HostedVerifier
	if cfg.Auth.JWKSURL != "" {
		hosted, err = auth.NewHostedVerifier(ctx, cfg.Auth.JWKSURL, log)
		if err != nil {
			log.Fatal("failed to initialize hosted auth", zap.Error(err))
		}
	}
	authService := auth.NewService(be.store, auth.NewJWTManager(cfg.JWT), hosted, cfg, metrics, log)
	log.Info("JWT configuration",
		zap.String("issuer", cfg.JWT.Issuer),
		zap.Duration("access_expiry", cfg.JWT.AccessExpiry),
		zap.Duration("refresh_expiry", cfg.JWT.RefreshExpiry),
		zap.Bool("hosted_auth", hosted != nil),
	)

	// 邮件任务池
	workers := pool.NewWorkerPool(2, 100, log)
	mail := mailer.New(cfg.Mail, cfg.Letter.UnlockDistanceMeters, workers, metrics, log)
	if mail.Enabled() {
		authService.SetWelcomeSender(mail)
		log.Info("welcome mail enabled", zap.String("smtp_addr", cfg.Mail.SMTPAddr))
	}

	// 实时推送；有 Redis 时跨实例转发
	var relay *redis.Cache
	if be.redis != nil {
		relay = redis.NewCache(be.redis)
	}
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, authService, letters, relay, metrics, log)
	letters.SetEventPublisher(wsHub)

	// 健康检查
	probes := health.NewChecker(be.store, log)
	monitor := monitoring.NewHealthChecker(log, version, environment(cfg))
	monitor.AddCritical("store", be.store.Health)
	if be.probe != nil {
		probes.AddReadiness("postgres", be.probe.Ping)
		monitor.AddCritical("postgres", be.probe.Ping)
	}
	if be.redis != nil {
		probes.AddReadiness("redis", be.redis.Ping)
		monitor.AddOptional("redis", be.redis.Ping)
	}

	limiter := middleware.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, metrics, log)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:             cfg,
		AuthService:        authService,
		LetterService:      letters,
		PostBoxService:     postboxes,
		AwardService:       awards,
		AdminService:       adminService,
		CollectibleService: collectibles,
		ConfigService:      configService,
		Media:              files,
		WebSocketHub:       wsHub,
		Health:             probes,
		Monitor:            monitor,
		Metrics:            metrics,
		RateLimiter:        limiter,
		Logger:             log,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	refresher := monitoring.NewStatsRefresher(be.store, metrics, cfg.Letter.Expiration(), log)
	if be.probe != nil {
		refresher = refresher.WithPoolStats(func() int {
			return int(be.probe.Stats().TotalConns())
		})
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		workers.Start(groupCtx)
		<-groupCtx.Done()
		workers.Stop()
		return nil
	})

	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		return wsHub.RunRelay(groupCtx)
	})

	group.Go(func() error {
		limiter.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		collectibles.Cache().Run(groupCtx, 5*time.Minute)
		return nil
	})

	group.Go(func() error {
		return refresher.Run(groupCtx, time.Minute)
	})

	group.Go(func() error {
		monitor.StartPeriodicHealthCheck(groupCtx, 30*time.Second)
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		log.Info("HTTP server stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", zap.Error(err))
		return
	}
	log.Info("server exited cleanly")
}

// initializeStorage 按配置选择存储
//
//   - database.type 为空或 memory：内存存储，进程内放置锁
//   - SQL 且未配置 Redis：GORM 存储，进程内放置锁（仅单实例）
//   - SQL 且配置 Redis：混合存储，Redis 分布式放置锁
func initializeStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backends, error) {
	if cfg.Database.Type == "" || cfg.Database.Type == "memory" {
		store := memory.NewStore()
		log.Warn("using memory storage, data is lost on restart")
		return &backends{store: store, locker: store}, nil
	}

	sqlStore, err := postgres.NewStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Database.Type, err)
	}
	log.Info("database storage initialized", zap.String("type", cfg.Database.Type))

	be := &backends{store: sqlStore, locker: memory.NewLocker()}

	if cfg.Database.Type == "postgres" {
		probe, err := postgres.NewClient(ctx, cfg.Database, log)
		if err != nil {
			_ = sqlStore.Close()
			return nil, err
		}
		be.probe = probe
	}

	if cfg.Redis.Address == "" {
		log.Warn("redis not configured, placement lock is process-local")
		return be, nil
	}

	client, err := redis.New(ctx, cfg.Redis, log)
	if err != nil {
		be.close(log)
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	be.redis = client
	be.store = hybrid.NewStore(sqlStore, client, log)
	be.locker = redis.NewLocker(client)
	log.Info("hybrid storage enabled", zap.String("redis_address", cfg.Redis.Address))
	return be, nil
}

func environment(cfg *config.Config) string {
	if cfg.Log.Development {
		return "development"
	}
	return "production"
}
