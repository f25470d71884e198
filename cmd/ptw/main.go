package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anamika-webdev/AEPTW-sub004/internal/config"
	"github.com/anamika-webdev/AEPTW-sub004/internal/middleware"
	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/entity"
	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/handler"
	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/repository"
	"github.com/anamika-webdev/AEPTW-sub004/internal/ptw/service"
	"github.com/anamika-webdev/AEPTW-sub004/internal/shared/feishu"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting ptw service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// 建表
	if err := db.AutoMigrate(
		&entity.User{},
		&entity.Permit{},
		&entity.ExtensionRequest{},
		&entity.Notification{},
		&entity.PermitActivityLog{},
	); err != nil {
		zapLogger.Warn("AutoMigrate warning", zap.Error(err))
	}

	// 状态约束 + 提醒去重索引（AutoMigrate 不覆盖的部分用原始 SQL）
	migrationSQL := []string{
		// 许可单状态约束
		`ALTER TABLE ptw_permits DROP CONSTRAINT IF EXISTS ptw_permits_status_check`,
		`ALTER TABLE ptw_permits ADD CONSTRAINT ptw_permits_status_check CHECK (status IN ('draft', 'pending_approval', 'approved', 'active', 'extension_requested', 'rejected', 'closed'))`,
		// 延期申请状态约束
		`ALTER TABLE ptw_extension_requests DROP CONSTRAINT IF EXISTS ptw_extension_requests_status_check`,
		`ALTER TABLE ptw_extension_requests ADD CONSTRAINT ptw_extension_requests_status_check CHECK (status IN ('extension_requested', 'approved', 'rejected'))`,
		// 提醒去重：每个许可单至多一条 REMINDER_START / REMINDER_END
		// 多实例调度下 check-then-act 竞态的最终防线
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_ptw_notifications_reminder
			ON ptw_notifications (permit_id, type)
			WHERE type IN ('REMINDER_START', 'REMINDER_END')`,
	}
	for _, sql := range migrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			zapLogger.Warn("Migration warning", zap.String("sql", sql), zap.Error(err))
		}
	}
	zapLogger.Info("Database migration completed")

	// Redis（可选，提醒调度多实例互斥用）
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = initRedis(cfg.Redis)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			zapLogger.Warn("Redis unavailable, scheduler lock disabled", zap.Error(err))
			rdb = nil
		}
	}

	// 飞书客户端（可选，站内通知的卡片旁路）
	var feishuClient *feishu.FeishuClient
	if cfg.Feishu.Enabled() {
		feishuClient = feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret)
		zapLogger.Info("Feishu card push enabled")
	}

	// 仓库、服务、处理器
	repos := repository.NewRepositories(db)
	services := service.NewServices(db, repos, feishuClient, rdb)
	handlers := handler.NewHandlers(services)

	// 提醒调度：每分钟扫一轮，显式传入当前时间
	scheduler := cron.New()
	if cfg.Reminder.Enabled {
		if _, err := scheduler.AddFunc(cfg.Reminder.Spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
			defer cancel()
			if _, err := services.Reminder.RunScan(ctx, time.Now()); err != nil {
				zapLogger.Error("Reminder scan failed", zap.Error(err))
			}
		}); err != nil {
			zapLogger.Fatal("Failed to register reminder scan job", zap.Error(err))
		}
		scheduler.Start()
		defer scheduler.Stop()
		zapLogger.Info("Reminder scheduler started", zap.String("spec", cfg.Reminder.Spec))
	}

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// 注册路由
	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": Version})
	})

	api := r.Group("/api/v1", middleware.JWTAuth(cfg.JWT.Secret))
	{
		// 许可单
		api.POST("/permits", h.Permit.Submit)
		api.GET("/permits", h.Permit.List)
		api.GET("/permits/:id", h.Permit.Get)
		api.POST("/permits/:id/decision", h.Permit.Decide)
		api.POST("/permits/:id/close", h.Permit.Close)
		api.GET("/approvals/pending", h.Permit.ListMyPending)

		// 延期申请
		api.POST("/permits/:id/extensions", h.Extension.Request)
		api.GET("/permits/:id/extensions", h.Extension.ListByPermit)
		api.POST("/extensions/:id/decision", h.Extension.Decide)
		api.GET("/extensions/pending", h.Extension.ListMyPending)

		// 站内通知
		api.GET("/notifications", h.Notification.List)
		api.GET("/notifications/unread-count", h.Notification.UnreadCount)
		api.PUT("/notifications/:id/read", h.Notification.MarkRead)
		api.PUT("/notifications/read-all", h.Notification.MarkAllRead)
	}
}
