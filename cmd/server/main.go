package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chorusfm/chorus/internal/artwork"
	"github.com/chorusfm/chorus/internal/config"
	"github.com/chorusfm/chorus/internal/handler"
	"github.com/chorusfm/chorus/internal/middleware"
	"github.com/chorusfm/chorus/internal/model"
	"github.com/chorusfm/chorus/internal/playback"
	"github.com/chorusfm/chorus/internal/repository"
	"github.com/chorusfm/chorus/internal/service"
	"github.com/chorusfm/chorus/internal/ws"
	"github.com/chorusfm/chorus/migrations"
	"github.com/chorusfm/chorus/pkg/auth"
	"github.com/chorusfm/chorus/pkg/notification"
	"github.com/chorusfm/chorus/pkg/storage"
)

// @title           Chorus Connect API
// @version         1.0
// @description     Multi-device remote playback coordination for the Chorus media server.

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      api.localhost
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// ==================== Load Config ====================
	cfg := config.Load()
	log.Printf("🚀 Starting Chorus Connect [env=%s]", cfg.App.Env)

	// ==================== Database (PostgreSQL) ====================
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.App.Env == "production" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	// ==================== Run Migrations ====================
	if err := migrations.Run(cfg.DB.URL()); err != nil {
		log.Printf("⚠️  Migration warning: %v", err)
		log.Println("📦 Falling back to GORM AutoMigrate...")
		if err := db.AutoMigrate(
			&model.User{},
			&model.APIKey{},
			&model.PushToken{},
		); err != nil {
			log.Fatalf("❌ Failed to migrate database: %v", err)
		}
	}
	log.Println("✅ Database migrated successfully")

	// ==================== Redis ====================
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       0,
	})

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Connected to Redis")

	// ==================== Initialize Layers ====================
	// JWT Manager
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)

	// Repositories
	userRepo := repository.NewUserRepository(db)
	pushTokenRepo := repository.NewPushTokenRepository(db)

	// Services
	authService := service.NewAuthService(userRepo, jwtManager, rdb, cfg.App.InternalSecret)

	// FCM wake pushes (optional)
	wakeService, _ := notification.NewWakeService(cfg.Firebase.CredentialsFile, pushTokenRepo)

	// MinIO artwork cache (optional)
	var artworkCache *artwork.Cache
	minioStorage, err := storage.NewMinIO(storage.Config{
		Endpoint:  cfg.MinIO.Endpoint,
		PublicURL: cfg.MinIO.PublicURL,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	})
	if err != nil {
		log.Printf("⚠️  MinIO not available: %v (artwork caching disabled)", err)
	} else {
		artworkCache = artwork.NewCache(minioStorage)
		log.Println("✅ Connected to MinIO")
	}

	// WebSocket hub (Redis Pub/Sub relay for horizontal scaling)
	hub := ws.NewHub(rdb)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	// Playback coordination core
	registry := playback.NewRegistry()
	directory := playback.NewDirectory(rdb)
	var artworkResolver playback.ArtworkResolver
	if artworkCache != nil {
		artworkResolver = artworkCache
	}
	var wakeNotifier playback.WakeNotifier
	if wakeService != nil {
		wakeNotifier = wakeService
	}
	coordinator := playback.NewCoordinator(registry, directory, hub, artworkResolver, wakeNotifier, cfg.Connect.HandoffDelay)

	// Liveness sweeper
	sweeper := playback.NewSweeper(coordinator, cfg.Connect.SweepInterval, cfg.Connect.StaleThreshold)
	go sweeper.Run(hubCtx)

	// Handlers
	authHandler := handler.NewAuthHandler(authService, cfg.JWT.Expiry)
	deviceHandler := handler.NewDeviceHandler(coordinator, pushTokenRepo)
	wsHandler := handler.NewWSHandler(hub, coordinator, authService)

	// ==================== Gin Router ====================
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Swagger configuration
	router.StaticFile("/docs/swagger.json", "./docs/swagger.json")
	url := ginSwagger.URL("/docs/swagger.json")
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, url))

	// Global middleware
	router.Use(middleware.CORSMiddleware(cfg.CORS.Origins))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "chorus-connect",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	// ==================== API Routes ====================
	api := router.Group("/api/v1")
	{
		// Auth routes (public)
		api.POST("/auth/login", authHandler.Login)

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(authService))
		{
			protected.POST("/auth/logout", authHandler.Logout)
			protected.GET("/auth/profile", authHandler.GetProfile)

			// Devices
			protected.GET("/devices", deviceHandler.ListDevices)
			protected.POST("/devices/push-token", deviceHandler.RegisterPushToken)

			// Playback
			protected.POST("/playback/transfer", deviceHandler.TransferPlayback)
		}
	}

	// WebSocket endpoint (auth via query parameter or headers)
	router.GET("/ws", wsHandler.HandleWebSocket)

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	log.Printf("🌐 Chorus Connect running on http://0.0.0.0:%s", cfg.App.Port)
	log.Printf("📋 API docs: http://0.0.0.0:%s/swagger/index.html", cfg.App.Port)
	log.Printf("🔌 WebSocket: ws://0.0.0.0:%s/ws?token=<jwt>", cfg.App.Port)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down server...")

	// Give ongoing requests 5 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	hubCancel()
	log.Println("✅ Server exited gracefully")
}
