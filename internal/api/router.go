package api

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nutrition-resolver/internal/api/handlers/health"
	"nutrition-resolver/internal/api/handlers/nutrition"
	"nutrition-resolver/internal/api/middleware"
	"nutrition-resolver/internal/infrastructure/config"
	"nutrition-resolver/internal/pkg/common"
)

const (
	// 請求體大小限制的額外空間（JSON 與 base64 的開銷）
	bodyOverhead = 1 << 20
)

// Dependencies 路由需要的服務
type Dependencies struct {
	Resolver   nutrition.Resolver
	Recognizer nutrition.Recognizer // 可為 nil
	Catalog    CatalogService
	Cache      nutrition.CacheStats
	DB         health.Pinger      // 可為 nil
	Queue      health.QueueStatus // 可為 nil
}

// CatalogService 目錄的統計、就緒狀態與重新載入
type CatalogService interface {
	nutrition.Catalog
	Loaded() bool
}

// SetupRouter 設置路由；ctx 取消時停止背景清理
func SetupRouter(ctx context.Context, cfg *config.Config, deps Dependencies) *gin.Engine {
	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	// 設置 gin 模式
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 註冊基礎中間件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(requestid.New())

	// CORS 設置
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// 請求體大小限制
	maxBodySize := cfg.Image.MaxSizeBytes*4/3 + bodyOverhead
	router.Use(middleware.BodySizeLimit(maxBodySize))
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// 健康檢查路由
	healthHandler := health.NewHandler(cfg.App.Version, deps.Catalog, deps.DB, deps.Queue)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	// API 路由組
	api := router.Group("/api/v1")
	if cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}
	dedup := middleware.NewDeduplicator(cfg.DedupWindow)
	dedup.StartCleanup(ctx, 10*time.Minute)
	api.Use(dedup.Middleware())

	h := nutrition.NewHandler(deps.Resolver, deps.Recognizer, deps.Catalog, deps.Cache, cfg.App.Debug)

	nutritionGroup := api.Group("/nutrition")
	{
		nutritionGroup.POST("/resolve", h.HandleResolve)
		nutritionGroup.POST("/recognize", h.HandleRecognize)
		nutritionGroup.POST("/round-totals", h.HandleRoundTotals)
		nutritionGroup.POST("/day-summary", h.HandleDaySummary)
	}

	catalogGroup := api.Group("/catalog")
	{
		catalogGroup.GET("/stats", h.HandleCatalogStats)
		catalogGroup.POST("/reload", h.HandleCatalogReload)
	}

	api.GET("/cache/stats", h.HandleCacheStats)

	common.LogInfo("Router setup completed successfully",
		zap.Duration("request_timeout", cfg.Server.RequestTimeout),
		zap.Int64("max_body_size", maxBodySize),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Bool("recognition_enabled", deps.Recognizer != nil),
	)

	return router
}
