package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nutrition-resolver/internal/api"
	"nutrition-resolver/internal/app"
	"nutrition-resolver/internal/infrastructure/config"
	"nutrition-resolver/internal/pkg/common"
)

func main() {
	// 載入設定（內部會讀取 .env）
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	keys := cfg.OpenRouter.Keys()
	masked := make([]string, len(keys))
	for i, k := range keys {
		masked[i] = config.MaskAPIKey(k)
	}
	common.LogInfo("載入設定",
		zap.Strings("openrouter_api_keys", masked),
		zap.String("openrouter_model", cfg.OpenRouter.Model),
		zap.String("catalog_driver", cfg.Catalog.Driver),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 組裝解析流程
	application, err := app.New(ctx, cfg)
	if err != nil {
		common.LogError("Failed to initialize application", zap.Error(err))
		os.Exit(1)
	}
	defer application.Close()

	application.Catalog.StartAutoReload(ctx, cfg.Catalog.ReloadInterval)

	deps := api.Dependencies{
		Resolver: application.Resolver,
		Catalog:  application.Catalog,
		Cache:    application.Cache,
		DB:       application.Store,
	}
	if application.Recognizer != nil {
		deps.Recognizer = application.Recognizer
	}
	if application.Queue != nil {
		deps.Queue = application.Queue
	}
	router := api.SetupRouter(ctx, cfg, deps)

	// 設置 HTTP 服務器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("debug", cfg.App.Debug),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.LogFatal("Failed to start server", zap.Error(err))
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")
	stop()

	// 設置關閉超時
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		common.LogError("Server forced to shutdown", zap.Error(err))
	}

	common.LogInfo("Server exited")
}
