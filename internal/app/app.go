// Package app 依設定組裝解析流程的所有元件
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"nutrition-resolver/internal/core/ai/openrouter"
	"nutrition-resolver/internal/core/ai/provider"
	"nutrition-resolver/internal/core/ai/queue"
	"nutrition-resolver/internal/core/image"
	"nutrition-resolver/internal/core/nutrition/cache"
	"nutrition-resolver/internal/core/nutrition/catalog"
	"nutrition-resolver/internal/core/nutrition/estimator"
	"nutrition-resolver/internal/core/nutrition/matcher"
	"nutrition-resolver/internal/core/nutrition/recognition"
	"nutrition-resolver/internal/core/nutrition/resolver"
	"nutrition-resolver/internal/infrastructure/config"
	"nutrition-resolver/internal/pkg/common"
)

// App 組裝完成的服務
type App struct {
	Store      *catalog.SQLStore
	Catalog    *catalog.Catalog
	Cache      *cache.ProductCache
	Estimates  cache.EstimateTier // 未啟用時為 nil
	Provider   provider.Provider  // 未啟用時為 nil
	Queue      *queue.Manager     // 未啟用時為 nil
	Recognizer *recognition.Extractor
	Resolver   *resolver.Resolver

	closers []func() error
}

// New 開啟目錄資料庫、載入快照並建立解析器
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := catalog.Open(ctx, catalog.Options{
		Driver:     cfg.Catalog.Driver,
		DSN:        cfg.Catalog.DSN,
		ReadyTable: cfg.Catalog.ReadyTable,
		BrandTable: cfg.Catalog.BrandTable,
	})
	if err != nil {
		return nil, common.ErrCatalogUnavailable.Wrap(err)
	}

	a := &App{Store: store}
	a.closers = append(a.closers, store.Close)

	if err := a.buildWith(ctx, cfg, store); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// NewWithStore 以既有的目錄 store 組裝（不負責關閉 store）
func NewWithStore(ctx context.Context, cfg *config.Config, store catalog.Store) (*App, error) {
	a := &App{}
	if s, ok := store.(*catalog.SQLStore); ok {
		a.Store = s
	}
	if err := a.buildWith(ctx, cfg, store); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) buildWith(ctx context.Context, cfg *config.Config, store catalog.Store) error {
	a.Catalog = catalog.New(store)
	if err := a.Catalog.Reload(ctx); err != nil {
		return common.ErrCatalogUnavailable.Wrap(err)
	}

	a.Cache = cache.NewProductCache("product", cfg.Cache.MaxSize)
	a.closers = append(a.closers, a.Cache.Close)

	if cfg.Estimates.Enabled {
		tier, err := newEstimateTier(ctx, cfg.Estimates)
		if err != nil {
			return err
		}
		a.Estimates = tier
		if c, ok := tier.(interface{ Close() error }); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	var est resolver.FallbackEstimator
	if cfg.OpenRouter.Enabled {
		client := openrouter.NewClient(provider.Config{
			APIKeys:    cfg.OpenRouter.Keys(),
			Model:      cfg.OpenRouter.Model,
			MaxTokens:  cfg.OpenRouter.MaxTokens,
			Timeout:    cfg.OpenRouter.Timeout,
			MaxRetries: cfg.OpenRouter.MaxRetries,
			BaseURL:    cfg.OpenRouter.BaseURL,
			Title:      cfg.App.Name,
		})
		a.Queue = queue.NewManager(client, cfg.Queue.Workers, cfg.Queue.MaxSize)
		a.Provider = a.Queue
		a.closers = append(a.closers, a.Queue.Close)

		est = estimator.New(a.Provider,
			estimator.WithTimeout(cfg.Fallback.Timeout),
			estimator.WithMaxTokens(cfg.OpenRouter.MaxTokens),
		)
		a.Recognizer = recognition.New(a.Provider, image.NewService(cfg.Image.MaxSizeBytes))
	}

	a.Resolver = resolver.New(
		a.Cache,
		matcher.New(a.Catalog, matcher.WithThreshold(cfg.Matcher.Threshold)),
		a.Estimates,
		est,
		resolver.Config{
			AllowPartial:   cfg.Fallback.AllowPartial,
			StoreEstimates: a.Estimates != nil,
		},
	)

	common.LogInfo("解析流程已組裝",
		zap.String("catalog_driver", cfg.Catalog.Driver),
		zap.Int("cache_size", cfg.Cache.MaxSize),
		zap.Bool("estimates", a.Estimates != nil),
		zap.Bool("llm", a.Provider != nil),
		zap.Float64("threshold", cfg.Matcher.Threshold),
	)
	return nil
}

func newEstimateTier(ctx context.Context, cfg config.EstimatesConfig) (cache.EstimateTier, error) {
	switch cfg.Backend {
	case "redis":
		tier, err := cache.NewRedisTier(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init redis estimate tier: %w", err)
		}
		return tier, nil
	case "memory", "":
		return cache.NewMemoryTier(cfg.MaxSize), nil
	}
	return nil, fmt.Errorf("unknown estimates backend %q", cfg.Backend)
}

// Close 依相反順序釋放資源
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
