// Package resolver 把食物清單解析為營養值：快取 → 目錄 → 估算層 → 模型估算。
package resolver

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"nutrition-resolver/internal/core/nutrition/cache"
	"nutrition-resolver/internal/core/nutrition/estimator"
	"nutrition-resolver/internal/core/nutrition/matcher"
	"nutrition-resolver/internal/core/nutrition/normalize"
	"nutrition-resolver/internal/core/nutrition/summary"
	"nutrition-resolver/internal/pkg/common"
)

// ProductCache 已驗證產品的快取
type ProductCache interface {
	Get(key string) (cache.Entry, bool)
	Set(key string, entry cache.Entry)
}

// CatalogMatcher 目錄匹配
type CatalogMatcher interface {
	Match(name string, kind common.CatalogKind) (matcher.Result, bool)
}

// FallbackEstimator 模型估算
type FallbackEstimator interface {
	Estimate(ctx context.Context, items []common.FoodItem) ([]estimator.Estimate, error)
}

// Config 解析策略
type Config struct {
	// AllowPartial 估算失敗時仍返回已解析的項目
	AllowPartial bool
	// StoreEstimates 把估算結果寫入估算層
	StoreEstimates bool
}

// Resolver 解析協調器
type Resolver struct {
	cache     ProductCache
	matcher   CatalogMatcher
	estimates cache.EstimateTier
	estimator FallbackEstimator
	cfg       Config
}

// New 創建解析器；estimates 與 est 可為 nil
func New(c ProductCache, m CatalogMatcher, estimates cache.EstimateTier, est FallbackEstimator, cfg Config) *Resolver {
	return &Resolver{
		cache:     c,
		matcher:   m,
		estimates: estimates,
		estimator: est,
		cfg:       cfg,
	}
}

// Resolution 快取與目錄解析的結果；兩個清單都保持輸入順序
type Resolution struct {
	Resolved   []common.ResolvedItem `json:"resolved"`
	Unresolved []common.FoodItem     `json:"unresolved"`
}

type indexed struct {
	index int
	item  common.ResolvedItem
}

type pending struct {
	index int
	item  common.FoodItem
}

// ResolveItems 只用快取與目錄解析，每個項目恰好出現在其中一個清單
func (r *Resolver) ResolveItems(items []common.FoodItem) Resolution {
	resolved, unresolved := r.resolve(items)

	res := Resolution{
		Resolved:   make([]common.ResolvedItem, len(resolved)),
		Unresolved: make([]common.FoodItem, len(unresolved)),
	}
	for i, it := range resolved {
		res.Resolved[i] = it.item
	}
	for i, p := range unresolved {
		res.Unresolved[i] = p.item
	}
	return res
}

func (r *Resolver) resolve(items []common.FoodItem) ([]indexed, []pending) {
	var (
		resolved   []indexed
		unresolved []pending
	)
	for i, it := range items {
		key := normalize.Normalize(it.Name)

		if entry, ok := r.cache.Get(key); ok {
			resolved = append(resolved, indexed{i, summary.NewItem(it.Name, entry.Name, it.Grams,
				summary.Scale(entry.Per100g, it.Grams), common.SourceCache, it.Branded)})
			continue
		}

		if m, ok := r.matcher.Match(it.Name, common.KindFor(it.Branded)); ok {
			r.cache.Set(key, cache.Entry{Name: m.Entry.Name, Per100g: m.Entry.NutritionRecord})
			resolved = append(resolved, indexed{i, summary.NewItem(it.Name, m.Entry.Name, it.Grams,
				summary.Scale(m.Entry.NutritionRecord, it.Grams), common.SourceCatalog, it.Branded)})
			common.LogInfo("目錄命中",
				zap.String("query", it.Name),
				zap.String("match", m.Entry.Name),
				zap.Float64("score", m.Score),
			)
			continue
		}

		unresolved = append(unresolved, pending{i, it})
	}
	return resolved, unresolved
}

// Options 單次請求的輸出選項
type Options struct {
	Header string
}

// Result 完整流程的結果
type Result struct {
	Items  []common.ResolvedItem `json:"items"`
	Totals common.Totals         `json:"totals"`
	Failed []common.FoodItem     `json:"failed,omitempty"`
	Text   string                `json:"text"`
}

// Process 驗證、解析、估算並格式化；輸出順序與輸入一致
func (r *Resolver) Process(ctx context.Context, items []common.FoodItem, opts Options) (*Result, error) {
	if len(items) == 0 {
		return nil, common.ErrNoFoodItems
	}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return nil, err
		}
	}

	resolved, unresolved := r.resolve(items)
	lines := make([]*common.ResolvedItem, len(items))
	for _, it := range resolved {
		item := it.item
		lines[it.index] = &item
	}

	remaining := r.fromEstimateTier(ctx, unresolved, lines)

	var failed []common.FoodItem
	if len(remaining) > 0 {
		if err := r.estimate(ctx, remaining, lines); err != nil {
			if !r.cfg.AllowPartial {
				return nil, err
			}
			common.LogWarn("部分項目無法估算，返回部分結果", zap.Int("failed", len(remaining)), zap.Error(err))
			for _, p := range remaining {
				failed = append(failed, p.item)
			}
		}
	}

	out := make([]common.ResolvedItem, 0, len(items))
	for _, l := range lines {
		if l != nil {
			out = append(out, *l)
		}
	}

	return &Result{
		Items:  out,
		Totals: summary.Aggregate(out),
		Failed: failed,
		Text:   summary.Format(out, summary.Options{Header: opts.Header, Failed: failed}),
	}, nil
}

// fromEstimateTier 從估算層取得先前的估算，返回仍未解析的項目
func (r *Resolver) fromEstimateTier(ctx context.Context, unresolved []pending, lines []*common.ResolvedItem) []pending {
	if r.estimates == nil {
		return unresolved
	}

	var remaining []pending
	for _, p := range unresolved {
		key := normalize.Normalize(p.item.Name)
		entry, ok, err := r.estimates.Get(ctx, key)
		if err != nil {
			common.LogWarn("估算層讀取失敗", zap.String("key", key), zap.Error(err))
		}
		if !ok || err != nil {
			remaining = append(remaining, p)
			continue
		}
		item := summary.NewItem(p.item.Name, entry.Name, p.item.Grams,
			summary.Scale(entry.Per100g, p.item.Grams), common.SourceEstimate, p.item.Branded)
		lines[p.index] = &item
	}
	return remaining
}

func (r *Resolver) estimate(ctx context.Context, remaining []pending, lines []*common.ResolvedItem) error {
	if r.estimator == nil {
		return common.ErrFallbackEstimation.Wrap(errors.New("no estimator configured"))
	}

	req := make([]common.FoodItem, len(remaining))
	for i, p := range remaining {
		req[i] = p.item
	}

	estimates, err := r.estimator.Estimate(ctx, req)
	if err != nil {
		return err
	}
	if len(estimates) != len(remaining) {
		return common.ErrFallbackEstimation.Wrap(errors.New("estimate count does not match request"))
	}

	for i, est := range estimates {
		p := remaining[i]
		item := summary.NewItem(p.item.Name, p.item.Name, p.item.Grams, est.Amount, common.SourceEstimate, p.item.Branded)
		lines[p.index] = &item

		if r.cfg.StoreEstimates && r.estimates != nil {
			key := normalize.Normalize(p.item.Name)
			entry := cache.Entry{Name: p.item.Name, Per100g: summary.Per100g(est.Amount, p.item.Grams)}
			if err := r.estimates.Set(ctx, key, entry); err != nil {
				common.LogWarn("估算層寫入失敗", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return nil
}
