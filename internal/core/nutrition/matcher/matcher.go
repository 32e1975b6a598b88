// Package matcher 在產品目錄中以模糊比對尋找最接近的條目。
package matcher

import (
	"go.uber.org/zap"

	"nutrition-resolver/internal/core/nutrition/catalog"
	"nutrition-resolver/internal/core/nutrition/normalize"
	"nutrition-resolver/internal/pkg/common"
)

// DefaultThreshold 接受匹配的最低分數（含）
const DefaultThreshold = 85.0

// Scorer 兩個比對鍵的相似度（0-100）
type Scorer func(a, b string) float64

// Source 提供目錄表
type Source interface {
	Table(kind common.CatalogKind) *catalog.Table
}

// Result 匹配結果：目錄原始名稱與未換算的每 100 克營養值
type Result struct {
	Entry common.CatalogEntry
	Score float64
}

// Matcher 目錄匹配器，ready 與 brand 使用同一演算法與閾值
type Matcher struct {
	source    Source
	scorer    Scorer
	threshold float64
}

// Option 匹配器選項
type Option func(*Matcher)

// WithThreshold 設定閾值，<= 0 時忽略
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if threshold > 0 {
			m.threshold = threshold
		}
	}
}

// WithScorer 替換評分函數
func WithScorer(s Scorer) Option {
	return func(m *Matcher) {
		if s != nil {
			m.scorer = s
		}
	}
}

// New 創建匹配器
func New(source Source, opts ...Option) *Matcher {
	m := &Matcher{
		source:    source,
		scorer:    TokenSetRatio,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold 目前閾值
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match 在指定目錄中尋找最佳匹配；同分時取先出現者
func (m *Matcher) Match(name string, kind common.CatalogKind) (Result, bool) {
	query := normalize.Canonical(name)
	if query == "" {
		return Result{}, false
	}

	table := m.source.Table(kind)
	bestIdx, bestScore := -1, -1.0
	for i, key := range table.Keys {
		score := m.scorer(query, key)
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}

	if bestIdx < 0 || bestScore < m.threshold {
		common.LogDebug("目錄未匹配",
			zap.String("query", query),
			zap.String("kind", string(kind)),
			zap.Float64("最高分", bestScore),
		)
		return Result{}, false
	}

	res := Result{Entry: table.Entries[bestIdx], Score: bestScore}
	common.LogDebug("目錄已匹配",
		zap.String("query", query),
		zap.String("kind", string(kind)),
		zap.String("match", res.Entry.Name),
		zap.Float64("score", bestScore),
	)
	return res, true
}
