// Package estimator 以語言模型估算目錄中找不到的產品營養值。
package estimator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"nutrition-resolver/internal/core/ai/provider"
	"nutrition-resolver/internal/core/nutrition/normalize"
	"nutrition-resolver/internal/pkg/common"
)

// DefaultTimeout 單次估算的預設超時
const DefaultTimeout = 30 * time.Second

const systemPrompt = "Ты нутрициолог. Рассчитай КБЖУ для следующих продуктов с известным весом.\n\n" +
	"Формат ответа:\n" +
	"[{\"name\": \"название продукта на русском\", \"grams\": ..., \"kcal\": ..., \"protein\": ..., \"fat\": ..., \"carb\": ..., \"fiber\": ...}]\n\n" +
	"⚠️ Значения указывай для указанного веса, а не на 100 г.\n" +
	"⚠️ Все названия продуктов пиши на русском языке.\n" +
	"⚠️ Ответ только JSON, без пояснений и лишнего текста."

// Estimate 單一項目的估算結果（實際克數的數值，未四捨五入）
type Estimate struct {
	Item   common.FoodItem
	Amount common.NutritionRecord
}

// Estimator 生成式備援估算器
type Estimator struct {
	provider  provider.Provider
	timeout   time.Duration
	maxTokens int
}

// Option 估算器選項
type Option func(*Estimator)

// WithTimeout 設定超時，<= 0 時忽略
func WithTimeout(d time.Duration) Option {
	return func(e *Estimator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMaxTokens 設定回覆長度上限
func WithMaxTokens(n int) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// New 創建估算器
func New(p provider.Provider, opts ...Option) *Estimator {
	e := &Estimator{
		provider:  p,
		timeout:   DefaultTimeout,
		maxTokens: 700,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// rawEstimate 模型回覆的單一項目；指標用來分辨缺少的欄位
type rawEstimate struct {
	Name    string   `json:"name"`
	Grams   *float64 `json:"grams"`
	Kcal    *float64 `json:"kcal"`
	Protein *float64 `json:"protein"`
	Fat     *float64 `json:"fat"`
	Carb    *float64 `json:"carb"`
	Fiber   *float64 `json:"fiber"`
}

// Describe 請求中每行 "名稱 – 克數 г"
func Describe(items []common.FoodItem) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = it.Name + " – " + strconv.FormatFloat(it.Grams, 'f', -1, 64) + " г"
	}
	return strings.Join(lines, "\n")
}

// Estimate 一次請求估算所有項目；結果順序與輸入一致
//
// 任何失敗（模型錯誤、超時、無法解析、缺少項目、負值）都返回 ErrFallbackEstimation。
func (e *Estimator) Estimate(ctx context.Context, items []common.FoodItem) ([]Estimate, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if e.provider == nil {
		return nil, common.ErrFallbackEstimation.Wrap(errors.New("no provider configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.provider.Generate(ctx, &provider.Request{
		Messages: []provider.Message{
			{Role: "system", Content: systemPrompt},
			provider.UserText(Describe(items)),
		},
		MaxTokens: e.maxTokens,
		Purpose:   "fallback_estimate",
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("estimate timed out after %s: %w", e.timeout, err)
		}
		return nil, common.ErrFallbackEstimation.Wrap(err)
	}

	raws, err := parse(resp.Content)
	if err != nil {
		common.LogError("估算回覆無法解析", zap.Error(err), zap.String("content", truncate(resp.Content, 300)))
		return nil, common.ErrFallbackEstimation.Wrap(err)
	}

	out, err := assign(items, raws)
	if err != nil {
		return nil, common.ErrFallbackEstimation.Wrap(err)
	}

	for _, est := range out {
		common.LogWarn("營養值由模型估算",
			zap.String("name", est.Item.Name),
			zap.Float64("grams", est.Item.Grams),
			zap.Float64("kcal", est.Amount.Kcal),
		)
	}
	return out, nil
}

func parse(content string) ([]rawEstimate, error) {
	body := common.ExtractJSON(content)
	if body == "" {
		return nil, errors.New("empty estimate response")
	}

	var list []rawEstimate
	if strings.HasPrefix(body, "{") {
		// 部分模型會包一層物件
		var wrapped struct {
			Items    []rawEstimate `json:"items"`
			Products []rawEstimate `json:"products"`
		}
		if err := common.ParseJSON(body, &wrapped); err == nil && (len(wrapped.Items) > 0 || len(wrapped.Products) > 0) {
			return append(wrapped.Items, wrapped.Products...), nil
		}
		var single rawEstimate
		if err := common.ParseJSON(body, &single); err != nil {
			return nil, fmt.Errorf("failed to parse estimate response: %w", err)
		}
		return []rawEstimate{single}, nil
	}

	if err := common.ParseJSON(body, &list); err != nil {
		// 再試一次補上缺少的雙引號
		if err2 := common.ParseJSON(common.QuoteJSONKeys(body), &list); err2 != nil {
			return nil, fmt.Errorf("failed to parse estimate response: %w", err)
		}
	}
	return list, nil
}

// assign 先以正規化名稱對應，剩下的依位置對應
func assign(items []common.FoodItem, raws []rawEstimate) ([]Estimate, error) {
	matched := make([]int, len(items))
	for i := range matched {
		matched[i] = -1
	}
	used := make([]bool, len(raws))

	byName := make(map[string][]int, len(raws))
	for j, r := range raws {
		key := normalize.Canonical(r.Name)
		byName[key] = append(byName[key], j)
	}
	for i, it := range items {
		key := normalize.Canonical(it.Name)
		queue := byName[key]
		if len(queue) == 0 {
			continue
		}
		matched[i] = queue[0]
		used[queue[0]] = true
		byName[key] = queue[1:]
	}

	next := 0
	for i := range items {
		if matched[i] >= 0 {
			continue
		}
		for next < len(raws) && used[next] {
			next++
		}
		if next >= len(raws) {
			return nil, fmt.Errorf("estimate response is missing %q", items[i].Name)
		}
		matched[i] = next
		used[next] = true
	}

	out := make([]Estimate, len(items))
	for i, it := range items {
		amount, err := toAmount(raws[matched[i]], it.Grams)
		if err != nil {
			return nil, fmt.Errorf("invalid estimate for %q: %w", it.Name, err)
		}
		out[i] = Estimate{Item: it, Amount: amount}
	}

	if extra := len(raws) - len(items); extra > 0 {
		common.LogDebug("估算回覆含多餘項目", zap.Int("extra", extra))
	}
	return out, nil
}

// toAmount 檢查數值；模型回報的克數與請求不同時依比例換算
func toAmount(r rawEstimate, grams float64) (common.NutritionRecord, error) {
	fields := []struct {
		name string
		v    *float64
	}{
		{"kcal", r.Kcal}, {"protein", r.Protein}, {"fat", r.Fat}, {"carb", r.Carb}, {"fiber", r.Fiber},
	}
	vals := make([]float64, len(fields))
	for i, f := range fields {
		if f.v == nil {
			return common.NutritionRecord{}, fmt.Errorf("missing %s", f.name)
		}
		if math.IsNaN(*f.v) || math.IsInf(*f.v, 0) || *f.v < 0 {
			return common.NutritionRecord{}, fmt.Errorf("%s must be a non-negative number, got %v", f.name, *f.v)
		}
		vals[i] = *f.v
	}

	factor := 1.0
	if r.Grams != nil && *r.Grams > 0 && *r.Grams != grams {
		factor = grams / *r.Grams
	}
	return common.NutritionRecord{
		Kcal:    vals[0] * factor,
		Protein: vals[1] * factor,
		Fat:     vals[2] * factor,
		Carb:    vals[3] * factor,
		Fiber:   vals[4] * factor,
	}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
