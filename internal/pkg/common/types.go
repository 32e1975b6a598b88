package common

import (
	"fmt"
	"math"
	"strings"
)

// CatalogKind 產品目錄類型
type CatalogKind string

const (
	// CatalogReady 一般 / 家常食物目錄
	CatalogReady CatalogKind = "ready"
	// CatalogBrand 品牌包裝食品目錄
	CatalogBrand CatalogKind = "brand"
)

// KindFor 依品牌旗標選擇目錄
func KindFor(branded bool) CatalogKind {
	if branded {
		return CatalogBrand
	}
	return CatalogReady
}

// ParseCatalogKind 解析目錄類型字串
func ParseCatalogKind(s string) (CatalogKind, error) {
	switch CatalogKind(strings.ToLower(strings.TrimSpace(s))) {
	case CatalogReady:
		return CatalogReady, nil
	case CatalogBrand:
		return CatalogBrand, nil
	}
	return "", fmt.Errorf("unknown catalog kind %q", s)
}

// ResolutionSource 營養數據來源
type ResolutionSource string

const (
	SourceCache    ResolutionSource = "cache"
	SourceCatalog  ResolutionSource = "catalog"
	SourceEstimate ResolutionSource = "estimate"
)

// FoodItem 待解析的食物項目（名稱 + 克數 + 品牌旗標）
type FoodItem struct {
	Name    string  `json:"name"`
	Grams   float64 `json:"grams"`
	Branded bool    `json:"branded"`
}

// Validate 檢查食物項目
func (f FoodItem) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return NewValidationError("food item name is required")
	}
	if f.Grams <= 0 {
		return NewValidationError(fmt.Sprintf("grams must be positive for %q", f.Name))
	}
	return nil
}

// NutritionRecord 每 100 克（目錄、快取）或實際克數（解析結果）的營養值
type NutritionRecord struct {
	Kcal    float64 `json:"kcal"`
	Protein float64 `json:"protein"`
	Fat     float64 `json:"fat"`
	Carb    float64 `json:"carb"`
	Fiber   float64 `json:"fiber"`
}

// Valid 所有欄位皆為有限的非負數（NaN、±Inf 無效）
func (r NutritionRecord) Valid() bool {
	for _, v := range [...]float64{r.Kcal, r.Protein, r.Fat, r.Carb, r.Fiber} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}

// CatalogEntry 目錄中的產品
type CatalogEntry struct {
	Name string `json:"name"`
	NutritionRecord
}

// ResolvedItem 已換算為實際克數並四捨五入的結果行
type ResolvedItem struct {
	Name      string           `json:"name"`
	Query     string           `json:"query"`
	Grams     float64          `json:"grams"`
	Kcal      int              `json:"kcal"`
	Protein   float64          `json:"protein"`
	Fat       float64          `json:"fat"`
	Carb      float64          `json:"carb"`
	Fiber     float64          `json:"fiber"`
	Source    ResolutionSource `json:"source"`
	Estimated bool             `json:"estimated"`
	Branded   bool             `json:"branded"`
}

// Totals 一餐的總計
type Totals struct {
	Kcal    int     `json:"total_kcal"`
	Protein int     `json:"total_protein"`
	Fat     int     `json:"total_fat"`
	Carb    int     `json:"total_carb"`
	Fiber   float64 `json:"total_fiber"`
}
