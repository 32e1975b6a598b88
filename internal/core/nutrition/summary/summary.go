// Package summary 營養值換算、彙總與訊息格式化。
package summary

import (
	"math"
	"strconv"
	"strings"

	"nutrition-resolver/internal/pkg/common"
)

const (
	// EstimateMarker 估算項目在名稱後的標記
	EstimateMarker = " *"
	// EstimateFootnote 有估算項目時附加的說明
	EstimateFootnote = "🔸 * — точный состав не найден, возможна погрешность"
	// DefaultPhotoHeader 照片辨識結果的標題
	DefaultPhotoHeader = "🍽️ На фото:"
	failedPrefix       = "⚠️ Не удалось рассчитать: "
)

// Round1 依二進位精確值取到小數一位，剛好落在 .x5 的十進位值以最近偶數為準
//
// 例如 0.25 得 0.2、0.35 得 0.3（0.35 的二進位值略小於 0.35）。
func Round1(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// RoundInt 取整，.5 時取最近偶數（82.5 得 82，83.5 得 84）
func RoundInt(v float64) int {
	return int(math.RoundToEven(v))
}

// Scale 將每 100 克數值換算為實際克數，不做四捨五入
func Scale(per100 common.NutritionRecord, grams float64) common.NutritionRecord {
	f := grams / 100
	return common.NutritionRecord{
		Kcal:    per100.Kcal * f,
		Protein: per100.Protein * f,
		Fat:     per100.Fat * f,
		Carb:    per100.Carb * f,
		Fiber:   per100.Fiber * f,
	}
}

// Per100g Scale 的反運算，grams <= 0 時返回零值
func Per100g(amount common.NutritionRecord, grams float64) common.NutritionRecord {
	if grams <= 0 {
		return common.NutritionRecord{}
	}
	return Scale(amount, 10000/grams)
}

// NewItem 依實際克數的數值建立結果行：kcal 取整，其餘一位小數
func NewItem(query, name string, grams float64, amount common.NutritionRecord, source common.ResolutionSource, branded bool) common.ResolvedItem {
	return common.ResolvedItem{
		Name:      name,
		Query:     query,
		Grams:     grams,
		Kcal:      RoundInt(amount.Kcal),
		Protein:   Round1(amount.Protein),
		Fat:       Round1(amount.Fat),
		Carb:      Round1(amount.Carb),
		Fiber:     Round1(amount.Fiber),
		Source:    source,
		Estimated: source == common.SourceEstimate,
		Branded:   branded,
	}
}

// Aggregate 彙總：kcal 直接相加；蛋白質、脂肪、碳水相加後取整；纖維保留一位小數
func Aggregate(items []common.ResolvedItem) common.Totals {
	var (
		kcal                     int
		protein, fat, carb, fibr float64
	)
	for _, it := range items {
		kcal += it.Kcal
		protein += it.Protein
		fat += it.Fat
		carb += it.Carb
		fibr += it.Fiber
	}
	return common.Totals{
		Kcal:    kcal,
		Protein: RoundInt(protein),
		Fat:     RoundInt(fat),
		Carb:    RoundInt(carb),
		Fiber:   Round1(fibr),
	}
}

// Options 格式化選項
type Options struct {
	// Header 第一行，空字串時省略
	Header string
	// Failed 無法估算的項目（僅在允許部分結果時出現）
	Failed []common.FoodItem
}

// Format 產生使用者看到的訊息
func Format(items []common.ResolvedItem, opts Options) string {
	lines := make([]string, 0, len(items)+4)
	if opts.Header != "" {
		lines = append(lines, opts.Header)
	}

	hasEstimate := false
	for _, it := range items {
		lines = append(lines, ItemLine(it))
		if it.Estimated {
			hasEstimate = true
		}
	}

	lines = append(lines, TotalsLine(Aggregate(items)))

	if len(opts.Failed) > 0 {
		names := make([]string, len(opts.Failed))
		for i, f := range opts.Failed {
			names[i] = f.Name
		}
		lines = append(lines, failedPrefix+strings.Join(names, ", "))
	}
	if hasEstimate {
		lines = append(lines, EstimateFootnote)
	}
	return strings.Join(lines, "\n")
}

// ItemLine 單一項目行
func ItemLine(it common.ResolvedItem) string {
	marker := ""
	if it.Estimated {
		marker = EstimateMarker
	}
	return "• " + it.Name + marker + " – " + formatGrams(it.Grams) + " г (~" + strconv.Itoa(it.Kcal) + " ккал)"
}

// TotalsLine 總計行
func TotalsLine(t common.Totals) string {
	return "📊 Итого: " + strconv.Itoa(t.Kcal) + " ккал, " +
		"Белки: " + strconv.Itoa(t.Protein) + " г, " +
		"Жиры: " + strconv.Itoa(t.Fat) + " г, " +
		"Углеводы: " + strconv.Itoa(t.Carb) + " г, " +
		"Клетчатка: " + formatFiber(t.Fiber) + " г"
}

func formatGrams(g float64) string {
	return strconv.FormatFloat(g, 'f', -1, 64)
}

func formatFiber(v float64) string {
	return strconv.FormatFloat(Round1(v), 'f', 1, 64)
}
