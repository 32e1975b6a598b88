package summary

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"nutrition-resolver/internal/pkg/common"
)

const number = `([~≈]?\s*\d+(?:[.,]\d+)?)`

// totalsPattern 比對總計行，容忍 ~/≈、冒號或連字號以及小數逗號
var totalsPattern = regexp.MustCompile(`(?is)📊 Итого:\s*` + number + `\s*ккал.*?` +
	`Белки[:\-]?\s*` + number + `\s*г.*?` +
	`Жиры[:\-]?\s*` + number + `\s*г.*?` +
	`Углеводы[:\-]?\s*` + number + `\s*г.*?` +
	`Клетчатка[:\-]?\s*` + number + `\s*г`)

const (
	// NoEntriesText 當天沒有紀錄時的訊息
	NoEntriesText = "📭 В этот день не было добавлено ни одного блюда."
	// NoTotalsText 當天有紀錄但沒有任何可解析的總計行
	NoTotalsText = "📭 В записях за этот день не найдено итогов КБЖУ."
)

func parseNumber(s string) (float64, error) {
	s = strings.NewReplacer("~", "", "≈", "", ",", ".").Replace(s)
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func parseTotals(groups []string) ([5]float64, bool) {
	var out [5]float64
	for i, g := range groups {
		v, err := parseNumber(g)
		if err != nil {
			common.LogError("總計數值解析失敗", zap.String("value", g), zap.Error(err))
			return out, false
		}
		out[i] = v
	}
	return out, true
}

// RoundTotals 把文字中的每個總計行改寫為整數 kcal/蛋白質/脂肪/碳水與一位小數的纖維
//
// 無法解析的行保持原樣。對已改寫的文字再次呼叫結果不變。
func RoundTotals(text string) string {
	return totalsPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := totalsPattern.FindStringSubmatch(m)
		if sub == nil {
			return m
		}
		v, ok := parseTotals(sub[1:])
		if !ok {
			return m
		}
		return TotalsLine(common.Totals{
			Kcal:    RoundInt(v[0]),
			Protein: RoundInt(v[1]),
			Fat:     RoundInt(v[2]),
			Carb:    RoundInt(v[3]),
			Fiber:   Round1(v[4]),
		})
	})
}

// ParseTotals 取出文字中第一個總計行
func ParseTotals(text string) (common.Totals, bool) {
	sub := totalsPattern.FindStringSubmatch(text)
	if sub == nil {
		return common.Totals{}, false
	}
	v, ok := parseTotals(sub[1:])
	if !ok {
		return common.Totals{}, false
	}
	return common.Totals{
		Kcal:    RoundInt(v[0]),
		Protein: RoundInt(v[1]),
		Fat:     RoundInt(v[2]),
		Carb:    RoundInt(v[3]),
		Fiber:   Round1(v[4]),
	}, true
}

// DaySummary 一天的彙總
type DaySummary struct {
	Totals  common.Totals `json:"totals"`
	Entries int           `json:"entries"`
	Counted int           `json:"counted"`
}

// SummarizeDay 加總當天歷史回覆中的總計行；沒有總計行的回覆不計入
func SummarizeDay(responses []string) DaySummary {
	var (
		sum     [5]float64
		counted int
	)
	for _, r := range responses {
		sub := totalsPattern.FindStringSubmatch(r)
		if sub == nil {
			continue
		}
		v, ok := parseTotals(sub[1:])
		if !ok {
			continue
		}
		for i := range sum {
			sum[i] += v[i]
		}
		counted++
	}

	return DaySummary{
		Totals: common.Totals{
			Kcal:    RoundInt(sum[0]),
			Protein: RoundInt(sum[1]),
			Fat:     RoundInt(sum[2]),
			Carb:    RoundInt(sum[3]),
			Fiber:   Round1(sum[4]),
		},
		Entries: len(responses),
		Counted: counted,
	}
}

// Text 多行的當日彙總訊息
func (d DaySummary) Text() string {
	switch {
	case d.Entries == 0:
		return NoEntriesText
	case d.Counted == 0:
		return NoTotalsText
	}
	t := d.Totals
	return "📊 Итого: " + strconv.Itoa(t.Kcal) + " ккал\n" +
		"Белки: " + strconv.Itoa(t.Protein) + " г\n" +
		"Жиры: " + strconv.Itoa(t.Fat) + " г\n" +
		"Углеводы: " + strconv.Itoa(t.Carb) + " г\n" +
		"Клетчатка: " + formatFiber(t.Fiber) + " г"
}
