// Package normalize 產品名稱正規化：大小寫、變音符號、ё/е 以及烹調方式同義詞。
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks NFKD 分解後移除組合符號，再以 NFC 組回
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize 將原始產品名稱轉為比較用的形式
//
// 小寫、NFKD + 去除組合符號（同時把 ё→е、й→и）、ё→е、去掉首尾空白。
// 對任何字串都有結果，且 Normalize(Normalize(x)) == Normalize(x)。
func Normalize(raw string) string {
	s := strings.ToLower(raw)
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	// 相容分解可能產生大寫字母（例如 ℌ -> H）
	out = strings.ToLower(out)
	out = strings.ReplaceAll(out, "ё", "е")
	return strings.TrimSpace(out)
}

// ReplaceSimilarWords 以同義詞表統一烹調方式的寫法，表外的詞只轉小寫
func ReplaceSimilarWords(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		w = strings.ToLower(w)
		if canonical, ok := similarWords[w]; ok {
			w = canonical
		}
		words[i] = w
	}
	return strings.Join(words, " ")
}

// Canonical 目錄名稱與查詢共用的比對鍵
func Canonical(raw string) string {
	return ReplaceSimilarWords(Normalize(raw))
}
