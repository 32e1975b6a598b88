package normalize

// rawSimilarWords 烹調方式形容詞的各種拼法 -> 統一寫法（按性別 / 單複數分組）
var rawSimilarWords = map[string]string{
	// 煮
	"вареные":  "отварные",
	"варёные":  "отварные",
	"отварные": "отварные",
	"вареная":  "отварная",
	"варёная":  "отварная",
	"отварная": "отварная",
	"вареный":  "отварной",
	"варёный":  "отварной",
	"отварной": "отварной",
	"вареное":  "отварное",
	"варёное":  "отварное",
	"отварное": "отварное",

	// 炸 / 煎
	"жареные":    "жаренные",
	"жареная":    "жаренная",
	"жарёная":    "жаренная",
	"обжаренный": "жареный",
	"обжаренная": "жареная",

	// 燉
	"тушёные":  "тушеные",
	"тушенные": "тушеные",
	"тушёная":  "тушеная",
	"тушеная":  "тушеная",

	// 烤
	"запечённые": "запеченные",
	"запеченые":  "запеченные",
	"печеные":    "запеченные",
	"запечённая": "запеченная",
	"запеченая":  "запеченная",
	"печеная":    "запеченная",
}

// similarWords 鍵與值都先經過 Normalize，才能對正規化後的輸入生效
var similarWords = buildSimilarWords(rawSimilarWords)

func buildSimilarWords(raw map[string]string) map[string]string {
	direct := make(map[string]string, len(raw))
	for k, v := range raw {
		direct[Normalize(k)] = Normalize(v)
	}

	// 沿著替換鏈走到不動點（обжаренная -> жареная -> жаренная），
	// 否則 ReplaceSimilarWords 不具冪等性
	out := make(map[string]string, len(direct))
	for k := range direct {
		v := k
		for steps := 0; steps <= len(direct); steps++ {
			next, ok := direct[v]
			if !ok || next == v {
				break
			}
			v = next
		}
		out[k] = v
	}
	return out
}
