package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"nutrition-resolver/internal/core/nutrition/normalize"
)

var samples = []string{
	"",
	"   ",
	"Гречка Варёная",
	"  ЁЖИК  ",
	"Йогурт Epica манго",
	"Crème brûlée",
	"куриная грудка обжаренная",
	"Сыр   Almette  лёгкий",
	"ТУШЁНЫЕ овощи",
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "гречка вареная", normalize.Normalize("  Гречка Варёная "))
	assert.Equal(t, "creme brulee", normalize.Normalize("Crème Brûlée"))
	assert.Equal(t, "", normalize.Normalize("   "))
	// й decomposes into и + breve, the breve is dropped
	assert.Equal(t, "иогурт", normalize.Normalize("Йогурт"))
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, s := range samples {
		once := normalize.Normalize(s)
		assert.Equal(t, once, normalize.Normalize(once), s)
	}
}

func TestReplaceSimilarWords(t *testing.T) {
	assert.Equal(t, "гречка отварная", normalize.ReplaceSimilarWords("гречка вареная"))
	assert.Equal(t, "картофель запеченные", normalize.ReplaceSimilarWords("Картофель печеные"))
	assert.Equal(t, "овощи тушеные", normalize.ReplaceSimilarWords("овощи   тушенные"))
	assert.Equal(t, "банан", normalize.ReplaceSimilarWords("БАНАН"))
	assert.Equal(t, "", normalize.ReplaceSimilarWords(""))
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "гречка отварная", normalize.Canonical("Гречка варёная"))
	assert.Equal(t, normalize.Canonical("гречка отварная"), normalize.Canonical("гречка вареная"))
	// chained synonyms resolve to the final form in one pass
	assert.Equal(t, "грудка жаренная", normalize.Canonical("грудка обжаренная"))
	assert.Equal(t, "грудка жаренная", normalize.Canonical("грудка жарёная"))
}

func TestCanonical_Idempotent(t *testing.T) {
	for _, s := range samples {
		once := normalize.Canonical(s)
		assert.Equal(t, once, normalize.Canonical(once), s)
	}
}
