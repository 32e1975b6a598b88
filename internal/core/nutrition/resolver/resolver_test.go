package resolver_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrition-resolver/internal/core/nutrition/cache"
	"nutrition-resolver/internal/core/nutrition/catalog"
	"nutrition-resolver/internal/core/nutrition/estimator"
	"nutrition-resolver/internal/core/nutrition/matcher"
	"nutrition-resolver/internal/core/nutrition/resolver"
	"nutrition-resolver/internal/core/nutrition/summary"
	"nutrition-resolver/internal/pkg/common"
)

func rec(kcal, p, f, c, fiber float64) common.NutritionRecord {
	return common.NutritionRecord{Kcal: kcal, Protein: p, Fat: f, Carb: c, Fiber: fiber}
}

func testCatalog() *catalog.Catalog {
	return catalog.NewStatic(
		[]common.CatalogEntry{
			{Name: "Гречка отварная", NutritionRecord: rec(110, 3.6, 0.6, 21.3, 1.4)},
			{Name: "Куриная грудка жареная", NutritionRecord: rec(197, 29.8, 8.1, 0, 0)},
			{Name: "Банан", NutritionRecord: rec(96, 1.5, 0.5, 21, 1.7)},
		},
		[]common.CatalogEntry{
			{Name: "Йогурт Epica манго", NutritionRecord: rec(110, 4.8, 4.8, 11.6, 0)},
		},
	)
}

type countingMatcher struct {
	mu    sync.Mutex
	inner resolver.CatalogMatcher
	calls map[string]int
	kinds []common.CatalogKind
}

func newCountingMatcher() *countingMatcher {
	return &countingMatcher{inner: matcher.New(testCatalog()), calls: map[string]int{}}
}

func (m *countingMatcher) Match(name string, kind common.CatalogKind) (matcher.Result, bool) {
	m.mu.Lock()
	m.calls[name]++
	m.kinds = append(m.kinds, kind)
	m.mu.Unlock()
	return m.inner.Match(name, kind)
}

type fakeEstimator struct {
	per100 map[string]common.NutritionRecord
	err    error
	calls  int
	seen   [][]common.FoodItem
}

func (f *fakeEstimator) Estimate(_ context.Context, items []common.FoodItem) ([]estimator.Estimate, error) {
	f.calls++
	f.seen = append(f.seen, items)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]estimator.Estimate, len(items))
	for i, it := range items {
		out[i] = estimator.Estimate{Item: it, Amount: summary.Scale(f.per100[strings.ToLower(it.Name)], it.Grams)}
	}
	return out, nil
}

func newResolver(est resolver.FallbackEstimator, cfg resolver.Config) (*resolver.Resolver, *cache.ProductCache, *countingMatcher, *cache.MemoryTier) {
	pc := cache.NewProductCache("product", 100)
	m := newCountingMatcher()
	tier := cache.NewMemoryTier(100)
	return resolver.New(pc, m, tier, est, cfg), pc, m, tier
}

func TestProcess_Buckwheat(t *testing.T) {
	r, pc, _, _ := newResolver(&fakeEstimator{}, resolver.Config{})

	res, err := r.Process(context.Background(), []common.FoodItem{{Name: "гречка варёная", Grams: 150}}, resolver.Options{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)

	it := res.Items[0]
	assert.Equal(t, "Гречка отварная", it.Name)
	assert.Equal(t, "гречка варёная", it.Query)
	assert.Equal(t, common.SourceCatalog, it.Source)
	assert.False(t, it.Estimated)
	assert.Equal(t, 165, it.Kcal)
	assert.Equal(t, 5.4, it.Protein)
	assert.Equal(t, 0.9, it.Fat)
	assert.Equal(t, 32.0, it.Carb)
	assert.Equal(t, 2.1, it.Fiber)

	cached, ok := pc.Get("гречка вареная")
	require.True(t, ok)
	assert.Equal(t, "Гречка отварная", cached.Name)
	assert.Equal(t, 110.0, cached.Per100g.Kcal)

	assert.Equal(t, "• Гречка отварная – 150 г (~165 ккал)\n📊 Итого: 165 ккал, Белки: 5 г, Жиры: 1 г, Углеводы: 32 г, Клетчатка: 2.1 г", res.Text)
}

func TestProcess_DuplicateNameHitsCache(t *testing.T) {
	r, _, m, _ := newResolver(&fakeEstimator{}, resolver.Config{})

	res, err := r.Process(context.Background(), []common.FoodItem{
		{Name: "Банан", Grams: 100},
		{Name: "банан", Grams: 50},
	}, resolver.Options{})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)

	assert.Equal(t, 1, m.calls["Банан"]+m.calls["банан"])
	assert.Equal(t, common.SourceCatalog, res.Items[0].Source)
	assert.Equal(t, common.SourceCache, res.Items[1].Source)
	assert.Equal(t, 96, res.Items[0].Kcal)
	assert.Equal(t, 48, res.Items[1].Kcal)
}

func TestProcess_PreservesInputOrder(t *testing.T) {
	est := &fakeEstimator{per100: map[string]common.NutritionRecord{
		"пирог с капустой": rec(250, 5, 8, 36, 1),
		"суп харчо":        rec(70, 4, 3, 6, 0.5),
	}}
	r, _, _, _ := newResolver(est, resolver.Config{})

	input := []common.FoodItem{
		{Name: "пирог с капустой", Grams: 120},
		{Name: "гречка варёная", Grams: 150},
		{Name: "суп харчо", Grams: 300},
		{Name: "банан", Grams: 100},
	}
	res, err := r.Process(context.Background(), input, resolver.Options{Header: summary.DefaultPhotoHeader})
	require.NoError(t, err)
	require.Len(t, res.Items, len(input))

	for i, it := range res.Items {
		assert.Equal(t, input[i].Name, it.Query)
	}
	assert.True(t, res.Items[0].Estimated)
	assert.False(t, res.Items[1].Estimated)
	assert.True(t, res.Items[2].Estimated)
	assert.False(t, res.Items[3].Estimated)

	// both unresolved items go to the estimator in one call
	require.Equal(t, 1, est.calls)
	assert.Equal(t, []common.FoodItem{input[0], input[2]}, est.seen[0])

	lines := strings.Split(res.Text, "\n")
	assert.Equal(t, summary.DefaultPhotoHeader, lines[0])
	assert.Equal(t, "• пирог с капустой * – 120 г (~300 ккал)", lines[1])
	assert.Equal(t, "• Гречка отварная – 150 г (~165 ккал)", lines[2])
	assert.Equal(t, "• суп харчо * – 300 г (~210 ккал)", lines[3])
	assert.Equal(t, summary.EstimateFootnote, lines[len(lines)-1])
	assert.Equal(t, summary.Aggregate(res.Items), res.Totals)
}

func TestProcess_FallbackFailureFailsRequest(t *testing.T) {
	est := &fakeEstimator{err: common.ErrFallbackEstimation.Wrap(errors.New("timeout"))}
	r, _, _, _ := newResolver(est, resolver.Config{})

	res, err := r.Process(context.Background(), []common.FoodItem{
		{Name: "гречка варёная", Grams: 150},
		{Name: "пирог с капустой", Grams: 120},
	}, resolver.Options{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, common.ErrFallbackEstimation)
}

func TestProcess_AllowPartial(t *testing.T) {
	est := &fakeEstimator{err: common.ErrFallbackEstimation.Wrap(errors.New("bad json"))}
	r, _, _, _ := newResolver(est, resolver.Config{AllowPartial: true})

	res, err := r.Process(context.Background(), []common.FoodItem{
		{Name: "гречка варёная", Grams: 150},
		{Name: "пирог с капустой", Grams: 120},
	}, resolver.Options{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, []common.FoodItem{{Name: "пирог с капустой", Grams: 120}}, res.Failed)
	assert.Contains(t, res.Text, "⚠️ Не удалось рассчитать: пирог с капустой")
	assert.Equal(t, 165, res.Totals.Kcal)
}

func TestProcess_NoEstimator(t *testing.T) {
	r, _, _, _ := newResolver(nil, resolver.Config{})
	_, err := r.Process(context.Background(), []common.FoodItem{{Name: "пирог", Grams: 100}}, resolver.Options{})
	assert.ErrorIs(t, err, common.ErrFallbackEstimation)
}

func TestProcess_EstimateTierReuse(t *testing.T) {
	est := &fakeEstimator{per100: map[string]common.NutritionRecord{"пирог с капустой": rec(250, 5, 8, 36, 1)}}
	r, pc, _, tier := newResolver(est, resolver.Config{StoreEstimates: true})
	ctx := context.Background()

	_, err := r.Process(ctx, []common.FoodItem{{Name: "Пирог с капустой", Grams: 120}}, resolver.Options{})
	require.NoError(t, err)
	require.Equal(t, 1, est.calls)

	entry, ok, err := tier.Get(ctx, "пирог с капустой")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 250.0, entry.Per100g.Kcal, 1e-9)

	// estimates never enter the verified product cache
	_, ok = pc.Get("пирог с капустой")
	assert.False(t, ok)

	res, err := r.Process(ctx, []common.FoodItem{{Name: "пирог с капустой", Grams: 200}}, resolver.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, est.calls)
	require.Len(t, res.Items, 1)
	assert.True(t, res.Items[0].Estimated)
	assert.Equal(t, common.SourceEstimate, res.Items[0].Source)
	assert.Equal(t, 500, res.Items[0].Kcal)
	assert.Contains(t, res.Text, " * – 200 г")
}

func TestProcess_EstimatesNotStoredByDefault(t *testing.T) {
	est := &fakeEstimator{per100: map[string]common.NutritionRecord{"пирог": rec(250, 5, 8, 36, 1)}}
	r, _, _, tier := newResolver(est, resolver.Config{})

	_, err := r.Process(context.Background(), []common.FoodItem{{Name: "пирог", Grams: 100}}, resolver.Options{})
	require.NoError(t, err)
	_, ok, _ := tier.Get(context.Background(), "пирог")
	assert.False(t, ok)
}

func TestProcess_Validation(t *testing.T) {
	r, _, _, _ := newResolver(&fakeEstimator{}, resolver.Config{})
	ctx := context.Background()

	_, err := r.Process(ctx, nil, resolver.Options{})
	assert.ErrorIs(t, err, common.ErrNoFoodItems)

	_, err = r.Process(ctx, []common.FoodItem{{Name: "банан", Grams: 0}}, resolver.Options{})
	assert.True(t, common.IsValidationError(err))

	_, err = r.Process(ctx, []common.FoodItem{{Name: "  ", Grams: 10}}, resolver.Options{})
	assert.True(t, common.IsValidationError(err))
}

func TestResolveItems_Partition(t *testing.T) {
	r, _, m, _ := newResolver(nil, resolver.Config{})

	input := []common.FoodItem{
		{Name: "неизвестное блюдо", Grams: 100},
		{Name: "Йогурт Epica манго", Grams: 130, Branded: true},
		{Name: "банан", Grams: 120},
		{Name: "ещё что-то", Grams: 50},
	}
	res := r.ResolveItems(input)

	require.Len(t, res.Resolved, 2)
	require.Len(t, res.Unresolved, 2)
	assert.Equal(t, "Йогурт Epica манго", res.Resolved[0].Name)
	assert.True(t, res.Resolved[0].Branded)
	assert.Equal(t, "Банан", res.Resolved[1].Name)
	assert.Equal(t, []common.FoodItem{input[0], input[3]}, res.Unresolved)

	assert.Equal(t, []common.CatalogKind{common.CatalogReady, common.CatalogBrand, common.CatalogReady, common.CatalogReady}, m.kinds)
}

func TestResolveItems_BrandedUsesBrandCatalog(t *testing.T) {
	r, _, _, _ := newResolver(nil, resolver.Config{})
	// present only in the ready catalog
	res := r.ResolveItems([]common.FoodItem{{Name: "банан", Grams: 100, Branded: true}})
	assert.Empty(t, res.Resolved)
	assert.Len(t, res.Unresolved, 1)
}

func TestProcess_Concurrent(t *testing.T) {
	r, pc, _, _ := newResolver(&fakeEstimator{}, resolver.Config{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Process(context.Background(), []common.FoodItem{
				{Name: "гречка варёная", Grams: 150},
				{Name: "банан", Grams: 100},
			}, resolver.Options{})
			assert.NoError(t, err)
			if res != nil {
				assert.Equal(t, 261, res.Totals.Kcal)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, pc.Len())
}
