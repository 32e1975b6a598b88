package estimator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrition-resolver/internal/core/ai/provider"
	"nutrition-resolver/internal/core/nutrition/estimator"
	"nutrition-resolver/internal/pkg/common"
)

type fakeProvider struct {
	content string
	err     error
	delay   time.Duration
	calls   int
	last    *provider.Request
}

func (f *fakeProvider) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	f.calls++
	f.last = req
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Response{Content: f.content}, nil
}

func (f *fakeProvider) GetModel() string          { return "fake" }
func (f *fakeProvider) GetTimeout() time.Duration { return time.Second }
func (f *fakeProvider) Close() error              { return nil }

var items = []common.FoodItem{
	{Name: "пирог с капустой", Grams: 120},
	{Name: "суп харчо", Grams: 300},
}

func TestEstimate_ByName(t *testing.T) {
	p := &fakeProvider{content: "```json\n[" +
		`{"name":"Суп харчо","grams":300,"kcal":210,"protein":12,"fat":9,"carb":18,"fiber":1.5},` +
		`{"name":"Пирог с капустой","grams":120,"kcal":300,"protein":6.5,"fat":10,"carb":43,"fiber":1.9}` +
		"]\n```"}
	est := estimator.New(p)

	got, err := est.Estimate(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, items[0], got[0].Item)
	assert.Equal(t, 300.0, got[0].Amount.Kcal)
	assert.Equal(t, items[1], got[1].Item)
	assert.Equal(t, 210.0, got[1].Amount.Kcal)

	assert.Equal(t, 1, p.calls)
	require.Len(t, p.last.Messages, 2)
	assert.Equal(t, "пирог с капустой – 120 г\nсуп харчо – 300 г", p.last.Messages[1].Content)
}

func TestEstimate_FallsBackToPosition(t *testing.T) {
	p := &fakeProvider{content: `Вот результат: [` +
		`{"name":"Пирожок","kcal":300,"protein":6,"fat":10,"carb":43,"fiber":2},` +
		`{"name":"Харчо","kcal":210,"protein":12,"fat":9,"carb":18,"fiber":1}]`}

	got, err := estimator.New(p).Estimate(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 300.0, got[0].Amount.Kcal)
	assert.Equal(t, 210.0, got[1].Amount.Kcal)
}

func TestEstimate_RescalesWhenGramsDiffer(t *testing.T) {
	p := &fakeProvider{content: `[{"name":"пирог с капустой","grams":100,"kcal":250,"protein":5,"fat":8,"carb":36,"fiber":1}]`}

	got, err := estimator.New(p).Estimate(context.Background(), items[:1])
	require.NoError(t, err)
	assert.InDelta(t, 300.0, got[0].Amount.Kcal, 1e-9)
	assert.InDelta(t, 6.0, got[0].Amount.Protein, 1e-9)
}

func TestEstimate_Failures(t *testing.T) {
	cases := map[string]*fakeProvider{
		"provider error": {err: errors.New("boom")},
		"not json":       {content: "не знаю"},
		"missing item":   {content: `[{"name":"пирог с капустой","kcal":1,"protein":1,"fat":1,"carb":1,"fiber":1}]`},
		"negative":       {content: `[{"name":"a","kcal":-1,"protein":1,"fat":1,"carb":1,"fiber":1},{"name":"b","kcal":1,"protein":1,"fat":1,"carb":1,"fiber":1}]`},
		"missing field":  {content: `[{"name":"a","kcal":1,"protein":1,"fat":1,"carb":1},{"name":"b","kcal":1,"protein":1,"fat":1,"carb":1,"fiber":1}]`},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := estimator.New(p).Estimate(context.Background(), items)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrFallbackEstimation)
		})
	}
}

func TestEstimate_Timeout(t *testing.T) {
	p := &fakeProvider{delay: time.Second, content: "[]"}
	est := estimator.New(p, estimator.WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := est.Estimate(context.Background(), items)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrFallbackEstimation)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestEstimate_Empty(t *testing.T) {
	p := &fakeProvider{}
	got, err := estimator.New(p).Estimate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, p.calls)
}

func TestEstimate_WrappedObject(t *testing.T) {
	p := &fakeProvider{content: `{"items":[{"name":"пирог с капустой","kcal":300,"protein":6,"fat":10,"carb":43,"fiber":2}]}`}
	got, err := estimator.New(p).Estimate(context.Background(), items[:1])
	require.NoError(t, err)
	assert.Equal(t, 300.0, got[0].Amount.Kcal)
}
