package recognition_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrition-resolver/internal/core/ai/provider"
	"nutrition-resolver/internal/core/nutrition/recognition"
	"nutrition-resolver/internal/pkg/common"
)

type fakeProvider struct {
	content string
	err     error
	last    *provider.Request
}

func (f *fakeProvider) Generate(_ context.Context, req *provider.Request) (*provider.Response, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Response{Content: f.content}, nil
}

func (f *fakeProvider) GetModel() string          { return "fake" }
func (f *fakeProvider) GetTimeout() time.Duration { return time.Second }
func (f *fakeProvider) Close() error              { return nil }

type fakeImages struct{ calls int }

func (f *fakeImages) ProcessImage(_ context.Context, data string) (string, error) {
	f.calls++
	if data == "bad" {
		return "", common.NewValidationError("failed to decode image")
	}
	return "data:image/jpeg;base64,processed", nil
}

func TestFromText(t *testing.T) {
	p := &fakeProvider{content: "```json\n[" +
		`{"name":"гречка варёная","grams":150,"branded":false},` +
		`{"name":"Йогурт Epica манго","grams":"130 г","branded":true},` +
		`{"name":"","grams":10},` +
		`{"name":"вода","grams":0}` +
		"]\n```"}
	ex := recognition.New(p, nil)

	got, err := ex.FromText(context.Background(), "гречка и йогурт Epica")
	require.NoError(t, err)
	assert.Equal(t, []common.FoodItem{
		{Name: "гречка варёная", Grams: 150},
		{Name: "Йогурт Epica манго", Grams: 130, Branded: true},
	}, got)
	assert.Equal(t, "recognize_text", p.last.Purpose)
}

func TestFromText_TooShort(t *testing.T) {
	_, err := recognition.New(&fakeProvider{}, nil).FromText(context.Background(), "чай")
	assert.True(t, common.IsValidationError(err))
}

func TestFromText_NoItems(t *testing.T) {
	ex := recognition.New(&fakeProvider{content: "[]"}, nil)
	_, err := ex.FromText(context.Background(), "что-то непонятное")
	assert.ErrorIs(t, err, common.ErrNoFoodItems)

	ex = recognition.New(&fakeProvider{content: "извините"}, nil)
	_, err = ex.FromText(context.Background(), "что-то непонятное")
	assert.ErrorIs(t, err, common.ErrNoFoodItems)
}

func TestFromText_ProviderError(t *testing.T) {
	ex := recognition.New(&fakeProvider{err: errors.New("down")}, nil)
	_, err := ex.FromText(context.Background(), "гречка с курицей")
	assert.ErrorIs(t, err, common.ErrServiceUnavailable)
}

func TestFromPhoto(t *testing.T) {
	p := &fakeProvider{content: `[{"name":"банан","grams":120}]`}
	imgs := &fakeImages{}
	ex := recognition.New(p, imgs)

	got, err := ex.FromPhoto(context.Background(), "raw-image", "завтрак")
	require.NoError(t, err)
	assert.Equal(t, []common.FoodItem{{Name: "банан", Grams: 120}}, got)
	assert.Equal(t, 1, imgs.calls)

	user := p.last.Messages[1]
	assert.Equal(t, "data:image/jpeg;base64,processed", user.ImageURL)
	assert.Contains(t, user.Content, "завтрак")
}

func TestFromPhoto_Errors(t *testing.T) {
	ex := recognition.New(&fakeProvider{}, &fakeImages{})
	_, err := ex.FromPhoto(context.Background(), "", "")
	assert.True(t, common.IsValidationError(err))

	_, err = ex.FromPhoto(context.Background(), "bad", "")
	assert.True(t, common.IsValidationError(err))
}
