package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrition-resolver/internal/api"
	"nutrition-resolver/internal/core/nutrition/cache"
	"nutrition-resolver/internal/core/nutrition/catalog"
	"nutrition-resolver/internal/core/nutrition/matcher"
	"nutrition-resolver/internal/core/nutrition/resolver"
	"nutrition-resolver/internal/infrastructure/config"
	"nutrition-resolver/internal/pkg/common"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("APP_OPENROUTER_ENABLED", "false")
	t.Setenv("APP_APP_DEBUG", "true")
	cfg, err := config.Load(viper.New())
	require.NoError(t, err)
	cfg.DedupWindow = time.Minute

	cat := catalog.NewStatic([]common.CatalogEntry{
		{Name: "Банан", NutritionRecord: common.NutritionRecord{Kcal: 96, Protein: 1.5, Fat: 0.5, Carb: 21, Fiber: 1.7}},
	}, nil)
	pc := cache.NewProductCache("product", 10)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return api.SetupRouter(ctx, cfg, api.Dependencies{
		Resolver: resolver.New(pc, matcher.New(cat), nil, nil, resolver.Config{}),
		Catalog:  cat,
		Cache:    pc,
	})
}

func TestRouter_Routes(t *testing.T) {
	r := newRouter(t)

	for _, path := range []string{"/health", "/ready", "/live", "/api/v1/catalog/stats", "/api/v1/cache/stats"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"), path)
	}
}

func TestRouter_ResolveAndDedup(t *testing.T) {
	r := newRouter(t)
	body := `{"items":[{"name":"банан","grams":100}]}`

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/nutrition/resolve", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "96 ккал")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/nutrition/resolve", strings.NewReader(body)))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRouter_RecognizeDisabled(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/nutrition/recognize", strings.NewReader(`{"text":"съел банан"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
