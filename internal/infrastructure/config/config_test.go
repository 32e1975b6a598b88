package config_test

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutrition-resolver/internal/infrastructure/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-test-key-123456")

	cfg, err := config.Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2000, cfg.Cache.MaxSize)
	assert.Equal(t, 85.0, cfg.Matcher.Threshold)
	assert.Equal(t, 30*time.Second, cfg.Fallback.Timeout)
	assert.False(t, cfg.Fallback.AllowPartial)
	assert.Equal(t, "products", cfg.Catalog.ReadyTable)
	assert.Equal(t, "productbrend", cfg.Catalog.BrandTable)
	assert.Equal(t, "sqlite", cfg.Catalog.Driver)
	assert.Equal(t, []string{"sk-test-key-123456"}, cfg.OpenRouter.Keys())
	assert.Equal(t, time.Second, cfg.DedupWindow)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, 100, cfg.Queue.MaxSize)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEYS", "k1, k2,k1")
	t.Setenv("MATCH_THRESHOLD", "90")
	t.Setenv("FALLBACK_ALLOW_PARTIAL", "true")
	t.Setenv("APP_SERVER_PORT", "9090")
	t.Setenv("APP_CATALOG_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db?sslmode=disable")

	cfg, err := config.Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, []string{"k1", "k2"}, cfg.OpenRouter.Keys())
	assert.Equal(t, 90.0, cfg.Matcher.Threshold)
	assert.True(t, cfg.Fallback.AllowPartial)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Catalog.Driver)
	assert.Equal(t, "postgres://u:p@localhost/db?sslmode=disable", cfg.Catalog.DSN)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		for _, k := range []string{"OPENROUTER_API_KEY", "OPENROUTER_API_KEYS", "OPENAI_KEYS", "APP_OPENROUTER_API_KEY", "APP_OPENROUTER_API_KEYS"} {
			t.Setenv(k, "")
		}
		_, err := config.Load(viper.New())
		assert.Error(t, err)
	})

	t.Run("bad threshold", func(t *testing.T) {
		t.Setenv("OPENROUTER_API_KEY", "k")
		t.Setenv("MATCH_THRESHOLD", "150")
		_, err := config.Load(viper.New())
		assert.Error(t, err)
	})

	t.Run("bad estimates backend", func(t *testing.T) {
		t.Setenv("OPENROUTER_API_KEY", "k")
		t.Setenv("APP_ESTIMATES_ENABLED", "true")
		t.Setenv("APP_ESTIMATES_BACKEND", "memcached")
		_, err := config.Load(viper.New())
		assert.Error(t, err)
	})

	t.Run("bad catalog driver", func(t *testing.T) {
		t.Setenv("OPENROUTER_API_KEY", "k")
		t.Setenv("CATALOG_DRIVER", "mysql")
		_, err := config.Load(viper.New())
		assert.Error(t, err)
	})
}

func TestLoad_OpenRouterDisabledNeedsNoKey(t *testing.T) {
	t.Setenv("APP_OPENROUTER_ENABLED", "false")
	_, err := config.Load(viper.New())
	assert.NoError(t, err)
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", config.MaskAPIKey("short"))
	assert.Equal(t, "sk-a...wxyz", config.MaskAPIKey("sk-abcdefghwxyz"))
}
