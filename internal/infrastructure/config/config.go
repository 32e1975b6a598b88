package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App         AppConfig        `mapstructure:"app"`
	Server      ServerConfig     `mapstructure:"server"`
	OpenRouter  OpenRouterConfig `mapstructure:"openrouter"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Estimates   EstimatesConfig  `mapstructure:"estimates"`
	Catalog     CatalogConfig    `mapstructure:"catalog"`
	Matcher     MatcherConfig    `mapstructure:"matcher"`
	Fallback    FallbackConfig   `mapstructure:"fallback"`
	Queue       QueueConfig      `mapstructure:"queue"`
	RateLimit   RateLimitConfig  `mapstructure:"rate_limit"`
	Image       ImageConfig      `mapstructure:"image"`
	DedupWindow time.Duration    `mapstructure:"dedup_window"`
	LogLevel    string           `mapstructure:"log_level"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// OpenRouterConfig OpenRouter 配置
type OpenRouterConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	APIKey     string        `mapstructure:"api_key"`
	APIKeys    string        `mapstructure:"api_keys"` // 以逗號分隔，輪流使用
	Model      string        `mapstructure:"model"`
	MaxTokens  int           `mapstructure:"max_tokens"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	BaseURL    string        `mapstructure:"base_url"`
}

// Keys 合併 api_key 與 api_keys
func (c OpenRouterConfig) Keys() []string {
	var keys []string
	seen := map[string]bool{}
	for _, k := range append([]string{c.APIKey}, strings.Split(c.APIKeys, ",")...) {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

// CacheConfig 產品快取配置
type CacheConfig struct {
	MaxSize int `mapstructure:"max_size"`
}

// EstimatesConfig 估算層配置
type EstimatesConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Backend       string        `mapstructure:"backend"` // memory | redis
	MaxSize       int           `mapstructure:"max_size"`
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

// CatalogConfig 產品目錄資料庫配置
type CatalogConfig struct {
	Driver         string        `mapstructure:"driver"` // sqlite | postgres
	DSN            string        `mapstructure:"dsn"`
	ReadyTable     string        `mapstructure:"ready_table"`
	BrandTable     string        `mapstructure:"brand_table"`
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
}

// MatcherConfig 模糊比對配置
type MatcherConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

// FallbackConfig 模型估算配置
type FallbackConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	AllowPartial bool          `mapstructure:"allow_partial"`
}

// QueueConfig 模型呼叫隊列配置
type QueueConfig struct {
	Workers int `mapstructure:"workers"`
	MaxSize int `mapstructure:"max_size"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// ImageConfig 圖片配置
type ImageConfig struct {
	MaxSizeBytes int64 `mapstructure:"max_size_bytes"`
}

// LoadConfig 載入設定（.env 可有可無）
func LoadConfig() (*Config, error) {
	// 加載 .env 文件
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return Load(viper.New())
}

// Load 以指定的 viper 實例讀取設定
func Load(v *viper.Viper) (*Config, error) {
	// 設定預設值
	setDefaults(v)

	// 設定環境變數前綴
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 綁定環境變量
	_ = v.BindEnv("openrouter.api_key", "OPENROUTER_API_KEY")
	_ = v.BindEnv("openrouter.api_keys", "OPENROUTER_API_KEYS", "OPENAI_KEYS")
	_ = v.BindEnv("openrouter.model", "OPENROUTER_MODEL")
	_ = v.BindEnv("openrouter.max_tokens", "MODEL_MAX_TOKENS")
	_ = v.BindEnv("catalog.driver", "CATALOG_DRIVER")
	_ = v.BindEnv("catalog.dsn", "CATALOG_DSN", "DATABASE_URL")
	_ = v.BindEnv("estimates.redis_addr", "REDIS_ADDR")
	_ = v.BindEnv("estimates.redis_password", "REDIS_PASSWORD")
	_ = v.BindEnv("matcher.threshold", "MATCH_THRESHOLD")
	_ = v.BindEnv("fallback.allow_partial", "FALLBACK_ALLOW_PARTIAL")
	_ = v.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	_ = v.BindEnv("rate_limit.requests", "RATE_LIMIT_REQUESTS")
	_ = v.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	_ = v.BindEnv("dedup_window", "DEDUP_WINDOW")
	_ = v.BindEnv("log_level", "LOG_LEVEL")

	// 可選的 YAML 設定檔
	if path := os.Getenv("APP_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 解析設定
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 驗證必要設定
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// MaskAPIKey 遮罩 API Key，只顯示前後各 4 個字符
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "nutrition-resolver")

	// 伺服器設定
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "75s")

	// OpenRouter 設定
	v.SetDefault("openrouter.enabled", true)
	v.SetDefault("openrouter.model", "openai/gpt-4o")
	v.SetDefault("openrouter.max_tokens", 700)
	v.SetDefault("openrouter.timeout", "60s")
	v.SetDefault("openrouter.max_retries", 1)
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")

	// 快取設定
	v.SetDefault("cache.max_size", 2000)

	// 估算層設定
	v.SetDefault("estimates.enabled", false)
	v.SetDefault("estimates.backend", "memory")
	v.SetDefault("estimates.max_size", 2000)
	v.SetDefault("estimates.ttl", "168h")
	v.SetDefault("estimates.redis_addr", "localhost:6379")
	v.SetDefault("estimates.redis_db", 0)

	// 目錄設定
	v.SetDefault("catalog.driver", "sqlite")
	v.SetDefault("catalog.dsn", "file:catalog.db")
	v.SetDefault("catalog.ready_table", "products")
	v.SetDefault("catalog.brand_table", "productbrend")
	v.SetDefault("catalog.reload_interval", "0s")

	// 比對與估算
	v.SetDefault("matcher.threshold", 85)
	v.SetDefault("fallback.timeout", "30s")
	v.SetDefault("fallback.allow_partial", false)

	// 隊列設定
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.max_size", 100)

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")

	// 圖片設定
	v.SetDefault("image.max_size_bytes", 10*1024*1024) // 10MB

	v.SetDefault("dedup_window", "1s")
	v.SetDefault("log_level", "info")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	// 驗證伺服器設定
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", config.Server.Port)
	}

	if config.Cache.MaxSize <= 0 {
		return fmt.Errorf("invalid cache max size")
	}

	if config.Estimates.Enabled {
		switch config.Estimates.Backend {
		case "memory":
			if config.Estimates.MaxSize <= 0 {
				return fmt.Errorf("invalid estimates max size")
			}
		case "redis":
			if config.Estimates.RedisAddr == "" {
				return fmt.Errorf("estimates redis address is required")
			}
		default:
			return fmt.Errorf("unknown estimates backend %q", config.Estimates.Backend)
		}
	}

	switch strings.ToLower(config.Catalog.Driver) {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported catalog driver %q", config.Catalog.Driver)
	}
	if config.Catalog.DSN == "" {
		return fmt.Errorf("catalog dsn is required")
	}

	if config.Matcher.Threshold <= 0 || config.Matcher.Threshold > 100 {
		return fmt.Errorf("matcher threshold must be in (0, 100]")
	}
	if config.Fallback.Timeout <= 0 {
		return fmt.Errorf("invalid fallback timeout")
	}

	if config.Queue.Workers <= 0 || config.Queue.MaxSize <= 0 {
		return fmt.Errorf("invalid queue settings")
	}

	if config.OpenRouter.Enabled && len(config.OpenRouter.Keys()) == 0 {
		return fmt.Errorf("openrouter api key is required when openrouter is enabled")
	}

	return nil
}
