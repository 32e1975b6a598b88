package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// EstimateTier 存放模型估算結果的低信任快取層，與目錄驗證過的數據分開
type EstimateTier interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
}

// MemoryTier 以獨立的 ProductCache 實作估算層
type MemoryTier struct {
	cache *ProductCache
}

// NewMemoryTier 創建記憶體估算層
func NewMemoryTier(capacity int) *MemoryTier {
	return &MemoryTier{cache: NewProductCache("estimate", capacity)}
}

// Get 取得估算值
func (m *MemoryTier) Get(_ context.Context, key string) (Entry, bool, error) {
	e, ok := m.cache.Get(key)
	return e, ok, nil
}

// Set 寫入估算值
func (m *MemoryTier) Set(_ context.Context, key string, entry Entry) error {
	m.cache.Set(key, entry)
	return nil
}

// GetStats 估算層統計
func (m *MemoryTier) GetStats() Stats {
	return m.cache.GetStats()
}

const redisKeyPrefix = "nutrition:estimate:"

// RedisTier 以 Redis 實作估算層，條目帶 TTL
type RedisTier struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOptions Redis 估算層設定
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisTier 連線 Redis 並測試
func NewRedisTier(ctx context.Context, opts RedisOptions) (*RedisTier, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisTierWithClient(client, opts.TTL), nil
}

// NewRedisTierWithClient 使用現有的 client
func NewRedisTierWithClient(client *redis.Client, ttl time.Duration) *RedisTier {
	return &RedisTier{client: client, ttl: ttl}
}

// Get 取得估算值
func (r *RedisTier) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to get estimate: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("failed to unmarshal estimate: %w", err)
	}
	return e, true, nil
}

// Set 寫入估算值
func (r *RedisTier) Set(ctx context.Context, key string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal estimate: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set estimate: %w", err)
	}
	return nil
}

// Close 關閉連線
func (r *RedisTier) Close() error {
	return r.client.Close()
}
