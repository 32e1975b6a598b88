package cache

import (
	"container/list"
	"sync"

	"nutrition-resolver/internal/pkg/common"

	"go.uber.org/zap"
)

// DefaultCapacity 產品快取預設容量
const DefaultCapacity = 2000

// Entry 快取條目：匹配到的顯示名稱 + 每 100 克營養值（未換算）
type Entry struct {
	Name    string                 `json:"name"`
	Per100g common.NutritionRecord `json:"per_100g"`
}

// Stats 快取統計
type Stats struct {
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRatio  float64 `json:"hit_ratio"`
}

type item struct {
	key   string
	entry Entry
}

// ProductCache 依插入順序淘汰的有界快取
//
// Set 已存在的鍵會先移到最新位置再寫入；超出容量時淘汰最早插入的條目。
// Get 不會更新順序。所有操作都由互斥鎖保護，可在多個請求間共用。
type ProductCache struct {
	mu       sync.Mutex
	name     string
	capacity int
	order    *list.List // front = 最早插入
	index    map[string]*list.Element
	stats    Stats
}

// NewProductCache 創建產品快取，capacity <= 0 時使用預設容量
func NewProductCache(name string, capacity int) *ProductCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &ProductCache{
		name:     name,
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}

	common.LogInfo("快取已初始化",
		zap.String("name", name),
		zap.Int("最大容量", capacity),
	)
	return c
}

// Get 取得快取值
func (c *ProductCache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.stats.Misses++
		common.LogCacheMiss(c.name, key)
		return Entry{}, false
	}
	c.stats.Hits++
	common.LogCacheHit(c.name, key)
	return el.Value.(*item).entry, true
}

// Set 寫入快取值
func (c *ProductCache) Set(key string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.order.MoveToBack(el)
		el.Value.(*item).entry = entry
		return
	}

	c.index[key] = c.order.PushBack(&item{key: key, entry: entry})

	for c.order.Len() > c.capacity {
		oldest := c.order.Front()
		evicted := c.order.Remove(oldest).(*item)
		delete(c.index, evicted.key)
		c.stats.Evictions++
		common.LogDebug("快取已淘汰",
			zap.String("name", c.name),
			zap.String("鍵", evicted.key),
		)
	}
}

// Len 目前條目數
func (c *ProductCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys 依插入順序（最早在前）返回所有鍵
func (c *ProductCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*item).key)
	}
	return keys
}

// GetStats 獲取緩存統計信息
func (c *ProductCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = c.order.Len()
	s.Capacity = c.capacity
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRatio = float64(s.Hits) / float64(total)
	}
	return s
}

// Close 清空快取並記錄統計
func (c *ProductCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.index = make(map[string]*list.Element)
	common.LogInfo("快取已關閉",
		zap.String("name", c.name),
		zap.Int64("命中次數", c.stats.Hits),
		zap.Int64("未命中次數", c.stats.Misses),
		zap.Int64("淘汰次數", c.stats.Evictions),
	)
	return nil
}
