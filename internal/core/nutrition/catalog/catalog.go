// Package catalog 產品目錄：從資料庫讀取並保存為不可變快照，可定期重新載入。
package catalog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"nutrition-resolver/internal/core/nutrition/normalize"
	"nutrition-resolver/internal/pkg/common"
)

// Table 單一目錄的條目與預先計算的比對鍵（索引一一對應）
type Table struct {
	Entries []common.CatalogEntry
	Keys    []string
}

// Snapshot 目錄的不可變快照
type Snapshot struct {
	tables   map[common.CatalogKind]*Table
	LoadedAt time.Time
}

func newSnapshot(byKind map[common.CatalogKind][]common.CatalogEntry) *Snapshot {
	s := &Snapshot{
		tables:   make(map[common.CatalogKind]*Table, len(byKind)),
		LoadedAt: time.Now(),
	}
	for kind, entries := range byKind {
		t := &Table{
			Entries: entries,
			Keys:    make([]string, len(entries)),
		}
		for i, e := range entries {
			t.Keys[i] = normalize.Canonical(e.Name)
		}
		s.tables[kind] = t
	}
	return s
}

// Table 取得指定目錄；不存在時返回空表
func (s *Snapshot) Table(kind common.CatalogKind) *Table {
	if s == nil {
		return &Table{}
	}
	if t, ok := s.tables[kind]; ok {
		return t
	}
	return &Table{}
}

// Stats 目錄統計
type Stats struct {
	Ready    int       `json:"ready"`
	Brand    int       `json:"brand"`
	Loaded   bool      `json:"loaded"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
	Reloads  int64     `json:"reloads"`
	Failures int64     `json:"failures"`
}

// Catalog 持有目前的目錄快照
type Catalog struct {
	store    Store
	snapshot atomic.Pointer[Snapshot]
	reloadMu sync.Mutex
	reloads  atomic.Int64
	failures atomic.Int64
}

// New 創建目錄；需呼叫 Reload 才會載入數據
func New(store Store) *Catalog {
	return &Catalog{store: store}
}

// NewStatic 以固定條目建立已載入的目錄（測試與離線使用）
func NewStatic(ready, brand []common.CatalogEntry) *Catalog {
	c := &Catalog{}
	c.snapshot.Store(newSnapshot(map[common.CatalogKind][]common.CatalogEntry{
		common.CatalogReady: ready,
		common.CatalogBrand: brand,
	}))
	return c
}

// Reload 從 store 讀取兩個目錄並替換快照；失敗時保留舊快照
func (c *Catalog) Reload(ctx context.Context) error {
	if c.store == nil {
		return fmt.Errorf("catalog has no store")
	}

	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	start := time.Now()
	byKind := make(map[common.CatalogKind][]common.CatalogEntry, 2)
	for _, kind := range []common.CatalogKind{common.CatalogReady, common.CatalogBrand} {
		entries, err := c.store.LoadEntries(ctx, kind)
		if err != nil {
			c.failures.Add(1)
			return fmt.Errorf("failed to load %s catalog: %w", kind, err)
		}
		byKind[kind] = entries
	}

	c.snapshot.Store(newSnapshot(byKind))
	c.reloads.Add(1)

	common.LogInfo("目錄快照已更新",
		zap.Int("ready", len(byKind[common.CatalogReady])),
		zap.Int("brand", len(byKind[common.CatalogBrand])),
		zap.Duration("耗時", time.Since(start)),
	)
	return nil
}

// StartAutoReload 依固定間隔重新載入，直到 ctx 取消
func (c *Catalog) StartAutoReload(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Reload(ctx); err != nil {
					common.LogError("目錄重新載入失敗", zap.Error(err))
				}
			}
		}
	}()
}

// Snapshot 目前快照，尚未載入時為 nil
func (c *Catalog) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// Table 目前快照中的指定目錄
func (c *Catalog) Table(kind common.CatalogKind) *Table {
	return c.snapshot.Load().Table(kind)
}

// Entries 目前快照中的指定目錄條目
func (c *Catalog) Entries(kind common.CatalogKind) []common.CatalogEntry {
	return c.Table(kind).Entries
}

// Loaded 是否已有快照
func (c *Catalog) Loaded() bool {
	return c.snapshot.Load() != nil
}

// Stats 目錄統計
func (c *Catalog) Stats() Stats {
	s := Stats{
		Reloads:  c.reloads.Load(),
		Failures: c.failures.Load(),
	}
	if snap := c.snapshot.Load(); snap != nil {
		s.Loaded = true
		s.LoadedAt = snap.LoadedAt
		s.Ready = len(snap.Table(common.CatalogReady).Entries)
		s.Brand = len(snap.Table(common.CatalogBrand).Entries)
	}
	return s
}
