package queue

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"nutrition-resolver/internal/core/ai/provider"
	"nutrition-resolver/internal/pkg/common"
)

// 預設值
const (
	DefaultWorkers = 4
	DefaultMaxSize = 100
)

// Status 隊列狀態
type Status struct {
	QueueLength    int   `json:"queue_length"`
	InFlight       int   `json:"in_flight"`
	ProcessedCount int64 `json:"processed_count"`
	RejectedCount  int64 `json:"rejected_count"`
	MaxQueueSize   int   `json:"max_queue_size"`
	Workers        int   `json:"workers"`
}

// Manager 限制同時進行的模型呼叫數量，超出的請求排隊等待
type Manager struct {
	inner     provider.Provider
	slots     chan struct{}
	maxSize   int
	waiting   atomic.Int64
	processed atomic.Int64
	rejected  atomic.Int64
}

var _ provider.Provider = (*Manager)(nil)

// NewManager 包裝 provider；workers 為並行上限，maxSize 為等待上限
func NewManager(inner provider.Provider, workers, maxSize int) *Manager {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Manager{
		inner:   inner,
		slots:   make(chan struct{}, workers),
		maxSize: maxSize,
	}
}

// Generate 取得空位後呼叫底層 provider
func (m *Manager) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if m.waiting.Add(1) > int64(m.maxSize) {
		m.waiting.Add(-1)
		m.rejected.Add(1)
		common.LogWarn("Queue is full",
			zap.Int("max_queue_size", m.maxSize),
			zap.String("purpose", req.Purpose),
		)
		return nil, common.ErrServiceUnavailable.Wrap(fmt.Errorf("queue is full"))
	}

	start := time.Now()
	select {
	case m.slots <- struct{}{}:
		m.waiting.Add(-1)
	case <-ctx.Done():
		m.waiting.Add(-1)
		return nil, ctx.Err()
	}
	defer func() { <-m.slots }()

	if wait := time.Since(start); wait > time.Second {
		common.LogInfo("Request dequeued",
			zap.Duration("wait", wait),
			zap.String("purpose", req.Purpose),
		)
	}

	resp, err := m.inner.Generate(ctx, req)
	m.processed.Add(1)
	return resp, err
}

// GetQueueStatus 獲取隊列狀態
func (m *Manager) GetQueueStatus() *Status {
	return &Status{
		QueueLength:    int(m.waiting.Load()),
		InFlight:       len(m.slots),
		ProcessedCount: m.processed.Load(),
		RejectedCount:  m.rejected.Load(),
		MaxQueueSize:   m.maxSize,
		Workers:        cap(m.slots),
	}
}

// GetModel 獲取模型名稱
func (m *Manager) GetModel() string {
	return m.inner.GetModel()
}

// GetTimeout 獲取超時時間
func (m *Manager) GetTimeout() time.Duration {
	return m.inner.GetTimeout()
}

// Close 關閉底層 provider
func (m *Manager) Close() error {
	return m.inner.Close()
}
