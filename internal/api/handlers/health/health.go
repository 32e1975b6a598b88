package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nutrition-resolver/internal/core/ai/queue"
	"nutrition-resolver/internal/core/nutrition/catalog"
	"nutrition-resolver/internal/pkg/common"
)

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime"`
	Catalog   *catalog.Stats         `json:"catalog,omitempty"`
	Queue     *queue.Status          `json:"queue,omitempty"`
}

// QueueStatus 模型呼叫隊列狀態
type QueueStatus interface {
	GetQueueStatus() *queue.Status
}

// CatalogStatus 目錄狀態
type CatalogStatus interface {
	Loaded() bool
	Stats() catalog.Stats
}

// Pinger 外部依賴的連線檢查
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler 健康檢查處理器
type Handler struct {
	version string
	catalog CatalogStatus
	db      Pinger
	queue   QueueStatus
}

// NewHandler 創建健康檢查處理器；db 與 q 可為 nil
func NewHandler(version string, c CatalogStatus, db Pinger, q QueueStatus) *Handler {
	return &Handler{version: version, catalog: c, db: db, queue: q}
}

// HealthCheck 健康檢查
func (h *Handler) HealthCheck(c *gin.Context) {
	// 獲取運行時信息
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   h.version,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
	}
	if h.catalog != nil {
		stats := h.catalog.Stats()
		response.Catalog = &stats
	}
	if h.queue != nil {
		response.Queue = h.queue.GetQueueStatus()
	}

	common.LogDebug("Health check request",
		zap.String("client_ip", c.ClientIP()),
		zap.String("path", c.Request.URL.Path),
	)

	c.JSON(http.StatusOK, response)
}

// ReadinessCheck 目錄已載入且資料庫可連線才算就緒
func (h *Handler) ReadinessCheck(c *gin.Context) {
	if h.catalog == nil || !h.catalog.Loaded() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"reason": "catalog not loaded",
		})
		return
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			common.LogWarn("目錄資料庫無法連線", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"reason": "catalog database unreachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// LivenessCheck 存活檢查
func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
