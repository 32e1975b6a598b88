// Package nutrition 提供營養解析相關的 HTTP 處理器
package nutrition

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"nutrition-resolver/internal/api/middleware"
	"nutrition-resolver/internal/core/nutrition/cache"
	"nutrition-resolver/internal/core/nutrition/catalog"
	"nutrition-resolver/internal/core/nutrition/resolver"
	"nutrition-resolver/internal/core/nutrition/summary"
	"nutrition-resolver/internal/pkg/common"
)

// Resolver 解析流程
type Resolver interface {
	Process(ctx context.Context, items []common.FoodItem, opts resolver.Options) (*resolver.Result, error)
}

// Recognizer 從文字或照片辨識食物
type Recognizer interface {
	FromText(ctx context.Context, text string) ([]common.FoodItem, error)
	FromPhoto(ctx context.Context, imageData, caption string) ([]common.FoodItem, error)
}

// Catalog 目錄的統計與重新載入
type Catalog interface {
	Reload(ctx context.Context) error
	Stats() catalog.Stats
}

// CacheStats 快取統計
type CacheStats interface {
	GetStats() cache.Stats
}

// Handler 營養 API 處理器
type Handler struct {
	resolver   Resolver
	recognizer Recognizer
	catalog    Catalog
	cache      CacheStats
	debug      bool
}

// NewHandler 創建處理器；recognizer 可為 nil（此時辨識端點回傳 503）
func NewHandler(r Resolver, rec Recognizer, cat Catalog, c CacheStats, debug bool) *Handler {
	return &Handler{
		resolver:   r,
		recognizer: rec,
		catalog:    cat,
		cache:      c,
		debug:      debug,
	}
}

// ResolveRequest 解析請求
type ResolveRequest struct {
	Items  []common.FoodItem `json:"items" binding:"required"`
	Header string            `json:"header,omitempty"`
}

// RecognizeRequest 辨識請求：text 或 image 擇一
type RecognizeRequest struct {
	Text    string `json:"text,omitempty"`
	Image   string `json:"image,omitempty"` // base64、data URI 或 URL
	Caption string `json:"caption,omitempty"`
	Header  string `json:"header,omitempty"`
}

// RecognizeResponse 辨識與解析結果
type RecognizeResponse struct {
	Recognized []common.FoodItem `json:"recognized"`
	*resolver.Result
}

// TextRequest 純文字請求
type TextRequest struct {
	Text string `json:"text" binding:"required"`
}

// DaySummaryRequest 當日彙總請求
type DaySummaryRequest struct {
	Responses []string `json:"responses"`
}

// DaySummaryResponse 當日彙總結果
type DaySummaryResponse struct {
	summary.DaySummary
	Text string `json:"text"`
}

// requestID 沿用 requestid 中間件或請求帶來的 ID，否則產生新的
func requestID(c *gin.Context) string {
	if id := requestid.Get(c); id != "" {
		return id
	}
	id := c.GetHeader("X-Request-ID")
	if id == "" {
		id = uuid.New().String()
	}
	c.Header("X-Request-ID", id)
	return id
}

func (h *Handler) fail(c *gin.Context, id, msg string, err error) {
	status, resp := common.ToErrorResponse(err, h.debug)
	fields := []zap.Field{
		zap.Error(err),
		zap.String("request_id", id),
		zap.Int("status", status),
	}
	if status >= http.StatusInternalServerError {
		common.LogError(msg, fields...)
	} else {
		common.LogWarn(msg, fields...)
	}
	c.JSON(status, resp)
}

// HandleResolve POST /nutrition/resolve
func (h *Handler) HandleResolve(c *gin.Context) {
	id := requestID(c)

	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, id, "請求格式無效", common.NewValidationError(err.Error()))
		return
	}

	result, err := h.resolver.Process(c.Request.Context(), req.Items, resolver.Options{Header: req.Header})
	if err != nil {
		h.fail(c, id, "營養解析失敗", err)
		return
	}

	middleware.RecordResolution(c, result.Items, len(result.Failed))
	common.LogInfo("營養解析完成",
		zap.String("request_id", id),
		zap.Int("items", len(result.Items)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("total_kcal", result.Totals.Kcal),
	)
	c.JSON(http.StatusOK, result)
}

// HandleRecognize POST /nutrition/recognize
func (h *Handler) HandleRecognize(c *gin.Context) {
	id := requestID(c)

	var req RecognizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, id, "請求格式無效", common.NewValidationError(err.Error()))
		return
	}
	if h.recognizer == nil {
		h.fail(c, id, "辨識服務未啟用", common.ErrServiceUnavailable)
		return
	}

	var (
		items  []common.FoodItem
		err    error
		header = req.Header
	)
	switch {
	case strings.TrimSpace(req.Image) != "":
		items, err = h.recognizer.FromPhoto(c.Request.Context(), req.Image, req.Caption)
		if header == "" {
			header = summary.DefaultPhotoHeader
		}
	case strings.TrimSpace(req.Text) != "":
		items, err = h.recognizer.FromText(c.Request.Context(), req.Text)
	default:
		err = common.NewValidationError("text or image is required")
	}
	if err != nil {
		h.fail(c, id, "食物辨識失敗", err)
		return
	}

	result, err := h.resolver.Process(c.Request.Context(), items, resolver.Options{Header: header})
	if err != nil {
		h.fail(c, id, "營養解析失敗", err)
		return
	}

	middleware.RecordResolution(c, result.Items, len(result.Failed))
	common.LogInfo("辨識與解析完成",
		zap.String("request_id", id),
		zap.Int("recognized", len(items)),
		zap.Int("total_kcal", result.Totals.Kcal),
	)
	c.JSON(http.StatusOK, RecognizeResponse{Recognized: items, Result: result})
}

// HandleRoundTotals POST /nutrition/round-totals
func (h *Handler) HandleRoundTotals(c *gin.Context) {
	id := requestID(c)

	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, id, "請求格式無效", common.NewValidationError(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": summary.RoundTotals(req.Text)})
}

// HandleDaySummary POST /nutrition/day-summary
func (h *Handler) HandleDaySummary(c *gin.Context) {
	id := requestID(c)

	var req DaySummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, id, "請求格式無效", common.NewValidationError(err.Error()))
		return
	}

	day := summary.SummarizeDay(req.Responses)
	c.JSON(http.StatusOK, DaySummaryResponse{DaySummary: day, Text: day.Text()})
}

// HandleCatalogStats GET /catalog/stats
func (h *Handler) HandleCatalogStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.Stats())
}

// HandleCatalogReload POST /catalog/reload
func (h *Handler) HandleCatalogReload(c *gin.Context) {
	id := requestID(c)

	if err := h.catalog.Reload(c.Request.Context()); err != nil {
		h.fail(c, id, "目錄重新載入失敗", common.ErrCatalogUnavailable.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, h.catalog.Stats())
}

// HandleCacheStats GET /cache/stats
func (h *Handler) HandleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.GetStats())
}
