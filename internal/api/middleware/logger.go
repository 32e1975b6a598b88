package middleware

import (
	"net/http"
	"time"

	"nutrition-resolver/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 處理器寫入 gin.Context 的解析摘要，由 Logger 帶進請求日誌
const (
	KeyResolvedItems = "nutrition.items"
	KeySourceMix     = "nutrition.sources"
	KeyFailedItems   = "nutrition.failed"
)

// sourceOrder 日誌欄位的固定順序
var sourceOrder = []common.ResolutionSource{
	common.SourceCache,
	common.SourceCatalog,
	common.SourceEstimate,
}

// SourceMix 每個來源解析出的項目數
type SourceMix map[common.ResolutionSource]int

// RecordResolution 記下一次解析的項目數、來源分佈與失敗數
func RecordResolution(c *gin.Context, items []common.ResolvedItem, failed int) {
	mix := make(SourceMix, len(sourceOrder))
	for _, it := range items {
		mix[it.Source]++
	}
	c.Set(KeyResolvedItems, len(items))
	c.Set(KeySourceMix, mix)
	c.Set(KeyFailedItems, failed)
}

// ResolutionFields 從 gin.Context 取出解析摘要；沒有解析的請求返回 nil
func ResolutionFields(c *gin.Context) []zap.Field {
	if _, ok := c.Get(KeyResolvedItems); !ok {
		return nil
	}
	fields := []zap.Field{
		zap.Int("items", c.GetInt(KeyResolvedItems)),
		zap.Int("failed", c.GetInt(KeyFailedItems)),
	}
	mix, _ := c.Get(KeySourceMix)
	counts, _ := mix.(SourceMix)
	for _, src := range sourceOrder {
		fields = append(fields, zap.Int("source_"+string(src), counts[src]))
	}
	return fields
}

// statusClass 狀態碼對應的日誌級別、訊息與分類
type statusClass struct {
	level zapcore.Level
	msg   string
	kind  string
}

func classify(status int) statusClass {
	switch {
	case status >= http.StatusInternalServerError:
		return statusClass{zapcore.ErrorLevel, "伺服器錯誤", "server_error"}
	case status >= http.StatusBadRequest:
		return statusClass{zapcore.WarnLevel, "用戶端錯誤", "client_error"}
	case status >= http.StatusMultipleChoices:
		return statusClass{zapcore.InfoLevel, "重新導向", "redirect"}
	default:
		return statusClass{zapcore.InfoLevel, "請求完成", ""}
	}
}

// logRequestID requestid 中間件未掛載時改用處理器寫回的回應標頭
func logRequestID(c *gin.Context) string {
	if id := requestid.Get(c); id != "" {
		return id
	}
	return c.Writer.Header().Get("X-Request-ID")
}

func requestFields(c *gin.Context, path string, latency time.Duration) []zap.Field {
	fields := []zap.Field{
		zap.Int("status", c.Writer.Status()),
		zap.String("method", c.Request.Method),
		zap.String("path", path),
		zap.String("ip", c.ClientIP()),
		zap.Duration("latency", latency),
		zap.String("request_id", logRequestID(c)),
	}
	if route := c.FullPath(); route != "" && route != path {
		fields = append(fields, zap.String("route", route))
	}
	return fields
}

// Logger 請求日誌；解析類端點另外帶出項目數與來源分佈
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := append(requestFields(c, path, time.Since(start)), ResolutionFields(c)...)
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		class := classify(c.Writer.Status())
		if class.kind != "" {
			fields = append(fields, zap.String("error_type", class.kind))
		}
		switch class.level {
		case zapcore.ErrorLevel:
			common.LogError(class.msg, fields...)
		case zapcore.WarnLevel:
			common.LogWarn(class.msg, fields...)
		default:
			common.LogInfo(class.msg, fields...)
		}
	}
}

// Recovery panic 時回 500，並記下請求 ID 與已完成的解析摘要
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				fields := append([]zap.Field{
					zap.Any("panic", rec),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", logRequestID(c)),
					zap.Stack("stack"),
				}, ResolutionFields(c)...)
				common.LogError("請求處理發生 panic", fields...)

				status, resp := common.ToErrorResponse(common.ErrInternalError, false)
				c.AbortWithStatusJSON(status, resp)
			}
		}()

		c.Next()
	}
}
