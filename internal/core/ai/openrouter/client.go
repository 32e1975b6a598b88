package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"nutrition-resolver/internal/core/ai/provider"
	"nutrition-resolver/internal/pkg/common"
)

const (
	defaultBaseURL   = "https://openrouter.ai/api/v1"
	defaultMaxTokens = 1000
	defaultTimeout   = 60 * time.Second
)

// Client OpenRouter API 客戶端（OpenAI 相容的 chat completions）
type Client struct {
	http    *resty.Client
	keys    KeyRotator
	model   string
	maxTok  int
	timeout time.Duration
}

var _ provider.Provider = (*Client)(nil)

// contentPart 多模態內容片段
type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

// Response OpenRouter 響應結構
type Response struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []Choice       `json:"choices"`
	Usage   provider.Usage `json:"usage"`
}

// Choice 選擇結構
type Choice struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
}

// APIError 表示 API 錯誤
type APIError struct {
	Error struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Code    interface{} `json:"code"`
	} `json:"error"`
}

// Option 客戶端選項
type Option func(*Client)

// WithKeyRotator 替換 Key 輪詢策略
func WithKeyRotator(r KeyRotator) Option {
	return func(c *Client) {
		if r != nil {
			c.keys = r
		}
	}
}

// NewClient 創建新的 OpenRouter 客戶端
func NewClient(cfg provider.Config, opts ...Option) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxTok := cfg.MaxTokens
	if maxTok <= 0 {
		maxTok = defaultMaxTokens
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	if cfg.Referer != "" {
		httpClient.SetHeader("HTTP-Referer", cfg.Referer)
	}
	if cfg.Title != "" {
		httpClient.SetHeader("X-Title", cfg.Title)
	}

	c := &Client{
		http:    httpClient,
		keys:    NewRoundRobin(cfg.APIKeys...),
		model:   cfg.Model,
		maxTok:  maxTok,
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func toWire(msgs []provider.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.ImageURL == "" {
			out = append(out, wireMessage{Role: m.Role, Content: m.Content})
			continue
		}
		url := m.ImageURL
		if !strings.HasPrefix(url, "data:image/") && !strings.HasPrefix(url, "http") {
			url = "data:image/jpeg;base64," + url
		}
		out = append(out, wireMessage{
			Role: m.Role,
			Content: []contentPart{
				{Type: "text", Text: m.Content},
				{Type: "image_url", ImageURL: &imageURL{URL: url}},
			},
		})
	}
	return out
}

// Generate 生成回應
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, fmt.Errorf("empty request")
	}
	key := c.keys.Next()
	if key == "" {
		return nil, fmt.Errorf("no OpenRouter API key configured")
	}

	maxTok := req.MaxTokens
	if maxTok <= 0 {
		maxTok = c.maxTok
	}
	body := wireRequest{
		Model:       c.model,
		Messages:    toWire(req.Messages),
		MaxTokens:   maxTok,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(key).
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		err = fmt.Errorf("failed to send request to OpenRouter: %w", err)
		common.LogAICall(req.Purpose, time.Since(start), err)
		return nil, err
	}

	if resp.StatusCode() != http.StatusOK {
		msg := sanitizeResponse(resp.Body())
		var apiErr APIError
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		err = fmt.Errorf("OpenRouter API error (status %d): %s", resp.StatusCode(), msg)
		common.LogAICall(req.Purpose, time.Since(start), err)
		return nil, err
	}

	var result Response
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		err = fmt.Errorf("failed to parse OpenRouter response: %w", err)
		common.LogAICall(req.Purpose, time.Since(start), err)
		return nil, err
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		err = fmt.Errorf("empty content in OpenRouter response")
		common.LogAICall(req.Purpose, time.Since(start), err)
		return nil, err
	}

	common.LogAICall(req.Purpose, time.Since(start), nil)
	common.LogDebug("OpenRouter 回應",
		zap.String("model", result.Model),
		zap.Int("total_tokens", result.Usage.TotalTokens),
	)

	model := result.Model
	if model == "" {
		model = c.model
	}
	return &provider.Response{
		Content: result.Choices[0].Message.Content,
		Model:   model,
		Usage:   result.Usage,
	}, nil
}

// sanitizeResponse 移除回應中的圖片數據並截斷
func sanitizeResponse(body []byte) string {
	s := string(body)
	if strings.Contains(s, "data:image/") || strings.Contains(s, "base64") {
		return "[IMAGE_DATA_REMOVED]"
	}
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}

// GetModel 模型名稱
func (c *Client) GetModel() string {
	return c.model
}

// GetTimeout 請求超時時間
func (c *Client) GetTimeout() time.Duration {
	return c.timeout
}

// Close 關閉客戶端
func (c *Client) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}
