package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"

	_ "image/gif" // 支援 GIF
	_ "image/png" // 支援 PNG

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // 支援 WebP

	"nutrition-resolver/internal/pkg/common"
)

// DefaultMaxDimension 餐點照片送出前的最長邊
const DefaultMaxDimension = 1024

// Service 餐點照片前處理：解碼、縮小、重新編碼為 JPEG data URI
type Service struct {
	maxSizeBytes int64
	maxDimension int
	httpClient   *http.Client
}

// NewService 創建新的圖片處理服務
func NewService(maxSizeBytes int64) *Service {
	return &Service{
		maxSizeBytes: maxSizeBytes,
		maxDimension: DefaultMaxDimension,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ProcessImage 處理圖片（http(s) URL、data URI 或純 base64）
func (s *Service) ProcessImage(ctx context.Context, imageData string) (string, error) {
	raw, err := s.load(ctx, strings.TrimSpace(imageData))
	if err != nil {
		return "", err
	}
	return s.ProcessBytes(raw)
}

// ProcessBytes 處理已讀取的圖片位元組
func (s *Service) ProcessBytes(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", common.NewValidationError("image data is empty")
	}
	// 檢查文件大小
	if s.maxSizeBytes > 0 && int64(len(raw)) > s.maxSizeBytes {
		return "", common.NewValidationError(fmt.Sprintf("image size exceeds maximum limit of %d bytes", s.maxSizeBytes))
	}

	// 解碼圖片
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", common.NewValidationError(fmt.Sprintf("failed to decode image: %v", err))
	}
	if !isSupportedFormat(format) {
		return "", common.NewValidationError(fmt.Sprintf("unsupported image format: %s", format))
	}

	img = s.shrink(img)

	// 將圖片轉換為 JPEG 格式
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("failed to encode image as JPEG: %w", err)
	}

	common.LogDebug("圖片已處理",
		zap.String("format", format),
		zap.Int("原始大小", len(raw)),
		zap.Int("輸出大小", buf.Len()),
	)
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (s *Service) load(ctx context.Context, imageData string) ([]byte, error) {
	switch {
	case imageData == "":
		return nil, common.NewValidationError("image data is empty")

	case strings.HasPrefix(imageData, "http://"), strings.HasPrefix(imageData, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageData, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create image request: %w", err)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to download image: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to download image: status code %d", resp.StatusCode)
		}
		limit := s.maxSizeBytes
		if limit <= 0 {
			limit = 1 << 30
		}
		// 多讀一個位元組以便判斷超過上限
		return io.ReadAll(io.LimitReader(resp.Body, limit+1))

	case strings.HasPrefix(imageData, "data:image/"):
		_, payload, ok := strings.Cut(imageData, ",")
		if !ok {
			return nil, common.NewValidationError("invalid base64 data format")
		}
		return decodeBase64(payload)

	default:
		return decodeBase64(imageData)
	}
}

func decodeBase64(payload string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, common.NewValidationError(fmt.Sprintf("failed to decode base64 data: %v", err))
	}
	return decoded, nil
}

// shrink 等比例縮小到最長邊不超過 maxDimension
func (s *Service) shrink(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if s.maxDimension <= 0 || longest <= s.maxDimension {
		return img
	}

	nw := w * s.maxDimension / longest
	nh := h * s.maxDimension / longest
	dst := image.NewRGBA(image.Rect(0, 0, max(nw, 1), max(nh, 1)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// isSupportedFormat 檢查圖片格式是否支援
func isSupportedFormat(format string) bool {
	supportedFormats := map[string]bool{
		"jpeg": true,
		"jpg":  true,
		"png":  true,
		"gif":  true,
		"webp": true,
	}
	return supportedFormats[format]
}
