// Package recognition 從文字描述或照片中辨識食物與份量。
package recognition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"nutrition-resolver/internal/core/ai/provider"
	"nutrition-resolver/internal/pkg/common"
)

// MinTextLength 描述太短時不送出
const MinTextLength = 5

const textPrompt = "Ты нутрициолог. Пользователь описал текстом, что он ел.\n\n" +
	"Определи, какие продукты он упомянул и примерный вес каждого (в граммах).\n\n" +
	"Формат ответа:\n" +
	"[{\"name\": \"название продукта на русском языке\", \"grams\": число, \"branded\": false}]\n\n" +
	"⚠️ ВАЖНО:\n" +
	"- Используй только готовые продукты (например: «гречка варёная», «куриная грудка жареная», «банан»)\n" +
	"- Если в описании есть конкретное название бренда (например, «Йогурт Epica манго»), пометь его как branded: true\n" +
	"- Если бренд не указан — branded: false\n" +
	"- Не оценивай КБЖУ сам\n" +
	"- Ответ строго в формате JSON без пояснений"

const photoPrompt = "Ты нутрициолог. Пользователь прислал фото еды.\n\n" +
	"Определи, какие продукты на фото, примерный вес каждого (в граммах), и верни список в формате:\n\n" +
	"[{\"name\": \"название продукта на русском языке\", \"grams\": число, \"branded\": false}]\n\n" +
	"⚠️ ВАЖНО:\n" +
	"Если блюдо сложное — распиши его по составу. Даже если оно кажется простым, всё равно укажи компоненты и их примерный вес.\n" +
	"- Используй ТОЛЬКО готовые продукты — например: «гречка варёная», «куриная грудка жареная», «банан».\n" +
	"- Оценивай вес по справочным данным и типичным порциям, характерным для российской кухни.\n" +
	"- Игнорируй людей, руки, фон, посуду и всё, что не еда.\n" +
	"- Если на упаковке чётко видно название бренда (например, «Йогурт Epica манго», «Almette сыр лёгкий») — установи \"branded\": true\n" +
	"- В остальных случаях — установи \"branded\": false\n" +
	"- Не оценивай КБЖУ сам — только определи название, вес и branded\n" +
	"- Ответ строго в формате JSON без комментариев, пояснений и кода."

// ImageProcessor 照片前處理
type ImageProcessor interface {
	ProcessImage(ctx context.Context, imageData string) (string, error)
}

// Extractor 食物辨識器
type Extractor struct {
	provider provider.Provider
	images   ImageProcessor
}

// New 創建辨識器；images 為 nil 時照片原樣送出
func New(p provider.Provider, images ImageProcessor) *Extractor {
	return &Extractor{provider: p, images: images}
}

// FromText 從文字描述辨識
func (e *Extractor) FromText(ctx context.Context, text string) ([]common.FoodItem, error) {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < MinTextLength {
		return nil, common.NewValidationError("meal description is too short")
	}

	return e.extract(ctx, "recognize_text", []provider.Message{
		{Role: "system", Content: textPrompt},
		provider.UserText(text),
	})
}

// FromPhoto 從照片（可附說明）辨識
func (e *Extractor) FromPhoto(ctx context.Context, imageData, caption string) ([]common.FoodItem, error) {
	if strings.TrimSpace(imageData) == "" {
		return nil, common.NewValidationError("image is required")
	}

	uri := imageData
	if e.images != nil {
		processed, err := e.images.ProcessImage(ctx, imageData)
		if err != nil {
			return nil, err
		}
		uri = processed
	}

	note := strings.TrimSpace(caption)
	if note != "" {
		note = "Пояснение пользователя: " + note
	}
	return e.extract(ctx, "recognize_photo", []provider.Message{
		{Role: "system", Content: photoPrompt},
		provider.UserImage(note, uri),
	})
}

type rawItem struct {
	Name    string      `json:"name"`
	Grams   interface{} `json:"grams"`
	Branded bool        `json:"branded"`
}

func (e *Extractor) extract(ctx context.Context, purpose string, msgs []provider.Message) ([]common.FoodItem, error) {
	if e.provider == nil {
		return nil, common.ErrServiceUnavailable.Wrap(errors.New("no provider configured"))
	}

	resp, err := e.provider.Generate(ctx, &provider.Request{
		Messages:  msgs,
		MaxTokens: 700,
		Purpose:   purpose,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, common.ErrGatewayTimeout.Wrap(err)
		}
		return nil, common.ErrServiceUnavailable.Wrap(err)
	}

	var raws []rawItem
	body := common.ExtractJSON(resp.Content)
	if err := common.ParseJSON(body, &raws); err != nil {
		if err2 := common.ParseJSON(common.QuoteJSONKeys(body), &raws); err2 != nil {
			common.LogWarn("辨識回覆無法解析", zap.Error(err), zap.String("purpose", purpose))
			return nil, common.ErrNoFoodItems.Wrap(fmt.Errorf("failed to parse recognition response: %w", err))
		}
	}

	items := make([]common.FoodItem, 0, len(raws))
	for _, r := range raws {
		item := common.FoodItem{
			Name:    strings.TrimSpace(r.Name),
			Grams:   toGrams(r.Grams),
			Branded: r.Branded,
		}
		if err := item.Validate(); err != nil {
			common.LogWarn("略過無效的辨識項目", zap.String("name", r.Name), zap.Any("grams", r.Grams))
			continue
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, common.ErrNoFoodItems
	}
	common.LogInfo("食物已辨識", zap.String("purpose", purpose), zap.Int("items", len(items)))
	return items, nil
}

// toGrams 模型有時回傳字串（"150" 或 "150 г"）
func toGrams(v interface{}) float64 {
	switch g := v.(type) {
	case float64:
		if math.IsNaN(g) || math.IsInf(g, 0) {
			return 0
		}
		return g
	case string:
		var f float64
		s := strings.ReplaceAll(strings.TrimSpace(g), ",", ".")
		if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
			return 0
		}
		return f
	}
	return 0
}
