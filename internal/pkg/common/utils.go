package common

import (
	"net/http"

	"github.com/google/uuid"
)

// GenerateUUID 生成 UUID
func GenerateUUID() string {
	return uuid.New().String()
}

// ToErrorResponse 將錯誤轉為 API 錯誤響應與狀態碼
// 使用者只會看到通用訊息，debug 模式才附上原始錯誤
func ToErrorResponse(err error, debug bool) (int, ErrorResponse) {
	if IsValidationError(err) {
		resp := ErrorResponse{Code: ErrCodeInvalidRequest, Message: ErrInvalidRequest.Message}
		resp.Details = err.Error()
		return http.StatusBadRequest, resp
	}

	ce, ok := AsCustomError(err)
	if !ok {
		ce = ErrInternalError
	}
	resp := ErrorResponse{Code: ce.Code, Message: ce.Message}
	if debug && err != nil {
		resp.Details = err.Error()
	}
	return ce.Status, resp
}
