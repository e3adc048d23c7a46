package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"

	"learnhub-server/internal/model"
)

const maxRequestBodyBytes int64 = 1 << 20 // 1 MiB

// normalizer 与 validator 由请求结构体按需实现
type normalizer interface{ Normalize() }

type validator interface{ Validate() error }

// DecodeJSON 严格解析请求体：限制大小、拒绝未知字段与多余数据，然后规范化并校验
func DecodeJSON[T any](body io.Reader) (T, error) {
	var zero T

	limited := io.LimitReader(body, maxRequestBodyBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return zero, fmt.Errorf("读取请求数据失败: %w", err)
	}
	if int64(len(raw)) > maxRequestBodyBytes {
		return zero, model.NewValidationError("body", fmt.Sprintf("请求体大小不得超过 %d 字节", maxRequestBodyBytes))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return zero, model.NewValidationError("body", "请求体为空")
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()

	var req T
	if err := decoder.Decode(&req); err != nil {
		return zero, model.NewValidationError("body", fmt.Sprintf("请求体解析失败: %v", err))
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return zero, model.NewValidationError("body", "请求体包含多余数据")
		}
		return zero, model.NewValidationError("body", fmt.Sprintf("请求体解析失败: %v", err))
	}

	if n, ok := any(&req).(normalizer); ok {
		n.Normalize()
	}
	if v, ok := any(&req).(validator); ok {
		if err := v.Validate(); err != nil {
			return zero, err
		}
	}
	return req, nil
}

// BindJSON 解析请求体，失败时直接写出错误响应并返回 false
func BindJSON[T any](c *gin.Context) (T, bool) {
	req, err := DecodeJSON[T](c.Request.Body)
	if err != nil {
		HandleError(c, err)
		return req, false
	}
	return req, true
}
