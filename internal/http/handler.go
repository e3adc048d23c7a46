// internal/http/handler.go
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"learnhub-server/internal/accounts"
	"learnhub-server/internal/dialogue"
	"learnhub-server/internal/llm"
	"learnhub-server/internal/model"
	"learnhub-server/internal/rag"
	"learnhub-server/internal/store"
	"learnhub-server/internal/task"
)

// StatusFor 把业务错误映射为 HTTP 状态码
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case model.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, task.ErrNotFound),
		errors.Is(err, dialogue.ErrNotFound),
		errors.Is(err, accounts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, task.ErrFinished):
		return http.StatusConflict
	case errors.Is(err, rag.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, llm.ErrUpstream), errors.Is(err, llm.ErrEmptyResponse):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, task.ErrClosed), errors.Is(err, accounts.ErrNoAccount):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleError 记录日志并写出错误响应；500 不向客户端暴露内部细节
func HandleError(c *gin.Context, err error) {
	status := StatusFor(err)
	message := err.Error()

	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Str("rid", RequestIDFromContext(c)).
		Int("status", status).
		Msg("❌ 请求处理失败")

	if status == http.StatusInternalServerError {
		message = "服务器内部错误"
	}
	_ = c.Error(err)
	WriteError(c, status, message)
}

// WriteError 写出统一的错误信封
func WriteError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, model.Response{
		Status: model.StatusError,
		Data: gin.H{
			"message": message,
		},
	})
}

// WriteSuccess 写出 200 成功信封
func WriteSuccess(c *gin.Context, data any) {
	WriteStatus(c, http.StatusOK, data)
}

// WriteStatus 以指定状态码写出成功信封
func WriteStatus(c *gin.Context, status int, data any) {
	c.JSON(status, model.Response{
		Status: model.StatusSuccess,
		Data:   data,
	})
}
