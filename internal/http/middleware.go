package httpapi

import (
	"crypto/subtle"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"learnhub-server/internal/routes"
)

const (
	requestIDContextKey = "_request_id"
	requestIDHeader     = "X-Request-ID"
	// FingerprintHeader 客户端设备指纹请求头
	FingerprintHeader = "X-Device-Fingerprint"
)

// RequestLogger 中间件：生成请求 ID 并记录访问日志（包含路由标签）
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(requestIDContextKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = log.Error()
		case status >= http.StatusBadRequest:
			event = log.Warn()
		}
		event.
			Str("rid", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("route", c.FullPath()).
			Str("tag", routes.TagFromContext(c)).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("[HTTP]")

		for _, e := range c.Errors {
			log.Debug().Str("rid", requestID).Err(e.Err).Msg("[HTTP] error")
		}
	}
}

// RequestIDFromContext 返回当前请求的 Request ID
func RequestIDFromContext(c *gin.Context) string {
	if v, ok := c.Get(requestIDContextKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// Recovery 捕获处理函数中的 panic 并返回 500 信封
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Str("rid", RequestIDFromContext(c)).
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("❌ 请求处理 panic")
				WriteError(c, http.StatusInternalServerError, "服务器内部错误")
			}
		}()
		c.Next()
	}
}

// SecurityHeaders 为所有响应添加常用安全响应头
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("X-XSS-Protection", "0")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}

// Fingerprint 返回设备指纹，缺省时退化为客户端 IP
func Fingerprint(c *gin.Context) string {
	if fp := strings.TrimSpace(c.GetHeader(FingerprintHeader)); fp != "" {
		return fp
	}
	return c.ClientIP()
}

// RequireBearer 校验 Authorization: Bearer <token>；token 为空时不做校验
func RequireBearer(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(token)) != 1 {
			WriteError(c, http.StatusUnauthorized, "未授权")
			return
		}
		c.Next()
	}
}
