// Package claude 通过 Anthropic 模型提供对话接口，支持 SSE 流式输出
package claude

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	httpapi "learnhub-server/internal/http"
	"learnhub-server/internal/llm"
	"learnhub-server/internal/model"
)

const maxMessages = 50

// ChatRequest 对话请求
type ChatRequest struct {
	System      string        `json:"system,omitempty"`
	Messages    []llm.Message `json:"messages"`
	MaxTokens   int           `json:"maxTokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

func (r *ChatRequest) Normalize() {
	r.System = strings.TrimSpace(r.System)
	for i := range r.Messages {
		r.Messages[i].Role = strings.ToLower(strings.TrimSpace(r.Messages[i].Role))
	}
}

func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return model.NewValidationError("messages", "消息不能为空")
	}
	if len(r.Messages) > maxMessages {
		return model.NewValidationError("messages", "消息过多")
	}
	for _, m := range r.Messages {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			return model.NewValidationError("messages", "role 只能是 user 或 assistant")
		}
		if strings.TrimSpace(m.Content) == "" {
			return model.NewValidationError("messages", "消息内容不能为空")
		}
	}
	if r.Messages[len(r.Messages)-1].Role != llm.RoleUser {
		return model.NewValidationError("messages", "最后一条消息必须来自 user")
	}
	if r.MaxTokens < 0 || r.MaxTokens > 8192 {
		return model.NewValidationError("maxTokens", "maxTokens 必须在 0 到 8192 之间")
	}
	if r.Temperature < 0 || r.Temperature > 1 {
		return model.NewValidationError("temperature", "temperature 必须在 0 到 1 之间")
	}
	return nil
}

// Router Claude 对话路由
type Router struct {
	llm   llm.Client
	model string
}

// New 创建路由；modelName 仅用于响应展示
func New(c llm.Client, modelName string) *Router {
	return &Router{llm: c, model: modelName}
}

// Mount 挂载到 /api/claude
func (r *Router) Mount(rg *gin.RouterGroup) {
	rg.POST("/chat", r.chat)
}

func (r *Router) chat(c *gin.Context) {
	req, ok := httpapi.BindJSON[ChatRequest](c)
	if !ok {
		return
	}
	llmReq := llm.Request{
		System:      req.System,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	if !req.Stream {
		reply, err := r.llm.Chat(c.Request.Context(), llmReq)
		if err != nil {
			httpapi.HandleError(c, err)
			return
		}
		httpapi.WriteSuccess(c, gin.H{"model": r.model, "reply": reply})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	full, err := r.llm.ChatStream(c.Request.Context(), llmReq, func(chunk string) error {
		c.SSEvent("delta", gin.H{"text": chunk})
		c.Writer.Flush()
		return c.Request.Context().Err()
	})
	if err != nil {
		// 响应头已发送，只能通过事件告知客户端
		log.Warn().Err(err).Str("rid", httpapi.RequestIDFromContext(c)).Msg("⚠️ 流式对话中断")
		c.SSEvent("error", gin.H{"message": err.Error()})
		c.Writer.Flush()
		return
	}
	c.SSEvent("done", gin.H{"model": r.model, "reply": full})
	c.Writer.Flush()
}
