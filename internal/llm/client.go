// internal/llm/client.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrUpstream 表示模型服务调用失败，HTTP 层映射为 502
var ErrUpstream = errors.New("模型服务调用失败")

// ErrEmptyResponse 表示模型没有返回任何候选结果
var ErrEmptyResponse = errors.New("模型返回内容为空")

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 一条对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request 一次生成请求
type Request struct {
	// System 系统提示词，可为空
	System string
	// Messages 按时间顺序排列的对话
	Messages []Message
	// MaxTokens 最大输出 token 数，0 表示使用模型默认值
	MaxTokens int
	// Temperature 采样温度，0 表示使用模型默认值
	Temperature float64
}

// Client 抽象：根据提示词生成文本
type Client interface {
	Chat(ctx context.Context, req Request) (string, error)
	// ChatStream 每收到一段增量文本就调用 onChunk，返回完整文本
	ChatStream(ctx context.Context, req Request, onChunk func(chunk string) error) (string, error)
}

// LangChainClient 基于 langchaingo 的实现，可包装任意 llms.Model
type LangChainClient struct {
	Model llms.Model
	// Name 仅用于日志
	Name string
}

// NewOpenAICompatible 创建 OpenAI 兼容接口的客户端（DeepSeek 等）
func NewOpenAICompatible(apiKey, baseURL, model string) (*LangChainClient, error) {
	m, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("创建 OpenAI 兼容客户端失败: %w", err)
	}
	return &LangChainClient{Model: m, Name: model}, nil
}

// NewAnthropic 创建 Claude 客户端
func NewAnthropic(apiKey, model string) (*LangChainClient, error) {
	m, err := anthropic.New(
		anthropic.WithToken(apiKey),
		anthropic.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("创建 Anthropic 客户端失败: %w", err)
	}
	return &LangChainClient{Model: m, Name: model}, nil
}

func (c *LangChainClient) Chat(ctx context.Context, req Request) (string, error) {
	return c.generate(ctx, req)
}

func (c *LangChainClient) ChatStream(ctx context.Context, req Request, onChunk func(chunk string) error) (string, error) {
	return c.generate(ctx, req, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		return onChunk(string(chunk))
	}))
}

func (c *LangChainClient) generate(ctx context.Context, req Request, extra ...llms.CallOption) (string, error) {
	opts := append(callOptions(req), extra...)
	resp, err := c.Model.GenerateContent(ctx, toMessageContent(req), opts...)
	if err != nil {
		return "", fmt.Errorf("%w (%s): %v", ErrUpstream, c.Name, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

func callOptions(req Request) []llms.CallOption {
	var opts []llms.CallOption
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	}
	return opts
}

func toMessageContent(req Request) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.System) != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, m := range req.Messages {
		out = append(out, llms.TextParts(messageType(m.Role), m.Content))
	}
	return out
}

func messageType(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// Ask 单轮对话的便捷写法
func Ask(ctx context.Context, c Client, system, user string) (string, error) {
	return c.Chat(ctx, Request{
		System:   system,
		Messages: []Message{{Role: RoleUser, Content: user}},
	})
}
