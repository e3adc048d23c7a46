// Package llmtest 提供测试用的 llm.Client 替身
package llmtest

import (
	"context"
	"strings"
	"sync"

	"learnhub-server/internal/llm"
)

// Client 记录每次请求，并按 Reply 返回结果
type Client struct {
	mu    sync.Mutex
	calls []llm.Request

	// Reply 为空时返回 Text
	Reply func(req llm.Request) (string, error)
	Text  string
}

// Static 总是返回固定文本的替身
func Static(text string) *Client {
	return &Client{Text: text}
}

func (c *Client) Chat(_ context.Context, req llm.Request) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	c.mu.Unlock()

	if c.Reply != nil {
		return c.Reply(req)
	}
	return c.Text, nil
}

// ChatStream 把结果按空格拆分成多段回调
func (c *Client) ChatStream(ctx context.Context, req llm.Request, onChunk func(string) error) (string, error) {
	out, err := c.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	for _, part := range strings.SplitAfter(out, " ") {
		if part == "" {
			continue
		}
		if err := onChunk(part); err != nil {
			return "", err
		}
	}
	return out, nil
}

// Calls 返回已记录的请求副本
func (c *Client) Calls() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Request(nil), c.calls...)
}

// Last 返回最后一次请求
func (c *Client) Last() llm.Request {
	calls := c.Calls()
	if len(calls) == 0 {
		return llm.Request{}
	}
	return calls[len(calls)-1]
}
