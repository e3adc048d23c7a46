package zimage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"learnhub-server/internal/llm"
)

// Image 一次生成的结果，URL 与 B64 二选一
type Image struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64Json,omitempty"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
}

// Client 调用 OpenAI 图片生成兼容接口
type Client struct {
	Endpoint string
	APIKey   string
	Model    string
	HTTP     *http.Client
}

// NewClient 创建图片接口客户端
func NewClient(endpoint, apiKey, model string) *Client {
	return &Client{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Model:    model,
		HTTP:     &http.Client{Timeout: 120 * time.Second},
	}
}

// Generate 生成一张图片
func (c *Client) Generate(ctx context.Context, prompt, size string) (*Image, error) {
	payload, err := json.Marshal(map[string]any{
		"model":  c.Model,
		"prompt": prompt,
		"size":   size,
		"n":      1,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("创建图片请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: 图片接口请求失败: %v", llm.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("读取图片接口响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("%w: 图片接口返回错误: %s", llm.ErrUpstream, msg)
	}

	first := gjson.GetBytes(body, "data.0")
	img := &Image{
		URL:           first.Get("url").String(),
		B64JSON:       first.Get("b64_json").String(),
		RevisedPrompt: first.Get("revised_prompt").String(),
	}
	if img.URL == "" && img.B64JSON == "" {
		return nil, fmt.Errorf("%w: 图片接口未返回图片", llm.ErrUpstream)
	}
	return img, nil
}
