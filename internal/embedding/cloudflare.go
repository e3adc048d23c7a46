// internal/embedding/cloudflare.go
//
// 向量嵌入服务模块
//
// 本模块把自然语言文本转换为稠密向量，供知识库入库与检索使用。
// 默认实现调用部署在 Cloudflare Worker 上的 BGE-M3 模型（1024 维）。
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// ErrEmptyEmbedding 表示服务返回的向量为空
var ErrEmptyEmbedding = errors.New("embedding 数据为空")

// Client 定义文本向量化的通用接口
//
// 通过接口抽象，可以灵活替换不同的向量化服务，测试中使用假实现。
type Client interface {
	// Embed 将文本转换为向量表示
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CloudflareClient 基于 Cloudflare Worker 的向量化客户端
type CloudflareClient struct {
	// Endpoint Cloudflare Worker 的完整 URL
	Endpoint string

	// HTTPClient 用于发送 HTTP 请求的客户端
	HTTPClient *http.Client
}

// NewCloudflareClient 创建一个新的 Cloudflare 向量化客户端
func NewCloudflareClient(endpoint string) *CloudflareClient {
	return &CloudflareClient{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Embed 实现 Client 接口
//
// Worker 返回的 JSON 结构：
//
//	{"embedding": {"data": [[0.123, 0.456, ...]]}}
func (c *CloudflareClient) Embed(ctx context.Context, text string) ([]float32, error) {
	jsonData, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP 请求失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding API 返回错误状态码 %d: %s", resp.StatusCode, string(data))
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("解析 embedding 响应失败: 非法 JSON")
	}

	first := gjson.GetBytes(data, "embedding.data.0")
	if !first.IsArray() {
		return nil, ErrEmptyEmbedding
	}

	// Qdrant 使用 float32 存储向量
	values := first.Array()
	if len(values) == 0 {
		return nil, ErrEmptyEmbedding
	}
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v.Float())
	}
	return vec, nil
}
