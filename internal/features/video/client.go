package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"learnhub-server/internal/llm"
)

// Video 生成完成的视频
type Video struct {
	JobID    string `json:"jobId"`
	URL      string `json:"url"`
	CoverURL string `json:"coverUrl,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// Client 对接异步视频生成接口：先提交作业，再轮询作业状态
type Client struct {
	BaseURL      string
	APIKey       string
	HTTP         *http.Client
	PollInterval time.Duration
}

// NewClient 创建视频接口客户端
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       apiKey,
		HTTP:         &http.Client{Timeout: 30 * time.Second},
		PollInterval: 5 * time.Second,
	}
}

// Generate 提交作业并等待完成，ctx 取消时立即返回
func (c *Client) Generate(ctx context.Context, req Request) (*Video, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, http.MethodPost, c.BaseURL+"/generations", payload)
	if err != nil {
		return nil, err
	}
	jobID := gjson.GetBytes(body, "id").String()
	if jobID == "" {
		return nil, fmt.Errorf("%w: 视频接口未返回作业 ID", llm.ErrUpstream)
	}
	log.Debug().Str("job", jobID).Msg("🔹 视频作业已提交")

	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		body, err := c.do(ctx, http.MethodGet, c.BaseURL+"/generations/"+url.PathEscape(jobID), nil)
		if err != nil {
			return nil, err
		}
		switch status := gjson.GetBytes(body, "status").String(); status {
		case "succeeded", "completed":
			return parseVideo(jobID, body)
		case "failed", "canceled", "cancelled":
			reason := gjson.GetBytes(body, "error.message").String()
			if reason == "" {
				reason = status
			}
			return nil, fmt.Errorf("%w: 视频生成失败: %s", llm.ErrUpstream, reason)
		}
	}
}

func parseVideo(jobID string, body []byte) (*Video, error) {
	v := &Video{
		JobID:    jobID,
		CoverURL: gjson.GetBytes(body, "cover_url").String(),
		Duration: int(gjson.GetBytes(body, "duration").Int()),
	}
	// 不同服务商的结果字段不一致
	for _, path := range []string{"video_url", "video.url", "output.0.url", "data.0.url"} {
		if u := gjson.GetBytes(body, path).String(); u != "" {
			v.URL = u
			break
		}
	}
	if v.URL == "" {
		return nil, fmt.Errorf("%w: 视频接口未返回视频地址", llm.ErrUpstream)
	}
	return v, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("创建视频请求失败: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: 视频接口请求失败: %v", llm.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("读取视频接口响应失败: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: 视频接口返回 %s", llm.ErrUpstream, resp.Status)
	}
	return body, nil
}
