// Package story 生成教育类故事，长篇可以作为后台任务执行
package story

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	httpapi "learnhub-server/internal/http"
	"learnhub-server/internal/llm"
	"learnhub-server/internal/model"
	"learnhub-server/internal/task"
)

// TaskKind 故事任务类型
const TaskKind = "story"

const systemPrompt = `你是一位儿童文学作家，擅长把知识点融入故事。
用户输入是一个 json 对象，包含主题 topic、体裁 genre、读者 audience 与篇幅 length（short/medium/long）。
请先构思情节，然后输出特别标志 <|Result|>，紧跟一个 json 对象：
{"title": "标题", "content": "正文，段落之间用换行分隔", "moral": "故事想传达的道理"}`

// 各篇幅对应的 max tokens
var lengthTokens = map[string]int{
	"short":  800,
	"medium": 2000,
	"long":   4000,
}

// Request 故事生成请求
type Request struct {
	Topic    string `json:"topic"`
	Genre    string `json:"genre,omitempty"`
	Audience string `json:"audience,omitempty"`
	Length   string `json:"length,omitempty"`
}

func (r *Request) Normalize() {
	r.Topic = strings.TrimSpace(r.Topic)
	r.Genre = strings.TrimSpace(r.Genre)
	r.Audience = strings.TrimSpace(r.Audience)
	r.Length = strings.ToLower(strings.TrimSpace(r.Length))
	if r.Length == "" {
		r.Length = "short"
	}
}

func (r *Request) Validate() error {
	if r.Topic == "" {
		return model.NewValidationError("topic", "主题不能为空")
	}
	if _, ok := lengthTokens[r.Length]; !ok {
		return model.NewValidationError("length", "length 只能是 short、medium 或 long")
	}
	return nil
}

// Story 生成结果
type Story struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Moral   string `json:"moral,omitempty"`
}

// Router 故事路由
type Router struct {
	llm    llm.Client
	runner *task.Runner
}

// New 创建故事路由
func New(c llm.Client, runner *task.Runner) *Router {
	return &Router{llm: c, runner: runner}
}

// Mount 挂载到 /api/story
func (r *Router) Mount(rg *gin.RouterGroup) {
	rg.POST("", r.create)
}

func (r *Router) create(c *gin.Context) {
	req, ok := httpapi.BindJSON[Request](c)
	if !ok {
		return
	}

	if c.Query("async") == "true" {
		t, err := r.runner.Submit(c.Request.Context(), TaskKind, req, func(ctx context.Context) (any, error) {
			return r.generate(ctx, req)
		})
		if err != nil {
			httpapi.HandleError(c, err)
			return
		}
		httpapi.WriteStatus(c, http.StatusAccepted, t)
		return
	}

	s, err := r.generate(c.Request.Context(), req)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	httpapi.WriteSuccess(c, s)
}

func (r *Router) generate(ctx context.Context, req Request) (*Story, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	raw, err := r.llm.Chat(ctx, llm.Request{
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: string(payload)}},
		MaxTokens:   lengthTokens[req.Length],
		Temperature: 0.9,
	})
	if err != nil {
		return nil, err
	}
	var s Story
	if err := llm.DecodeResult(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrUpstream, err)
	}
	return &s, nil
}
