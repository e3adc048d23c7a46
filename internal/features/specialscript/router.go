// Package specialscript 按指定体裁生成课堂表演剧本
package specialscript

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	httpapi "learnhub-server/internal/http"
	"learnhub-server/internal/llm"
	"learnhub-server/internal/model"
)

// 支持的剧本体裁
const (
	FormatDialogue   = "dialogue"
	FormatScreenplay = "screenplay"
	FormatCrosstalk  = "crosstalk"
)

var formatGuides = map[string]string{
	FormatDialogue:   "情景对话：两到四人围绕知识点自然交谈",
	FormatScreenplay: "短剧剧本：包含场景说明与舞台动作提示",
	FormatCrosstalk:  "相声：逗哏与捧哏两人，包袱要与知识点相关",
}

const systemPrompt = `你是一位擅长寓教于乐的编剧。
用户输入是一个 json 对象，包含主题 topic、体裁 format、体裁说明 guide、角色 characters 与时长 minutes。
请先设计结构，然后输出特别标志 <|Result|>，紧跟一个 json 对象：
{"title": "标题", "lines": [{"speaker": "角色名", "text": "台词", "direction": "动作或场景提示，可为空"}]}
speaker 必须来自给定角色；如果没有给定角色，请自行设定。`

// Request 剧本生成请求
type Request struct {
	Topic      string   `json:"topic"`
	Format     string   `json:"format"`
	Characters []string `json:"characters,omitempty"`
	Minutes    int      `json:"minutes,omitempty"`
}

func (r *Request) Normalize() {
	r.Topic = strings.TrimSpace(r.Topic)
	r.Format = strings.ToLower(strings.TrimSpace(r.Format))
	if r.Format == "" {
		r.Format = FormatDialogue
	}
	if r.Minutes == 0 {
		r.Minutes = 5
	}
	chars := r.Characters[:0]
	for _, ch := range r.Characters {
		if ch = strings.TrimSpace(ch); ch != "" {
			chars = append(chars, ch)
		}
	}
	r.Characters = chars
}

func (r *Request) Validate() error {
	if r.Topic == "" {
		return model.NewValidationError("topic", "主题不能为空")
	}
	if _, ok := formatGuides[r.Format]; !ok {
		return model.NewValidationError("format", "format 只能是 dialogue、screenplay 或 crosstalk")
	}
	if r.Format == FormatCrosstalk && len(r.Characters) > 2 {
		return model.NewValidationError("characters", "相声最多两个角色")
	}
	if len(r.Characters) > 8 {
		return model.NewValidationError("characters", "角色最多 8 个")
	}
	if r.Minutes < 1 || r.Minutes > 30 {
		return model.NewValidationError("minutes", "时长必须在 1 到 30 分钟之间")
	}
	return nil
}

// Line 一句台词
type Line struct {
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Direction string `json:"direction,omitempty"`
}

// Script 生成的剧本
type Script struct {
	Title  string `json:"title"`
	Format string `json:"format"`
	Lines  []Line `json:"lines"`
}

// Router 剧本路由
type Router struct {
	llm llm.Client
}

// New 创建剧本路由
func New(c llm.Client) *Router {
	return &Router{llm: c}
}

// Mount 挂载到 /api/special_script
func (r *Router) Mount(rg *gin.RouterGroup) {
	rg.POST("", r.generate)
}

func (r *Router) generate(c *gin.Context) {
	req, ok := httpapi.BindJSON[Request](c)
	if !ok {
		return
	}

	payload, _ := json.Marshal(struct {
		Request
		Guide string `json:"guide"`
	}{req, formatGuides[req.Format]})

	raw, err := r.llm.Chat(c.Request.Context(), llm.Request{
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: string(payload)}},
		Temperature: 0.8,
	})
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}

	var script Script
	if err := llm.DecodeResult(raw, &script); err != nil {
		httpapi.HandleError(c, fmt.Errorf("%w: %v", llm.ErrUpstream, err))
		return
	}
	script.Format = req.Format
	script.Lines = dropEmpty(script.Lines)
	httpapi.WriteSuccess(c, script)
}

func dropEmpty(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l.Text) == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}
