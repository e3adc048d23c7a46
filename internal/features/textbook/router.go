// Package textbook 教材辅助：生成章节大纲与知识点讲解
package textbook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	httpapi "learnhub-server/internal/http"
	"learnhub-server/internal/llm"
	"learnhub-server/internal/model"
)

const outlinePrompt = `你是一位经验丰富的教材编写专家。
用户输入是一个 json 对象，包含学科 subject、年级 grade 与期望章节数 chapters。
请先简要分析该学段的教学重点，然后输出特别标志 <|Result|>，紧跟一个 json 对象：
{"title": "教材名称", "chapters": [{"title": "章节名", "summary": "本章概要", "keyPoints": ["知识点"]}]}`

const explainPrompt = `你是一位耐心的老师，擅长用浅显的语言讲解知识点。
用户输入是一个 json 对象，包含知识点 concept、学习者水平 level 与可选的上下文 context。
请先思考讲解思路，然后输出特别标志 <|Result|>，紧跟一个 json 对象：
{"explanation": "讲解正文", "examples": ["例子"], "pitfalls": ["常见误区"]}`

// OutlineRequest 大纲请求
type OutlineRequest struct {
	Subject  string `json:"subject"`
	Grade    string `json:"grade"`
	Chapters int    `json:"chapters,omitempty"`
}

func (r *OutlineRequest) Normalize() {
	r.Subject = strings.TrimSpace(r.Subject)
	r.Grade = strings.TrimSpace(r.Grade)
	if r.Chapters == 0 {
		r.Chapters = 6
	}
}

func (r *OutlineRequest) Validate() error {
	if r.Subject == "" {
		return model.NewValidationError("subject", "学科不能为空")
	}
	if r.Chapters < 1 || r.Chapters > 30 {
		return model.NewValidationError("chapters", "章节数必须在 1 到 30 之间")
	}
	return nil
}

// Chapter 大纲中的一章
type Chapter struct {
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"keyPoints"`
}

// Outline 教材大纲
type Outline struct {
	Title    string    `json:"title"`
	Chapters []Chapter `json:"chapters"`
}

// ExplainRequest 讲解请求
type ExplainRequest struct {
	Concept string `json:"concept"`
	Level   string `json:"level,omitempty"`
	Context string `json:"context,omitempty"`
}

func (r *ExplainRequest) Normalize() {
	r.Concept = strings.TrimSpace(r.Concept)
	r.Level = strings.TrimSpace(r.Level)
	if r.Level == "" {
		r.Level = "初学者"
	}
}

func (r *ExplainRequest) Validate() error {
	if r.Concept == "" {
		return model.NewValidationError("concept", "知识点不能为空")
	}
	return nil
}

// Explanation 知识点讲解
type Explanation struct {
	Explanation string   `json:"explanation"`
	Examples    []string `json:"examples"`
	Pitfalls    []string `json:"pitfalls"`
}

// Router 教材路由
type Router struct {
	llm llm.Client
}

// New 创建教材路由
func New(c llm.Client) *Router {
	return &Router{llm: c}
}

// Mount 挂载到 /api/textbook
func (r *Router) Mount(rg *gin.RouterGroup) {
	rg.POST("/outline", r.outline)
	rg.POST("/explain", r.explain)
}

func (r *Router) outline(c *gin.Context) {
	req, ok := httpapi.BindJSON[OutlineRequest](c)
	if !ok {
		return
	}
	var out Outline
	if err := r.generate(c.Request.Context(), outlinePrompt, req, &out); err != nil {
		httpapi.HandleError(c, err)
		return
	}
	// 模型偶尔会多给章节
	if len(out.Chapters) > req.Chapters {
		out.Chapters = out.Chapters[:req.Chapters]
	}
	httpapi.WriteSuccess(c, out)
}

func (r *Router) explain(c *gin.Context) {
	req, ok := httpapi.BindJSON[ExplainRequest](c)
	if !ok {
		return
	}
	var out Explanation
	if err := r.generate(c.Request.Context(), explainPrompt, req, &out); err != nil {
		httpapi.HandleError(c, err)
		return
	}
	httpapi.WriteSuccess(c, out)
}

func (r *Router) generate(ctx context.Context, system string, input, dst any) error {
	payload, err := json.Marshal(input)
	if err != nil {
		return err
	}
	raw, err := llm.Ask(ctx, r.llm, system, string(payload))
	if err != nil {
		return err
	}
	if err := llm.DecodeResult(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", llm.ErrUpstream, err)
	}
	return nil
}
