// Package evaluate 使用大模型作为评卷人，对学生作答打分
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	httpapi "learnhub-server/internal/http"
	"learnhub-server/internal/llm"
	"learnhub-server/internal/model"
)

const (
	defaultMaxScore = 10
	maxAnswerRunes  = 8000
)

const systemPrompt = `你是一位严谨公正的阅卷老师。
你会得到一个 json 对象，包含题目 question、学生作答 answer、可选的参考答案 reference、可选的评分标准 rubric 以及满分 maxScore。
请先逐条对照评分标准分析作答，然后输出特别标志 <|Result|>，紧跟一个 json 对象：
{"score": 数字, "feedback": "总体评语", "strengths": ["优点"], "improvements": ["改进建议"]}
score 必须在 0 到 maxScore 之间。`

// Request 评分请求
type Request struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Reference string `json:"reference,omitempty"`
	Rubric    string `json:"rubric,omitempty"`
	MaxScore  int    `json:"maxScore,omitempty"`
}

// Normalize 去除首尾空白并补全满分
func (r *Request) Normalize() {
	r.Question = strings.TrimSpace(r.Question)
	r.Answer = strings.TrimSpace(r.Answer)
	r.Reference = strings.TrimSpace(r.Reference)
	r.Rubric = strings.TrimSpace(r.Rubric)
	if r.MaxScore == 0 {
		r.MaxScore = defaultMaxScore
	}
}

// Validate 校验请求
func (r *Request) Validate() error {
	if r.Question == "" {
		return model.NewValidationError("question", "题目不能为空")
	}
	if r.Answer == "" {
		return model.NewValidationError("answer", "作答不能为空")
	}
	if utf8.RuneCountInString(r.Answer) > maxAnswerRunes {
		return model.NewValidationError("answer", fmt.Sprintf("作答不能超过 %d 个字符", maxAnswerRunes))
	}
	if r.MaxScore < 1 || r.MaxScore > 1000 {
		return model.NewValidationError("maxScore", "maxScore 必须在 1 到 1000 之间")
	}
	return nil
}

// Result 评分结果
type Result struct {
	Score        float64  `json:"score"`
	MaxScore     int      `json:"maxScore"`
	Feedback     string   `json:"feedback"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// Evaluator 负责调用模型完成评分，MCP 工具同样使用
type Evaluator struct {
	LLM llm.Client
}

// Evaluate 调用模型并把分数截断到 [0, maxScore]
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Result, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	raw, err := e.LLM.Chat(ctx, llm.Request{
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: string(payload)}},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}

	var res Result
	if err := llm.DecodeResult(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrUpstream, err)
	}
	res.MaxScore = req.MaxScore
	res.Score = clamp(res.Score, 0, float64(req.MaxScore))
	if res.Strengths == nil {
		res.Strengths = []string{}
	}
	if res.Improvements == nil {
		res.Improvements = []string{}
	}
	return &res, nil
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}

// Router 评分路由
type Router struct {
	evaluator *Evaluator
}

// New 创建评分路由
func New(e *Evaluator) *Router {
	return &Router{evaluator: e}
}

// Mount 挂载到 /evaluate
func (r *Router) Mount(rg *gin.RouterGroup) {
	rg.POST("", r.evaluate)
}

func (r *Router) evaluate(c *gin.Context) {
	req, ok := httpapi.BindJSON[Request](c)
	if !ok {
		return
	}
	res, err := r.evaluator.Evaluate(c.Request.Context(), req)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	httpapi.WriteSuccess(c, res)
}
