// Package zimage 文生图：提交后台生成任务并查询结果
package zimage

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	httpapi "learnhub-server/internal/http"
	"learnhub-server/internal/model"
	"learnhub-server/internal/task"
)

// TaskKind 图片任务类型
const TaskKind = "z_image"

var sizes = map[string]bool{
	"512x512":   true,
	"1024x1024": true,
	"1024x1536": true,
	"1536x1024": true,
}

// Generator 图片生成能力
type Generator interface {
	Generate(ctx context.Context, prompt, size string) (*Image, error)
}

// Request 生成请求
type Request struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
}

func (r *Request) Normalize() {
	r.Prompt = strings.TrimSpace(r.Prompt)
	if r.Size == "" {
		r.Size = "1024x1024"
	}
}

func (r *Request) Validate() error {
	if r.Prompt == "" {
		return model.NewValidationError("prompt", "提示词不能为空")
	}
	if utf8.RuneCountInString(r.Prompt) > 2000 {
		return model.NewValidationError("prompt", "提示词过长")
	}
	if !sizes[r.Size] {
		return model.NewValidationError("size", "不支持的尺寸: "+r.Size)
	}
	return nil
}

// Router 图片路由
type Router struct {
	generator Generator
	runner    *task.Runner
}

// New 创建图片路由
func New(g Generator, runner *task.Runner) *Router {
	return &Router{generator: g, runner: runner}
}

// Mount 挂载到 /api/z_image
func (r *Router) Mount(rg *gin.RouterGroup) {
	rg.POST("/generations", r.submit)
	rg.GET("/generations/:id", r.get)
}

func (r *Router) submit(c *gin.Context) {
	req, ok := httpapi.BindJSON[Request](c)
	if !ok {
		return
	}
	t, err := r.runner.Submit(c.Request.Context(), TaskKind, req, func(ctx context.Context) (any, error) {
		return r.generator.Generate(ctx, req.Prompt, req.Size)
	})
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	httpapi.WriteStatus(c, http.StatusAccepted, t)
}

func (r *Router) get(c *gin.Context) {
	t, err := r.runner.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	// 其他类型的任务不在这里暴露
	if t.Kind != TaskKind {
		httpapi.HandleError(c, task.ErrNotFound)
		return
	}
	httpapi.WriteSuccess(c, t)
}
