// Package video 教学视频生成，耗时较长，始终以后台任务执行
package video

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

// TaskKind 视频任务类型
const TaskKind = "video"

var aspectRatios = map[string]bool{"16:9": true, "9:16": true, "1:1": true}

// Generator 视频生成能力
type Generator interface {
	Generate(ctx context.Context, req Request) (*Video, error)
}

// Request 视频生成请求
type Request struct {
	Prompt      string `json:"prompt"`
	Duration    int    `json:"duration,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

func (r *Request) Normalize() {
	r.Prompt = strings.TrimSpace(r.Prompt)
	if r.Duration == 0 {
		r.Duration = 5
	}
	if r.AspectRatio == "" {
		r.AspectRatio = "16:9"
	}
}

func (r *Request) Validate() error {
	if r.Prompt == "" {
		return model.NewValidationError("prompt", "提示词不能为空")
	}
	if utf8.RuneCountInString(r.Prompt) > 2000 {
		return model.NewValidationError("prompt", "提示词过长")
	}
	if r.Duration < 1 || r.Duration > 60 {
		return model.NewValidationError("duration", "时长必须在 1 到 60 秒之间")
	}
	if !aspectRatios[r.AspectRatio] {
		return model.NewValidationError("aspectRatio", "不支持的画幅: "+r.AspectRatio)
	}
	return nil
}

// Router 视频路由
type Router struct {
	generator Generator
	runner    *task.Runner
}

// New 创建视频路由
func New(g Generator, runner *task.Runner) *Router {
	return &Router{generator: g, runner: runner}
}

// Mount 挂载到 /api/video
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
		return r.generator.Generate(ctx, req)
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
	if t.Kind != TaskKind {
		httpapi.HandleError(c, task.ErrNotFound)
		return
	}
	httpapi.WriteSuccess(c, t)
}
