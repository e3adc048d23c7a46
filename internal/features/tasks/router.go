// Package tasks 提供异步任务的查询与取消接口
package tasks

import (
	"strconv"

	"github.com/gin-gonic/gin"

	httpapi "learnhub-server/internal/http"
	"learnhub-server/internal/model"
	"learnhub-server/internal/task"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Router 任务路由
type Router struct {
	runner *task.Runner
}

// New 创建任务路由
func New(runner *task.Runner) *Router {
	return &Router{runner: runner}
}

// Mount 挂载到 /tasks
func (r *Router) Mount(rg *gin.RouterGroup) {
	rg.GET("", r.list)
	rg.GET("/:id", r.get)
	rg.DELETE("/:id", r.cancel)
}

func (r *Router) list(c *gin.Context) {
	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLimit {
			httpapi.HandleError(c, model.NewValidationError("limit", "limit 必须在 1 到 100 之间"))
			return
		}
		limit = n
	}

	items, err := r.runner.List(c.Request.Context(), c.Query("kind"), limit)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	httpapi.WriteSuccess(c, gin.H{"tasks": items})
}

func (r *Router) get(c *gin.Context) {
	t, err := r.runner.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	httpapi.WriteSuccess(c, t)
}

func (r *Router) cancel(c *gin.Context) {
	id := c.Param("id")
	if err := r.runner.Cancel(c.Request.Context(), id); err != nil {
		httpapi.HandleError(c, err)
		return
	}
	httpapi.WriteSuccess(c, gin.H{"id": id, "canceled": true})
}
