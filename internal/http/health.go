package httpapi

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Check 一项就绪检查，返回 nil 表示依赖可用
type Check func(ctx context.Context) error

// MakeHealthHandler 返回存活检查接口
func MakeHealthHandler(startedAt time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		WriteSuccess(c, gin.H{
			"uptime":    time.Since(startedAt).String(),
			"startedAt": startedAt.Format(time.RFC3339),
			"status":    "ok",
		})
	}
}

// MakeReadyHandler 并发执行所有依赖检查，任一失败返回 503
func MakeReadyHandler(checks map[string]Check, timeout time.Duration) gin.HandlerFunc {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		var (
			mu      sync.Mutex
			results = make(map[string]string, len(names))
		)
		// 不使用 WithContext，单项失败不应中断其他检查
		var g errgroup.Group
		for _, name := range names {
			check := checks[name]
			g.Go(func() error {
				err := check(ctx)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					results[name] = err.Error()
					return err
				}
				results[name] = "ok"
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"status": "error",
				"data":   gin.H{"message": "依赖服务不可用", "checks": results},
			})
			return
		}
		WriteSuccess(c, gin.H{"status": "ready", "checks": results})
	}
}
