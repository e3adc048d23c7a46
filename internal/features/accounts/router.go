// Package accounts 提供上游账号的管理接口，响应中的密钥一律打码
package accounts

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"learnhub-server/internal/accounts"
	httpapi "learnhub-server/internal/http"
)

// Router 账号管理路由
type Router struct {
	service    *accounts.Service
	adminToken string
}

// New 创建账号管理路由；adminToken 非空时要求 Bearer 鉴权
func New(s *accounts.Service, adminToken string) *Router {
	return &Router{service: s, adminToken: adminToken}
}

// Mount 挂载到 /accounts
func (r *Router) Mount(rg *gin.RouterGroup) {
	rg.Use(httpapi.RequireBearer(r.adminToken))
	rg.GET("", r.list)
	rg.POST("", r.create)
	rg.GET("/:id", r.get)
	rg.PATCH("/:id", r.update)
	rg.DELETE("/:id", r.delete)
}

func (r *Router) list(c *gin.Context) {
	all, err := r.service.List(c.Request.Context())
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	out := make([]accounts.Account, 0, len(all))
	for _, acc := range all {
		out = append(out, acc.Masked())
	}
	httpapi.WriteSuccess(c, gin.H{"accounts": out})
}

func (r *Router) create(c *gin.Context) {
	in, ok := httpapi.BindJSON[accounts.Input](c)
	if !ok {
		return
	}
	acc, err := r.service.Create(c.Request.Context(), in)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	httpapi.WriteStatus(c, http.StatusCreated, acc.Masked())
}

func (r *Router) get(c *gin.Context) {
	acc, err := r.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	httpapi.WriteSuccess(c, acc.Masked())
}

func (r *Router) update(c *gin.Context) {
	in, ok := httpapi.BindJSON[accounts.Input](c)
	if !ok {
		return
	}
	acc, err := r.service.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	httpapi.WriteSuccess(c, acc.Masked())
}

func (r *Router) delete(c *gin.Context) {
	if err := r.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		httpapi.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
