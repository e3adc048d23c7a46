package httpapi

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"learnhub-server/internal/routes"
)

// InfraOptions 基础设施路由的依赖
type InfraOptions struct {
	StartedAt time.Time
	Checks    map[string]Check
	// Metrics 为空时不挂载 /metrics
	Metrics http.Handler
}

// NewEngine 创建带默认中间件的 gin 引擎，未匹配的路由与方法返回 JSON 信封
func NewEngine() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(RequestLogger(), Recovery(), SecurityHeaders())
	r.NoRoute(func(c *gin.Context) {
		WriteError(c, http.StatusNotFound, "接口不存在")
	})
	r.NoMethod(func(c *gin.Context) {
		WriteError(c, http.StatusMethodNotAllowed, "请求方法不被允许")
	})
	return r
}

// RegisterInfra 挂载健康检查、指标与路由文档，这些路径不属于任何功能前缀
func RegisterInfra(r *gin.Engine, table *routes.Table, opts InfraOptions) {
	r.GET("/healthz", MakeHealthHandler(opts.StartedAt))
	r.GET("/readyz", MakeReadyHandler(opts.Checks, 0))
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	r.GET("/docs/routes", MakeRoutesDocHandler(r, table))
}

// RouteDoc 路由文档中的一个分组
type RouteDoc struct {
	Prefix    string   `json:"prefix"`
	Tag       string   `json:"tag"`
	Endpoints []string `json:"endpoints"`
}

// MakeRoutesDocHandler 按标签分组列出所有已注册的功能路由
func MakeRoutesDocHandler(r *gin.Engine, table *routes.Table) gin.HandlerFunc {
	return func(c *gin.Context) {
		WriteSuccess(c, gin.H{"groups": DescribeRoutes(r.Routes(), table)})
	}
}

// DescribeRoutes 按路由表顺序分组，不属于任何前缀的路由被忽略
func DescribeRoutes(infos gin.RoutesInfo, table *routes.Table) []RouteDoc {
	entries := table.Entries()
	docs := make([]RouteDoc, len(entries))
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		docs[i] = RouteDoc{Prefix: e.Prefix, Tag: e.Tag, Endpoints: []string{}}
		index[e.Prefix] = i
	}

	for _, info := range infos {
		e, ok := table.Lookup(info.Path)
		if !ok {
			continue
		}
		i := index[e.Prefix]
		docs[i].Endpoints = append(docs[i].Endpoints, info.Method+" "+info.Path)
	}
	for i := range docs {
		sort.Strings(docs[i].Endpoints)
	}
	return docs
}
