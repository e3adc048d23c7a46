// Package v1 把 OpenAI 兼容接口反向代理到上游，密钥按账号轮询选取
package v1

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"learnhub-server/internal/accounts"
	httpapi "learnhub-server/internal/http"
)

// KeyPicker 为每个代理请求选择上游密钥
type KeyPicker interface {
	Next(ctx context.Context) (*accounts.Account, error)
}

// Router /v1 代理路由
type Router struct {
	target      *url.URL
	picker      KeyPicker
	fallbackKey string
	proxy       *httputil.ReverseProxy
}

// New 创建代理；upstream 形如 https://api.example.com/v1
func New(upstream string, picker KeyPicker, fallbackKey string) (*Router, error) {
	target, err := url.Parse(upstream)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, errors.New("无效的上游地址: " + upstream)
	}
	r := &Router{target: target, picker: picker, fallbackKey: fallbackKey}
	r.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			// 不把客户端 IP 透传给上游
			pr.Out.Header.Del("X-Forwarded-For")
		},
		// 立即刷新，保证流式补全实时到达客户端
		FlushInterval: -1,
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			log.Error().Err(err).Str("path", req.URL.Path).Msg("❌ 上游代理失败")
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"status":"error","data":{"message":"上游服务不可用"}}`))
		},
	}
	return r, nil
}

// Mount 挂载到 /v1
func (r *Router) Mount(rg *gin.RouterGroup) {
	base := rg.BasePath()
	handler := func(c *gin.Context) { r.forward(c, base) }
	rg.POST("/chat/completions", handler)
	rg.POST("/embeddings", handler)
	rg.GET("/models", handler)
}

func (r *Router) forward(c *gin.Context, base string) {
	key, err := r.pickKey(c.Request.Context())
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}

	out := c.Request.Clone(c.Request.Context())
	out.URL.Path = strings.TrimPrefix(c.Request.URL.Path, base)
	out.URL.RawPath = ""
	out.Header.Set("Authorization", "Bearer "+key)
	out.Header.Del("Cookie")

	r.proxy.ServeHTTP(c.Writer, out)
}

func (r *Router) pickKey(ctx context.Context) (string, error) {
	if r.picker != nil {
		acc, err := r.picker.Next(ctx)
		if err == nil {
			return acc.APIKey, nil
		}
		if !errors.Is(err, accounts.ErrNoAccount) {
			return "", err
		}
	}
	if r.fallbackKey == "" {
		return "", accounts.ErrNoAccount
	}
	return r.fallbackKey, nil
}
