// Package metrics 暴露 Prometheus 指标，按路由标签统计请求
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"learnhub-server/internal/routes"
)

// Metrics 持有全部指标与独立的注册表
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	tasksTotal          *prometheus.CounterVec

	registry *prometheus.Registry
}

// New 创建指标实例，同时注册 Go 运行时与进程指标
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learnhub_http_requests_total",
				Help: "Total number of HTTP requests by route tag, method and status",
			},
			[]string{"tag", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "learnhub_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds by route tag",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tag"},
		),
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learnhub_tasks_total",
				Help: "Total number of finished background tasks by kind and status",
			},
			[]string{"kind", "status"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.tasksTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Middleware 在请求结束后记录指标；标签由路由表在分组上设置
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		tag := routes.TagFromContext(c)
		m.httpRequestsTotal.WithLabelValues(tag, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(tag).Observe(time.Since(start).Seconds())
	}
}

// ObserveTask 记录一个结束的后台任务
func (m *Metrics) ObserveTask(kind, status string) {
	m.tasksTotal.WithLabelValues(kind, status).Inc()
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry 返回底层注册表，测试中使用
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
