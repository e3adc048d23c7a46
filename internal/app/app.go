// internal/app/app.go
//
// 应用装配模块：根据配置构造存储、模型客户端与全部业务路由，
// 通过路由表统一挂载，并负责 HTTP 服务的启动与优雅退出。
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"learnhub-server/internal/accounts"
	"learnhub-server/internal/config"
	"learnhub-server/internal/dialogue"
	"learnhub-server/internal/embedding"
	accountsapi "learnhub-server/internal/features/accounts"
	"learnhub-server/internal/features/claude"
	"learnhub-server/internal/features/evaluate"
	"learnhub-server/internal/features/knowledge"
	"learnhub-server/internal/features/mcp"
	"learnhub-server/internal/features/messages"
	"learnhub-server/internal/features/rpg"
	"learnhub-server/internal/features/schoolsim"
	"learnhub-server/internal/features/specialscript"
	"learnhub-server/internal/features/story"
	"learnhub-server/internal/features/tasks"
	"learnhub-server/internal/features/textbook"
	v1 "learnhub-server/internal/features/v1"
	"learnhub-server/internal/features/video"
	"learnhub-server/internal/features/zimage"
	httpapi "learnhub-server/internal/http"
	"learnhub-server/internal/limit"
	"learnhub-server/internal/llm"
	"learnhub-server/internal/metrics"
	"learnhub-server/internal/rag"
	"learnhub-server/internal/routes"
	"learnhub-server/internal/store"
	"learnhub-server/internal/task"
	"learnhub-server/internal/vectorstore"
)

// Version 构建时通过 -ldflags 注入
var Version = "dev"

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
	shutdownTimeout   = 15 * time.Second
	sessionTTL        = 24 * time.Hour
	dialogueWindow    = 12
	// 视频生成可能持续数分钟
	taskTimeout       = 30 * time.Minute
)

// Options 装配选项
type Options struct {
	// Offline 不连接任何外部服务，只用于生成路由表等离线操作
	Offline bool
}

// App 装配完成的应用
type App struct {
	Config  *config.Config
	Engine  *gin.Engine
	Table   *routes.Table
	Runner  *task.Runner
	Metrics *metrics.Metrics

	startedAt time.Time
	cleanup   []func()
}

// backends 外部依赖的具体实现
type backends struct {
	store    store.Store
	vectors  vectorstore.Store
	limiter  limit.RateLimiter
	llm      llm.Client
	claude   llm.Client
	checks   map[string]httpapi.Check
	cleanups []func()
}

// New 构造应用；任意路由注册失败都会返回错误，服务不会在路由不完整时启动
func New(cfg *config.Config, opts Options) (*App, error) {
	b, err := buildBackends(cfg, opts)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, b)
}

// newApp 在已连接的后端上装配应用，失败时释放后端
func newApp(cfg *config.Config, b *backends) (*App, error) {
	a := &App{Config: cfg, startedAt: time.Now(), Metrics: metrics.New(), cleanup: b.cleanups}

	a.Runner = task.NewRunner(b.store, cfg.TaskWorkers, taskTimeout)
	a.Runner.OnFinish = func(t task.Task) { a.Metrics.ObserveTask(t.Kind, string(t.Status)) }

	fail := func(err error) (*App, error) {
		_ = a.Runner.Close(context.Background())
		b.release()
		return nil, err
	}

	features, err := buildFeatures(cfg, b, a.Runner)
	if err != nil {
		return fail(err)
	}

	gin.SetMode(gin.ReleaseMode)
	a.Engine = httpapi.NewEngine()
	a.Engine.Use(a.Metrics.Middleware())

	a.Table, err = routes.Build(a.Engine, routes.Manifest(features)...)
	if err != nil {
		return fail(fmt.Errorf("注册路由失败: %w", err))
	}
	httpapi.RegisterInfra(a.Engine, a.Table, httpapi.InfraOptions{
		StartedAt: a.startedAt,
		Checks:    b.checks,
		Metrics:   a.Metrics.Handler(),
	})

	log.Info().Int("routers", a.Table.Len()).Msg("✅ 路由注册完成")
	return a, nil
}

// release 关闭已建立的外部连接与后台协程
func (b *backends) release() {
	for _, fn := range b.cleanups {
		fn()
	}
}

func buildBackends(cfg *config.Config, opts Options) (*backends, error) {
	b := &backends{checks: map[string]httpapi.Check{}}
	ready := false
	defer func() {
		if !ready {
			b.release()
		}
	}()

	// 存储与限流
	if cfg.StoreMode == config.StoreRedis && !opts.Offline {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("❌ Redis 初始化失败: %w", err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("✅ Redis 初始化成功")

		b.store = store.NewRedisStore(rdb, cfg.RedisPrefix)
		b.limiter = limit.NewRedisRateLimiter(rdb, cfg.LimitPerDevice, cfg.RedisPrefix+"limit:")
		b.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		b.cleanups = append(b.cleanups, func() { _ = rdb.Close() })
	} else {
		b.store = store.NewMemoryStore()
		memLimiter := limit.NewMemoryRateLimiter(cfg.LimitPerDevice, 7*24*time.Hour)
		b.limiter = memLimiter

		ctx, cancel := context.WithCancel(context.Background())
		go memLimiter.RunCleanup(ctx, time.Hour, 8*24*time.Hour)
		b.cleanups = append(b.cleanups, cancel)
	}

	// 向量库
	if cfg.QdrantHost != "" && !opts.Offline {
		qClient, err := qdrant.NewClient(&qdrant.Config{
			Host:   cfg.QdrantHost,
			Port:   cfg.QdrantPort,
			APIKey: cfg.QdrantAPIKey,
			UseTLS: cfg.QdrantUseTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("❌ Qdrant 初始化失败: %w", err)
		}
		log.Info().Str("host", cfg.QdrantHost).Msg("✅ Qdrant 客户端初始化成功")

		b.vectors = vectorstore.NewQdrantStore(qClient, cfg.QdrantCollection)
		b.checks["qdrant"] = func(ctx context.Context) error {
			_, err := qClient.HealthCheck(ctx)
			return err
		}
		b.cleanups = append(b.cleanups, func() { _ = qClient.Close() })
	} else {
		b.vectors = vectorstore.NewMemoryStore()
	}

	// 大模型
	apiKey := cfg.LLMAPIKey
	if opts.Offline && apiKey == "" {
		apiKey = "offline"
	}
	generic, err := llm.NewOpenAICompatible(apiKey, cfg.LLMBaseURL, cfg.LLMModel)
	if err != nil {
		return nil, err
	}
	b.llm = generic
	b.claude = generic
	if cfg.AnthropicAPIKey != "" {
		anthropicClient, err := llm.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		if err != nil {
			return nil, err
		}
		b.claude = anthropicClient
	} else {
		log.Warn().Msg("⚠️ ANTHROPIC_API_KEY 未设置，/api/claude 将使用通用模型")
	}
	ready = true
	return b, nil
}

func buildFeatures(cfg *config.Config, b *backends, runner *task.Runner) (routes.Features, error) {
	accountService := accounts.NewService(b.store)
	ragService := rag.NewService(
		embedding.NewCloudflareClient(cfg.EmbedEndpoint),
		b.vectors,
		b.llm,
		b.limiter,
		cfg.CandidateLimit,
	)
	ragService.Timeout = cfg.RequestTimeout
	evaluator := &evaluate.Evaluator{LLM: b.llm}

	proxy, err := v1.New(cfg.V1UpstreamURL, accountService, cfg.V1UpstreamKey)
	if err != nil {
		return routes.Features{}, err
	}

	if cfg.ImageAPIURL == "" {
		log.Warn().Msg("⚠️ IMAGE_API_URL 未设置，图片生成任务将失败")
	}
	if cfg.VideoAPIURL == "" {
		log.Warn().Msg("⚠️ VIDEO_API_URL 未设置，视频生成任务将失败")
	}

	claudeModel := cfg.AnthropicModel
	if cfg.AnthropicAPIKey == "" {
		claudeModel = cfg.LLMModel
	}

	return routes.Features{
		V1:            proxy,
		Tasks:         tasks.New(runner),
		Evaluate:      evaluate.New(evaluator),
		Accounts:      accountsapi.New(accountService, cfg.AdminToken),
		Knowledge:     knowledge.New(ragService),
		Textbook:      textbook.New(b.llm),
		Video:         video.New(video.NewClient(cfg.VideoAPIURL, cfg.VideoAPIKey), runner),
		Claude:        claude.New(b.claude, claudeModel),
		MCP:           mcp.New(ragService, evaluator, Version),
		RPG:           rpg.New(dialogue.NewManager(b.store, b.llm, "rpg_sessions", sessionTTL, dialogueWindow)),
		SchoolSim:     schoolsim.New(dialogue.NewManager(b.store, b.llm, "school_sessions", sessionTTL, dialogueWindow)),
		Messages:      messages.New(b.store),
		Story:         story.New(b.llm, runner),
		ZImage:        zimage.New(zimage.NewClient(cfg.ImageAPIURL, cfg.ImageAPIKey, cfg.ImageModel), runner),
		SpecialScript: specialscript.New(b.llm),
	}, nil
}

// Handler 返回带压缩的根处理器；SSE 响应不压缩，避免缓冲
func (a *App) Handler() (http.Handler, error) {
	wrap, err := gzhttp.NewWrapper(gzhttp.ExceptContentTypes([]string{"text/event-stream"}))
	if err != nil {
		return nil, fmt.Errorf("创建压缩中间件失败: %w", err)
	}
	return wrap(a.Engine), nil
}

// Run 启动 HTTP 服务，ctx 结束后优雅退出
func (a *App) Run(ctx context.Context) error {
	handler, err := a.Handler()
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              a.Config.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.Config.ListenAddr).Str("version", Version).Msg("🚀 服务启动")
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP 服务异常退出: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("收到退出信号，正在关闭服务...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("服务强制关闭: %w", err)
		}
	}
	return a.Close(context.Background())
}

// Close 等待后台任务结束并释放外部连接
func (a *App) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	err := a.Runner.Close(ctx)
	for _, fn := range a.cleanup {
		fn()
	}
	if err != nil {
		return fmt.Errorf("等待后台任务退出超时: %w", err)
	}
	log.Info().Msg("服务已退出")
	return nil
}
