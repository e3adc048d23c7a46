// internal/config/config.go
//
// 配置管理模块：负责读取服务运行所需的所有参数。
// 加载顺序为：默认值 → 可选的 YAML 配置文件 → 环境变量，
// 随后进行基础校验。非法的可选项会回退为默认值并记录警告。
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// 默认嵌入向量服务端点地址
	defaultEmbedEndpoint = "https://whuworkers.jeredgong.workers.dev"
	// 默认服务监听地址
	defaultListenAddr = "127.0.0.1:8091"
	// 默认 Redis 服务器地址
	defaultRedisAddr = "127.0.0.1:6379"
	// 默认 Redis 键前缀
	defaultRedisPrefix = "learnhub:"
	// 默认 Qdrant 端口（gRPC）
	defaultQdrantPort = 6334
	// 默认 Qdrant 集合名称
	defaultQdrantCollection = "LearnHubKnowledge"
	// 默认 OpenAI 兼容 LLM 地址与模型
	defaultLLMBaseURL = "https://api.deepseek.com"
	defaultLLMModel   = "deepseek-chat"
	// 默认 Anthropic 模型
	defaultAnthropicModel = "claude-3-5-sonnet-latest"
	// 默认 /v1 代理上游
	defaultV1UpstreamURL = "https://api.deepseek.com"
	// 默认图片模型
	defaultImageModel = "z-image-turbo"
	// 默认每个设备的请求限制次数
	defaultLimitPerDevice = 10
	// 默认 RAG 检索候选结果数量上限
	defaultCandidateLimit = 40
	// 默认请求超时时间
	defaultRequestTimeout = 25 * time.Second
	// 最小请求超时时间（用于校验）
	minRequestTimeout = 5 * time.Second
	// 默认异步任务并发数
	defaultTaskWorkers = 4

	// StoreMemory 使用进程内存储，重启后数据丢失
	StoreMemory = "memory"
	// StoreRedis 使用 Redis 存储
	StoreRedis = "redis"
)

// Config 封装服务运行所需配置
type Config struct {
	// ListenAddr HTTP 服务监听地址，格式为 "host:port"
	ListenAddr string `yaml:"listenAddr"`
	// LogLevel 日志级别：debug / info / warn / error
	LogLevel string `yaml:"logLevel"`
	// LogPretty 是否输出彩色的人类可读日志
	LogPretty bool `yaml:"logPretty"`

	// StoreMode 存储后端：memory 或 redis
	StoreMode string `yaml:"storeMode"`
	// RedisAddr Redis 服务器地址，用于限流、任务与会话存储
	RedisAddr string `yaml:"redisAddr"`
	// RedisPassword Redis 服务器密码，为空时使用空密码
	RedisPassword string `yaml:"redisPassword"`
	// RedisDB Redis 数据库编号
	RedisDB int `yaml:"redisDB"`
	// RedisPrefix 所有键的公共前缀
	RedisPrefix string `yaml:"redisPrefix"`

	// QdrantHost Qdrant 向量数据库主机地址，为空时使用内存向量库
	QdrantHost string `yaml:"qdrantHost"`
	// QdrantPort Qdrant gRPC 端口
	QdrantPort int `yaml:"qdrantPort"`
	// QdrantAPIKey Qdrant 向量数据库 API 密钥
	QdrantAPIKey string `yaml:"qdrantAPIKey"`
	// QdrantUseTLS 是否使用 TLS 连接 Qdrant
	QdrantUseTLS bool `yaml:"qdrantUseTLS"`
	// QdrantCollection Qdrant 集合名称，用于存储和检索向量数据
	QdrantCollection string `yaml:"qdrantCollection"`
	// EmbedEndpoint 嵌入向量服务端点地址，用于将文本转换为向量
	EmbedEndpoint string `yaml:"embedEndpoint"`

	// LLMAPIKey OpenAI 兼容接口的密钥
	LLMAPIKey string `yaml:"llmAPIKey"`
	// LLMBaseURL OpenAI 兼容接口地址
	LLMBaseURL string `yaml:"llmBaseURL"`
	// LLMModel 默认生成模型
	LLMModel string `yaml:"llmModel"`
	// AnthropicAPIKey Claude 接口密钥，为空时 /api/claude 退回通用 LLM
	AnthropicAPIKey string `yaml:"anthropicAPIKey"`
	// AnthropicModel Claude 模型名称
	AnthropicModel string `yaml:"anthropicModel"`

	// V1UpstreamURL /v1 代理的上游地址
	V1UpstreamURL string `yaml:"v1UpstreamURL"`
	// V1UpstreamKey 没有可用账号时使用的上游密钥
	V1UpstreamKey string `yaml:"v1UpstreamKey"`

	// ImageAPIURL 图片生成上游（OpenAI images 兼容）
	ImageAPIURL string `yaml:"imageAPIURL"`
	// ImageAPIKey 图片生成上游密钥
	ImageAPIKey string `yaml:"imageAPIKey"`
	// ImageModel 图片生成模型
	ImageModel string `yaml:"imageModel"`
	// VideoAPIURL 视频生成上游
	VideoAPIURL string `yaml:"videoAPIURL"`
	// VideoAPIKey 视频生成上游密钥
	VideoAPIKey string `yaml:"videoAPIKey"`

	// LimitPerDevice 每个设备的请求限制次数（每周）
	LimitPerDevice int `yaml:"limitPerDevice"`
	// CandidateLimit RAG 检索时返回的候选结果数量上限
	CandidateLimit int `yaml:"candidateLimit"`
	// RequestTimeout 单个生成请求的最大超时时间
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	// TaskWorkers 异步任务最大并发数
	TaskWorkers int `yaml:"taskWorkers"`
	// AdminToken 管理接口（账号管理）的 Bearer 令牌，为空表示不校验
	AdminToken string `yaml:"adminToken"`

	// Warnings 加载过程中产生的非致命警告，由调用方输出到日志
	Warnings []string `yaml:"-"`
}

// Default 返回填充了默认值的配置
func Default() *Config {
	return &Config{
		ListenAddr:       defaultListenAddr,
		LogLevel:         "info",
		StoreMode:        StoreMemory,
		RedisAddr:        defaultRedisAddr,
		RedisPrefix:      defaultRedisPrefix,
		QdrantPort:       defaultQdrantPort,
		QdrantUseTLS:     true,
		QdrantCollection: defaultQdrantCollection,
		EmbedEndpoint:    defaultEmbedEndpoint,
		LLMBaseURL:       defaultLLMBaseURL,
		LLMModel:         defaultLLMModel,
		AnthropicModel:   defaultAnthropicModel,
		V1UpstreamURL:    defaultV1UpstreamURL,
		ImageModel:       defaultImageModel,
		LimitPerDevice:   defaultLimitPerDevice,
		CandidateLimit:   defaultCandidateLimit,
		RequestTimeout:   defaultRequestTimeout,
		TaskWorkers:      defaultTaskWorkers,
	}
}

// Load 读取配置。
// path 为空时使用环境变量 CONFIG_FILE 指定的文件；两者都为空则只读环境变量。
//
// 返回:
//   - *Config: 加载成功的配置对象
//   - error: 配置文件无法解析或关键配置格式错误
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	// yaml.v3 会把 "30s" 这类字符串解析为 time.Duration
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.setString("LISTEN_ADDR", &c.ListenAddr)
	c.setString("LOG_LEVEL", &c.LogLevel)
	c.setBool("LOG_PRETTY", &c.LogPretty)

	c.setString("STORE_MODE", &c.StoreMode)
	c.setString("REDIS_HOST", &c.RedisAddr)
	c.setString("REDIS_PASSWORD", &c.RedisPassword)
	c.setInt("REDIS_DB", &c.RedisDB, 0)
	c.setString("REDIS_PREFIX", &c.RedisPrefix)

	c.setString("QDRANT_HOST", &c.QdrantHost)
	c.setInt("QDRANT_PORT", &c.QdrantPort, 1)
	c.setString("QDRANT_API_KEY", &c.QdrantAPIKey)
	c.setBool("QDRANT_USE_TLS", &c.QdrantUseTLS)
	c.setString("QDRANT_COLLECTION", &c.QdrantCollection)
	c.setString("EMBED_ENDPOINT", &c.EmbedEndpoint)

	c.setString("OPENAI_API_KEY", &c.LLMAPIKey)
	c.setString("LLM_API_KEY", &c.LLMAPIKey)
	c.setString("LLM_BASE_URL", &c.LLMBaseURL)
	c.setString("LLM_MODEL", &c.LLMModel)
	c.setString("ANTHROPIC_API_KEY", &c.AnthropicAPIKey)
	c.setString("ANTHROPIC_MODEL", &c.AnthropicModel)

	c.setString("V1_UPSTREAM_URL", &c.V1UpstreamURL)
	c.setString("V1_UPSTREAM_KEY", &c.V1UpstreamKey)
	c.setString("IMAGE_API_URL", &c.ImageAPIURL)
	c.setString("IMAGE_API_KEY", &c.ImageAPIKey)
	c.setString("IMAGE_MODEL", &c.ImageModel)
	c.setString("VIDEO_API_URL", &c.VideoAPIURL)
	c.setString("VIDEO_API_KEY", &c.VideoAPIKey)

	c.setInt("LIMIT_PER_DEVICE", &c.LimitPerDevice, 1)
	c.setInt("RAG_CANDIDATE_LIMIT", &c.CandidateLimit, 1)
	if v := os.Getenv("RAG_REQUEST_TIMEOUT"); v != "" {
		c.setDuration("RAG_REQUEST_TIMEOUT", v, &c.RequestTimeout)
	}
	c.setInt("TASK_WORKERS", &c.TaskWorkers, 1)
	c.setString("ADMIN_TOKEN", &c.AdminToken)
}

func (c *Config) validate() error {
	if !isValidAddr(c.ListenAddr) {
		return fmt.Errorf("无效的 LISTEN_ADDR 格式: %s", c.ListenAddr)
	}

	if c.RequestTimeout < minRequestTimeout {
		c.warn("requestTimeout=%s 过短，使用默认值 %s", c.RequestTimeout, defaultRequestTimeout)
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.TaskWorkers < 1 {
		c.TaskWorkers = defaultTaskWorkers
	}

	c.StoreMode = strings.ToLower(strings.TrimSpace(c.StoreMode))
	switch c.StoreMode {
	case StoreMemory:
	case StoreRedis:
		if !isValidAddr(c.RedisAddr) {
			return fmt.Errorf("无效的 REDIS_HOST 格式: %s", c.RedisAddr)
		}
		if c.RedisPassword == "" {
			c.warn("REDIS_PASSWORD 未设置，将使用空密码")
		}
	default:
		return fmt.Errorf("未知的 STORE_MODE: %s", c.StoreMode)
	}

	for name, raw := range map[string]string{
		"LLM_BASE_URL":    c.LLMBaseURL,
		"V1_UPSTREAM_URL": c.V1UpstreamURL,
		"EMBED_ENDPOINT":  c.EmbedEndpoint,
		"IMAGE_API_URL":   c.ImageAPIURL,
		"VIDEO_API_URL":   c.VideoAPIURL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("无效的 %s: %s", name, raw)
		}
	}

	if c.QdrantHost == "" {
		c.warn("QDRANT_HOST 未设置，知识库将使用内存向量库")
	}
	return nil
}

// RequireCredentials 检查启动服务所必需的密钥。
// 仅 serve 命令调用，离线命令（如打印路由表）不需要密钥。
func (c *Config) RequireCredentials() error {
	if c.LLMAPIKey == "" {
		return fmt.Errorf("环境变量 LLM_API_KEY（或 OPENAI_API_KEY）未设置")
	}
	if c.QdrantHost != "" && c.QdrantAPIKey == "" && c.QdrantUseTLS {
		return fmt.Errorf("已设置 QDRANT_HOST 但 QDRANT_API_KEY 未设置")
	}
	return nil
}

func (c *Config) warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func (c *Config) setString(env string, dst *string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		*dst = v
	}
}

func (c *Config) setBool(env string, dst *bool) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		c.warn("%s=%s 非法，已回退为默认值 %t", env, v, *dst)
		return
	}
	*dst = b
}

func (c *Config) setInt(env string, dst *int, lower int) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lower {
		c.warn("%s=%s 非法，已回退为默认值 %d", env, v, *dst)
		return
	}
	*dst = n
}

func (c *Config) setDuration(name, v string, dst *time.Duration) {
	// 非法值保留当前值
	d, err := time.ParseDuration(v)
	if err != nil || d < minRequestTimeout {
		c.warn("%s=%s 非法，使用默认值 %s", name, v, *dst)
		return
	}
	*dst = d
}

// isValidAddr 验证地址格式是否有效。
// 检查地址是否符合 "host:port" 格式，且主机和端口均不为空。
func isValidAddr(addr string) bool {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	return host != "" && port != ""
}
