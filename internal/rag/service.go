// internal/rag/service.go
// 该文件负责编排知识库问答流程，是知识库路由与 MCP 工具共用的入口。
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"learnhub-server/internal/embedding"
	"learnhub-server/internal/limit"
	"learnhub-server/internal/llm"
	"learnhub-server/internal/model"
	"learnhub-server/internal/vectorstore"
)

// maxContextRunes 单条资料送入 LLM 的最大字符数
const maxContextRunes = 800

// documentNamespace 把非 UUID 的外部文档 ID 映射为稳定的 UUID
var documentNamespace = uuid.MustParse("6f1c9a4e-3b8d-4f57-9a51-2d7c0c1e8b42")

// Service 封装完整 RAG 处理链条
type Service struct {
	// Embedder 用于将自然语言转化为稠密向量表示。
	Embedder embedding.Client
	// VectorStore 负责检索与问题语义相关的资料。
	VectorStore vectorstore.Store
	// LLM 负责在检索结果基础上生成回答。
	LLM llm.Client
	// Limiter 控制请求速率，保护后端资源。
	Limiter limit.RateLimiter
	// CandidateLimit 默认参与生成的候选资料数量
	CandidateLimit int
	// Timeout 单次问答（检索加生成）的最长耗时，0 表示不限
	Timeout time.Duration
}

// Result 一次问答的结果
type Result struct {
	Answer    string           `json:"answer"`
	Citations []model.Citation `json:"citations"`
	Sources   []model.Document `json:"sources"`
}

// NewService 创建一个 RAG 服务实例
func NewService(
	e embedding.Client,
	vs vectorstore.Store,
	l llm.Client,
	limiter limit.RateLimiter,
	candidateLimit int,
) *Service {
	if candidateLimit <= 0 {
		candidateLimit = 40
	}
	return &Service{
		Embedder:       e,
		VectorStore:    vs,
		LLM:            l,
		Limiter:        limiter,
		CandidateLimit: candidateLimit,
	}
}

// HandleQuery 运行完整的问答流程：限流 → 向量化 → 检索 → LLM → 解析
func (s *Service) HandleQuery(ctx context.Context, q model.KnowledgeQuery, fingerprint string) (*Result, error) {
	// --------------------------
	// 1. 限流检查
	// --------------------------
	if s.Limiter != nil {
		allowed, err := s.Limiter.Allow(ctx, fingerprint)
		if err != nil {
			return nil, fmt.Errorf("访问限制检查失败: %w", err)
		}
		if !allowed {
			return nil, ErrRateLimitExceeded
		}
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	// --------------------------
	// 2. 检索相关资料
	// --------------------------
	docs, err := s.Retrieve(ctx, q.Question, q.Category, q.TopK)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return &Result{Answer: "知识库中没有找到相关资料。", Citations: []model.Citation{}, Sources: []model.Document{}}, nil
	}

	// --------------------------
	// 3. 使用 LLM 生成回答
	// --------------------------
	raw, err := llm.Ask(ctx, s.LLM, SystemPrompt, buildUserPrompt(q.Question, docs))
	if err != nil {
		return nil, fmt.Errorf("LLM 调用失败: %w", err)
	}
	log.Debug().Msg("🔹 LLM 已成功返回回答")

	// --------------------------
	// 4. 解析 LLM JSON 输出
	// --------------------------
	var answer model.KnowledgeAnswer
	if err := llm.DecodeResult(raw, &answer); err != nil {
		return nil, fmt.Errorf("解析 LLM 输出失败: %w", err)
	}

	return &Result{
		Answer:    answer.Answer,
		Citations: filterCitations(answer.Citations, docs),
		Sources:   docs,
	}, nil
}

// Retrieve 只做向量化与检索，不调用 LLM
func (s *Service) Retrieve(ctx context.Context, question string, category, topK int) ([]model.Document, error) {
	if topK <= 0 {
		topK = s.CandidateLimit
	}

	vec, err := s.Embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("生成嵌入失败: %w", err)
	}

	docs, err := s.VectorStore.Search(ctx, vec, category, topK)
	if err != nil {
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}
	log.Debug().Int("hits", len(docs)).Msg("🔹 向量检索完成")
	return docs, nil
}

// Ingest 对文档逐条向量化后写入向量库，返回带最终 ID 的文档
func (s *Service) Ingest(ctx context.Context, docs []model.Document) ([]model.Document, error) {
	out := make([]model.Document, 0, len(docs))
	vectors := make([][]float32, 0, len(docs))
	for i, d := range docs {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("第 %d 条文档: %w", i+1, err)
		}
		d.ID = normalizeDocumentID(d.ID)
		d.Text = strings.TrimSpace(d.Text)

		vec, err := s.Embedder.Embed(ctx, d.Title+"\n"+d.Text)
		if err != nil {
			return nil, fmt.Errorf("生成嵌入失败: %w", err)
		}
		out = append(out, d)
		vectors = append(vectors, vec)
	}

	if err := s.VectorStore.Upsert(ctx, out, vectors); err != nil {
		return nil, err
	}
	log.Info().Int("count", len(out)).Msg("✅ 文档已写入知识库")
	return out, nil
}

func normalizeDocumentID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return uuid.NewString()
	}
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(documentNamespace, []byte(id)).String()
}

func buildUserPrompt(question string, docs []model.Document) string {
	type item struct {
		DocumentID string `json:"documentId"`
		Text       string `json:"text"`
	}
	items := make([]item, 0, len(docs))
	for _, d := range docs {
		items = append(items, item{DocumentID: d.ID, Text: truncateRunes(d.Text, maxContextRunes)})
	}
	list, _ := json.Marshal(items)
	return fmt.Sprintf("资料列表: %s\n问题: %s", list, question)
}

// filterCitations 丢弃引用了不存在资料的条目
func filterCitations(citations []model.Citation, docs []model.Document) []model.Citation {
	known := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		known[d.ID] = struct{}{}
	}
	out := make([]model.Citation, 0, len(citations))
	for _, c := range citations {
		if _, ok := known[c.DocumentID]; ok {
			out = append(out, c)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
