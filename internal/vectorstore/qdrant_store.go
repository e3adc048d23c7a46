// internal/vectorstore/qdrant_store.go
package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"

	"learnhub-server/internal/model"
)

// Store 抽象：知识文档的向量写入与检索
type Store interface {
	// Search 返回与 vector 最相近的文档，category 为 0 时不过滤分类
	Search(ctx context.Context, vector []float32, category int, limit int) ([]model.Document, error)
	// Upsert 写入文档及其向量，vectors[i] 对应 docs[i]
	Upsert(ctx context.Context, docs []model.Document, vectors [][]float32) error
}

// QdrantStore 使用 Qdrant 作为向量数据库
type QdrantStore struct {
	Client         *qdrant.Client
	CollectionName string

	mu      sync.Mutex
	ensured bool
}

func NewQdrantStore(client *qdrant.Client, collection string) *QdrantStore {
	return &QdrantStore{
		Client:         client,
		CollectionName: collection,
	}
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, category int, limit int) ([]model.Document, error) {
	lim := uint64(limit)
	req := &qdrant.QueryPoints{
		CollectionName: s.CollectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if category != 0 {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchInt("category", int64(category))},
		}
	}

	resp, err := s.Client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Qdrant 查询失败: %w", err)
	}
	log.Debug().Int("hits", len(resp)).Str("collection", s.CollectionName).Msg("Qdrant 查询成功")

	docs := make([]model.Document, 0, len(resp))
	for _, pt := range resp {
		doc := documentFromPayload(pt.Payload)
		if doc.ID == "" {
			doc.ID = pt.GetId().GetUuid()
		}
		doc.Score = pt.GetScore()
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *QdrantStore) Upsert(ctx context.Context, docs []model.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("文档数 %d 与向量数 %d 不一致", len(docs), len(vectors))
	}
	if len(docs) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, d := range docs {
		payload, err := qdrant.TryValueMap(map[string]any{
			"id":       d.ID,
			"title":    d.Title,
			"text":     d.Text,
			"category": int64(d.Category),
			"source":   d.Source,
		})
		if err != nil {
			return fmt.Errorf("构造 payload 失败: %w", err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(d.ID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payload,
		})
	}

	wait := true
	if _, err := s.Client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.CollectionName,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("Qdrant 写入失败: %w", err)
	}
	return nil
}

// ensureCollection 首次写入时按向量维度创建集合
func (s *QdrantStore) ensureCollection(ctx context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}

	exists, err := s.Client.CollectionExists(ctx, s.CollectionName)
	if err != nil {
		return fmt.Errorf("检查集合失败: %w", err)
	}
	if !exists {
		err := s.Client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.CollectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("创建集合失败: %w", err)
		}
		log.Info().Str("collection", s.CollectionName).Int("dim", dim).Msg("✅ 已创建 Qdrant 集合")
	}
	s.ensured = true
	return nil
}

func documentFromPayload(payload map[string]*qdrant.Value) model.Document {
	var doc model.Document
	for k, v := range payload {
		switch k {
		case "id":
			doc.ID = v.GetStringValue()
		case "title":
			doc.Title = v.GetStringValue()
		case "text":
			doc.Text = v.GetStringValue()
		case "source":
			doc.Source = v.GetStringValue()
		case "category":
			// 兼容 float64 / int 两种写法
			switch val := v.Kind.(type) {
			case *qdrant.Value_IntegerValue:
				doc.Category = int(val.IntegerValue)
			case *qdrant.Value_DoubleValue:
				doc.Category = int(val.DoubleValue)
			}
		}
	}
	return doc
}
