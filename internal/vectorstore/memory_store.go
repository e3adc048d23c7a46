package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"learnhub-server/internal/model"
)

// MemoryStore 暴力余弦相似度检索，用于未配置 Qdrant 的环境与测试
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]model.Document
	vectors map[string][]float32
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string]model.Document),
		vectors: make(map[string][]float32),
	}
}

func (m *MemoryStore) Search(_ context.Context, vector []float32, category int, limit int) ([]model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Document, 0, len(m.docs))
	for id, doc := range m.docs {
		if category != 0 && doc.Category != category {
			continue
		}
		doc.Score = cosine(vector, m.vectors[id])
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Upsert(_ context.Context, docs []model.Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("文档数 %d 与向量数 %d 不一致", len(docs), len(vectors))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range docs {
		m.docs[d.ID] = d
		m.vectors[d.ID] = append([]float32(nil), vectors[i]...)
	}
	return nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
