package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub-server/internal/model"
)

func TestMemoryStore_SearchRanksAndFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Upsert(ctx,
		[]model.Document{
			{ID: "a", Text: "线性代数", Category: 1},
			{ID: "b", Text: "体育", Category: 2},
			{ID: "c", Text: "高等数学", Category: 1},
		},
		[][]float32{{1, 0}, {0, 1}, {0.8, 0.2}},
	))

	got, err := s.Search(ctx, []float32{1, 0}, 0, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)

	got, err = s.Search(ctx, []float32{0, 1}, 1, 10)
	require.NoError(t, err)
	for _, d := range got {
		assert.Equal(t, 1, d.Category)
	}
}

func TestMemoryStore_UpsertLengthMismatch(t *testing.T) {
	err := NewMemoryStore().Upsert(context.Background(), []model.Document{{ID: "a"}}, nil)
	assert.Error(t, err)
}
