package dialogue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub-server/internal/llm"
	"learnhub-server/internal/llm/llmtest"
	"learnhub-server/internal/model"
	"learnhub-server/internal/store"
)

func TestManager_StartWithOpening(t *testing.T) {
	fake := llmtest.Static("  欢迎来到魔法学院  ")
	m := NewManager(store.NewMemoryStore(), fake, "rpg", 0, 4)

	s, err := m.Start(context.Background(), "你是地下城主", map[string]string{"world": "魔法学院"}, "请开场")
	require.NoError(t, err)
	require.Len(t, s.Turns, 1)
	assert.Equal(t, "欢迎来到魔法学院", s.Turns[0].Content)
	assert.Equal(t, "你是地下城主", fake.Last().System)

	got, err := m.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "你是地下城主", got.System)
	assert.Equal(t, "魔法学院", got.Meta["world"])
}

func TestManager_StartWithoutOpeningSkipsLLM(t *testing.T) {
	fake := llmtest.Static("x")
	m := NewManager(store.NewMemoryStore(), fake, "school", 0, 4)

	s, err := m.Start(context.Background(), "sys", nil, "")
	require.NoError(t, err)
	assert.Empty(t, s.Turns)
	assert.Empty(t, fake.Calls())
}

func TestManager_StepPersistsAndWindows(t *testing.T) {
	n := 0
	fake := &llmtest.Client{Reply: func(llm.Request) (string, error) {
		n++
		return fmt.Sprintf("回复%d", n), nil
	}}
	m := NewManager(store.NewMemoryStore(), fake, "rpg", 0, 3)

	s, err := m.Start(context.Background(), "sys", nil, "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, reply, err := m.Step(context.Background(), s.ID, fmt.Sprintf("行动%d", i))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("回复%d", i+1), reply)
	}

	got, err := m.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Len(t, got.Turns, 6)

	last := fake.Last()
	require.Len(t, last.Messages, 3)
	assert.Equal(t, llm.RoleUser, last.Messages[2].Role)
	assert.Equal(t, "行动2", last.Messages[2].Content)
}

func TestManager_StepValidation(t *testing.T) {
	m := NewManager(store.NewMemoryStore(), llmtest.Static("x"), "rpg", 0, 3)

	_, _, err := m.Step(context.Background(), "any", "   ")
	assert.True(t, model.IsValidationError(err))

	_, _, err = m.Step(context.Background(), "missing", "hi")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_TTLExpiry(t *testing.T) {
	mem := store.NewMemoryStore()
	m := NewManager(mem, llmtest.Static("x"), "rpg", time.Nanosecond, 3)

	s, err := m.Start(context.Background(), "sys", nil, "")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	_, err = m.Get(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_StepUnknownSessionsShareFixedLocks(t *testing.T) {
	fake := llmtest.Static("x")
	m := NewManager(store.NewMemoryStore(), fake, "rpg", 0, 3)

	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("missing-%d", i)
		_, _, err := m.Step(context.Background(), id, "hi")
		require.ErrorIs(t, err, ErrNotFound)

		// 锁只来自固定的分段数组
		idx := stripe(id)
		assert.Less(t, idx, uint64(lockStripes))
		assert.Same(t, &m.locks[idx], m.lock(id))
	}
	assert.Empty(t, fake.Calls())
}
