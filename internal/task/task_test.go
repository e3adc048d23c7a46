package task

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub-server/internal/store"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRunner_SubmitSucceeds(t *testing.T) {
	r := NewRunner(store.NewMemoryStore(), 2, 0)
	defer r.Close(context.Background())

	submitted, err := r.Submit(context.Background(), "story", map[string]string{"topic": "月亮"}, func(context.Context) (any, error) {
		return map[string]string{"title": "月亮的故事"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, submitted.Status)
	assert.JSONEq(t, `{"topic":"月亮"}`, string(submitted.Input))

	done, err := r.Wait(waitCtx(t), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, done.Status)
	assert.JSONEq(t, `{"title":"月亮的故事"}`, string(done.Result))
	assert.Empty(t, done.Error)
}

func TestRunner_FailureAndPanic(t *testing.T) {
	r := NewRunner(store.NewMemoryStore(), 1, 0)
	defer r.Close(context.Background())

	failed, err := r.Submit(context.Background(), "video", nil, func(context.Context) (any, error) {
		return nil, errors.New("上游超时")
	})
	require.NoError(t, err)
	panicked, err := r.Submit(context.Background(), "video", nil, func(context.Context) (any, error) {
		panic("boom")
	})
	require.NoError(t, err)

	got, err := r.Wait(waitCtx(t), failed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "上游超时", got.Error)

	got, err = r.Wait(waitCtx(t), panicked.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "boom")
}

func TestRunner_CancelRunning(t *testing.T) {
	r := NewRunner(store.NewMemoryStore(), 1, 0)
	defer r.Close(context.Background())

	started := make(chan struct{})
	submitted, err := r.Submit(context.Background(), "video", nil, func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	<-started

	require.NoError(t, r.Cancel(context.Background(), submitted.ID))
	got, err := r.Wait(waitCtx(t), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, got.Status)

	assert.ErrorIs(t, r.Cancel(context.Background(), submitted.ID), ErrFinished)
	assert.ErrorIs(t, r.Cancel(context.Background(), "missing"), ErrNotFound)
}

func TestRunner_WorkersBoundConcurrency(t *testing.T) {
	r := NewRunner(store.NewMemoryStore(), 1, 0)
	defer r.Close(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	first, err := r.Submit(context.Background(), "k", nil, func(context.Context) (any, error) {
		close(started)
		<-release
		return "first", nil
	})
	require.NoError(t, err)
	<-started
	second, err := r.Submit(context.Background(), "k", nil, func(context.Context) (any, error) {
		return "second", nil
	})
	require.NoError(t, err)

	// 第二个任务在第一个释放额度前不会开始
	time.Sleep(50 * time.Millisecond)
	got, err := r.Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	close(release)
	for _, id := range []string{first.ID, second.ID} {
		got, err := r.Wait(waitCtx(t), id)
		require.NoError(t, err)
		assert.Equal(t, StatusSucceeded, got.Status)
	}
}

func TestRunner_TimeoutFailsTask(t *testing.T) {
	r := NewRunner(store.NewMemoryStore(), 1, 20*time.Millisecond)
	defer r.Close(context.Background())

	submitted, err := r.Submit(context.Background(), "k", nil, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	got, err := r.Wait(waitCtx(t), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), got.Error)
}

func TestRunner_ListFiltersByKind(t *testing.T) {
	r := NewRunner(store.NewMemoryStore(), 4, 0)
	defer r.Close(context.Background())

	ok := func(context.Context) (any, error) { return nil, nil }
	for _, kind := range []string{"story", "video", "story"} {
		_, err := r.Submit(context.Background(), kind, nil, ok)
		require.NoError(t, err)
	}

	stories, err := r.List(context.Background(), "story", 0)
	require.NoError(t, err)
	assert.Len(t, stories, 2)

	limited, err := r.List(context.Background(), "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRunner_CancelOrphanedRecord(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, store.PutJSON(context.Background(), s, Collection, "old", Task{ID: "old", Status: StatusRunning}, 0))

	r := NewRunner(s, 1, 0)
	defer r.Close(context.Background())

	require.NoError(t, r.Cancel(context.Background(), "old"))
	got, err := r.Get(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, got.Status)
}

func TestRunner_SubmitAfterClose(t *testing.T) {
	r := NewRunner(store.NewMemoryStore(), 1, 0)
	require.NoError(t, r.Close(context.Background()))

	_, err := r.Submit(context.Background(), "k", json.RawMessage(`{}`), func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRunner_OnFinishCallback(t *testing.T) {
	r := NewRunner(store.NewMemoryStore(), 1, 0)
	defer r.Close(context.Background())

	finished := make(chan Task, 1)
	r.OnFinish = func(t Task) { finished <- t }

	_, err := r.Submit(context.Background(), "zimage", nil, func(context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)

	select {
	case got := <-finished:
		assert.Equal(t, "zimage", got.Kind)
		assert.Equal(t, StatusSucceeded, got.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("OnFinish 未被调用")
	}
}

func TestRunner_CloseMarksInterruptedTasksCanceled(t *testing.T) {
	r := NewRunner(store.NewMemoryStore(), 1, 0)

	started := make(chan struct{})
	submitted, err := r.Submit(context.Background(), "video", nil, func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	<-started

	require.NoError(t, r.Close(waitCtx(t)))

	got, err := r.Get(context.Background(), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, got.Status)
	assert.Equal(t, context.Canceled.Error(), got.Error)
}
