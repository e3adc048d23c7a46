// internal/task/task.go
//
// 异步任务模块
//
// 视频生成、图片生成与长篇故事等耗时操作以任务的形式在后台执行：
// 1. Submit 立即返回一个 pending 状态的任务
// 2. 后台协程在并发额度内执行 Job，并把结果写回存储
// 3. 客户端通过 /tasks/:id 轮询任务状态
package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"learnhub-server/internal/store"
)

// Collection 任务在存储中的集合名
const Collection = "tasks"

// Status 任务状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Finished 判断任务是否已结束
func (s Status) Finished() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

var (
	// ErrNotFound 任务不存在
	ErrNotFound = errors.New("任务不存在")
	// ErrFinished 任务已结束，无法取消
	ErrFinished = errors.New("任务已结束")
	// ErrClosed 任务执行器已关闭
	ErrClosed = errors.New("任务执行器已关闭")
)

// Task 一条任务记录
type Task struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Status    Status          `json:"status"`
	Input     json.RawMessage `json:"input,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Job 在后台执行的工作，返回值会被序列化为任务结果
type Job func(ctx context.Context) (any, error)

// Runner 负责提交、执行与查询任务
type Runner struct {
	store   store.Store
	sem     *semaphore.Weighted
	timeout time.Duration
	now     func() time.Time

	// OnFinish 在任务结束并保存后回调，可为空
	OnFinish func(t Task)

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running map[string]*handle
	closed  bool
}

type handle struct {
	cancel   context.CancelFunc
	canceled bool
}

// NewRunner 创建任务执行器；workers 为并发上限，timeout 为单个任务的最长执行时间（0 表示不限）
func NewRunner(s store.Store, workers int, timeout time.Duration) *Runner {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:   s,
		sem:     semaphore.NewWeighted(int64(workers)),
		timeout: timeout,
		now:     time.Now,
		baseCtx: ctx,
		stop:    cancel,
		running: make(map[string]*handle),
	}
}

// Submit 保存一条 pending 任务并在后台执行 job
func (r *Runner) Submit(ctx context.Context, kind string, input any, job Job) (*Task, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("序列化任务输入失败: %w", err)
	}

	now := r.now().UTC()
	t := &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusPending,
		Input:     raw,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	jobCtx, cancel := context.WithCancel(r.baseCtx)
	h := &handle{cancel: cancel}
	r.running[t.ID] = h
	r.wg.Add(1)
	r.mu.Unlock()

	if err := r.save(ctx, t); err != nil {
		r.forget(t.ID)
		cancel()
		r.wg.Done()
		return nil, err
	}

	snapshot := *t
	go r.execute(jobCtx, h, snapshot, job)
	log.Debug().Str("task", t.ID).Str("kind", kind).Msg("🔹 任务已提交")
	return t, nil
}

func (r *Runner) execute(ctx context.Context, h *handle, t Task, job Job) {
	defer r.wg.Done()
	defer r.forget(t.ID)
	defer h.cancel()

	// 等待并发额度，期间被取消则直接结束
	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.finish(&t, nil, err, h)
		return
	}
	defer r.sem.Release(1)

	t.Status = StatusRunning
	t.UpdatedAt = r.now().UTC()
	if err := r.save(context.Background(), &t); err != nil {
		log.Warn().Err(err).Str("task", t.ID).Msg("⚠️ 更新任务状态失败")
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	result, err := runJob(ctx, job)
	r.finish(&t, result, err, h)
}

// runJob 执行 job 并把 panic 转换为错误
func runJob(ctx context.Context, job Job) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("任务异常退出: %v", rec)
		}
	}()
	return job(ctx)
}

func (r *Runner) finish(t *Task, result any, err error, h *handle) {
	r.mu.Lock()
	canceled := h.canceled
	r.mu.Unlock()

	switch {
	case canceled:
		t.Status = StatusCanceled
		t.Error = context.Canceled.Error()
	case err != nil:
		t.Status = StatusFailed
		t.Error = err.Error()
	default:
		raw, mErr := json.Marshal(result)
		if mErr != nil {
			t.Status = StatusFailed
			t.Error = mErr.Error()
			break
		}
		t.Status = StatusSucceeded
		t.Result = raw
	}
	t.UpdatedAt = r.now().UTC()

	if err := r.save(context.Background(), t); err != nil {
		log.Error().Err(err).Str("task", t.ID).Msg("❌ 保存任务结果失败")
		return
	}
	log.Info().Str("task", t.ID).Str("kind", t.Kind).Str("status", string(t.Status)).Msg("✅ 任务结束")
	if r.OnFinish != nil {
		r.OnFinish(*t)
	}
}

// Get 读取任务
func (r *Runner) Get(ctx context.Context, id string) (*Task, error) {
	var t Task
	if err := store.GetJSON(ctx, r.store, Collection, id, &t); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// List 按创建时间倒序列出任务，kind 为空表示全部
func (r *Runner) List(ctx context.Context, kind string, limit int) ([]Task, error) {
	all, err := store.ListJSON[Task](ctx, r.store, Collection, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(all))
	for _, t := range all {
		if kind != "" && t.Kind != kind {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Cancel 取消一个未结束的任务
func (r *Runner) Cancel(ctx context.Context, id string) error {
	t, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.Finished() {
		return ErrFinished
	}

	r.mu.Lock()
	h, ok := r.running[id]
	if ok {
		h.canceled = true
	}
	r.mu.Unlock()

	if ok {
		h.cancel()
		return nil
	}

	// 记录存在但不在本进程中执行（例如进程重启后遗留），直接标记为已取消
	if t, err = r.Get(ctx, id); err != nil {
		return err
	}
	if t.Status.Finished() {
		return ErrFinished
	}
	t.Status = StatusCanceled
	t.Error = context.Canceled.Error()
	t.UpdatedAt = r.now().UTC()
	return r.save(ctx, t)
}

// Close 停止接收新任务，取消执行中的任务并等待其退出；被中断的任务记为已取消
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, h := range r.running {
		h.canceled = true
	}
	r.mu.Unlock()
	r.stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) save(ctx context.Context, t *Task) error {
	return store.PutJSON(ctx, r.store, Collection, t.ID, t, 0)
}

func (r *Runner) forget(id string) {
	r.mu.Lock()
	delete(r.running, id)
	r.mu.Unlock()
}

// Wait 阻塞直到任务结束或 ctx 超时，主要供同步调用方与测试使用
func (r *Runner) Wait(ctx context.Context, id string) (*Task, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		t, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if t.Status.Finished() {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return t, ctx.Err()
		case <-ticker.C:
		}
	}
}
