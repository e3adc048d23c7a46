package tasks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub-server/internal/store"
	"learnhub-server/internal/task"
)

func setup(t *testing.T) (*gin.Engine, *task.Runner) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	runner := task.NewRunner(store.NewMemoryStore(), 2, 0)
	t.Cleanup(func() { _ = runner.Close(context.Background()) })

	r := gin.New()
	New(runner).Mount(r.Group("/tasks"))
	return r, runner
}

func do(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestTasks_ListGetCancel(t *testing.T) {
	r, runner := setup(t)

	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})
	submitted, err := runner.Submit(context.Background(), "video", nil, func(ctx context.Context) (any, error) {
		close(started)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
			return nil, nil
		}
	})
	require.NoError(t, err)
	<-started

	w := do(r, http.MethodGet, "/tasks?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data struct {
			Tasks []task.Task `json:"tasks"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Data.Tasks, 1)

	w = do(r, http.MethodGet, "/tasks/"+submitted.ID)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodDelete, "/tasks/"+submitted.ID)
	assert.Equal(t, http.StatusOK, w.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := runner.Wait(ctx, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCanceled, got.Status)

	w = do(r, http.MethodDelete, "/tasks/"+submitted.ID)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTasks_Errors(t *testing.T) {
	r, _ := setup(t)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/tasks/nope").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/tasks?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/tasks?limit=abc").Code)
}
