package story

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub-server/internal/llm/llmtest"
	"learnhub-server/internal/store"
	"learnhub-server/internal/task"
)

const reply = `构思<|Result|>{"title":"小水滴旅行记","content":"从前有一滴水……","moral":"水循环"}`

func setup(t *testing.T, fake *llmtest.Client) (*gin.Engine, *task.Runner) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	runner := task.NewRunner(store.NewMemoryStore(), 1, 0)
	t.Cleanup(func() { _ = runner.Close(context.Background()) })

	r := gin.New()
	New(fake, runner).Mount(r.Group("/api/story"))
	return r, runner
}

func post(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return w
}

func TestStory_Sync(t *testing.T) {
	fake := llmtest.Static(reply)
	r, _ := setup(t, fake)

	w := post(r, "/api/story", `{"topic":"水循环","length":"Medium"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "小水滴旅行记")
	assert.Equal(t, 2000, fake.Last().MaxTokens)
}

func TestStory_AsyncCreatesTask(t *testing.T) {
	r, runner := setup(t, llmtest.Static(reply))

	w := post(r, "/api/story?async=true", `{"topic":"水循环"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var body struct {
		Data task.Task `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, TaskKind, body.Data.Kind)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := runner.Wait(ctx, body.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusSucceeded, done.Status)

	var s Story
	require.NoError(t, json.Unmarshal(done.Result, &s))
	assert.Equal(t, "小水滴旅行记", s.Title)
}

func TestStory_Validation(t *testing.T) {
	r, _ := setup(t, llmtest.Static(reply))
	assert.Equal(t, http.StatusBadRequest, post(r, "/api/story", `{"topic":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(r, "/api/story", `{"topic":"x","length":"epic"}`).Code)
}
