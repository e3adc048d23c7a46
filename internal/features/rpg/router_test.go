package rpg

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub-server/internal/dialogue"
	"learnhub-server/internal/llm/llmtest"
	"learnhub-server/internal/store"
)

func setup(fake *llmtest.Client) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(dialogue.NewManager(store.NewMemoryStore(), fake, "rpg_sessions", 0, 10)).Mount(r.Group("/api/rpg"))
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func TestRPG_Adventure(t *testing.T) {
	fake := llmtest.Static("你站在城堡门口。")
	r := setup(fake)

	w := do(r, http.MethodPost, "/api/rpg/sessions", `{"world":"数学王国","character":"见习骑士","subject":"分数"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Data dialogue.Session `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Len(t, created.Data.Turns, 1)
	assert.Contains(t, fake.Last().System, "分数")
	assert.NotContains(t, w.Body.String(), "主持人")

	w = do(r, http.MethodPost, "/api/rpg/sessions/"+created.Data.ID+"/actions", `{"action":"推开大门"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"turns":3`)

	w = do(r, http.MethodGet, "/api/rpg/sessions/"+created.Data.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "推开大门")
}

func TestRPG_Errors(t *testing.T) {
	r := setup(llmtest.Static("x"))
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/rpg/sessions", `{"world":"x"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/rpg/sessions/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/api/rpg/sessions/nope/actions", `{"action":"走"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/rpg/sessions/nope/actions", `{"action":""}`).Code)
}
