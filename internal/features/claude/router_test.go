package claude

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub-server/internal/llm"
	"learnhub-server/internal/llm/llmtest"
)

func post(fake *llmtest.Client, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(fake, "claude-test").Mount(r.Group("/api/claude"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/claude/chat", strings.NewReader(body)))
	return w
}

func TestChat_JSON(t *testing.T) {
	fake := llmtest.Static("光合作用把光能转化为化学能")
	w := post(fake, `{"system":"你是生物老师","messages":[{"role":"User","content":"什么是光合作用"}],"maxTokens":256}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "化学能")
	assert.Contains(t, w.Body.String(), "claude-test")

	last := fake.Last()
	assert.Equal(t, "你是生物老师", last.System)
	assert.Equal(t, 256, last.MaxTokens)
	assert.Equal(t, llm.RoleUser, last.Messages[0].Role)
}

func TestChat_Stream(t *testing.T) {
	w := post(llmtest.Static("one two three"), `{"messages":[{"role":"user","content":"count"}],"stream":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Equal(t, 3, strings.Count(body, "event:delta"))
	assert.Contains(t, body, "event:done")
	assert.Contains(t, body, "one two three")
}

func TestChat_StreamError(t *testing.T) {
	fake := &llmtest.Client{Reply: func(llm.Request) (string, error) { return "", errors.New("overloaded") }}
	w := post(fake, `{"messages":[{"role":"user","content":"hi"}],"stream":true}`)
	assert.Contains(t, w.Body.String(), "event:error")
	assert.Contains(t, w.Body.String(), "overloaded")
}

func TestChat_Validation(t *testing.T) {
	fake := llmtest.Static("x")
	for _, body := range []string{
		`{"messages":[]}`,
		`{"messages":[{"role":"system","content":"x"}]}`,
		`{"messages":[{"role":"user","content":"q"},{"role":"assistant","content":"a"}]}`,
		`{"messages":[{"role":"user","content":"q"}],"temperature":2}`,
	} {
		assert.Equal(t, http.StatusBadRequest, post(fake, body).Code, body)
	}
	assert.Empty(t, fake.Calls())
}

func TestChat_UpstreamErrorIsBadGateway(t *testing.T) {
	fake := &llmtest.Client{Reply: func(llm.Request) (string, error) { return "", llm.ErrUpstream }}
	w := post(fake, `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
