package v1

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub-server/internal/accounts"
	"learnhub-server/internal/store"
)

type seen struct {
	path, auth, body, cookie string
}

func upstream(t *testing.T, got *seen) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		*got = seen{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: string(b), cookie: r.Header.Get("Cookie")}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setup(t *testing.T, upstreamURL string, picker KeyPicker, fallback string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router, err := New(upstreamURL, picker, fallback)
	require.NoError(t, err)
	r := gin.New()
	router.Mount(r.Group("/v1"))
	return r
}

func TestProxy_RotatesAccountKeys(t *testing.T) {
	var got seen
	srv := upstream(t, &got)

	svc := accounts.NewService(store.NewMemoryStore())
	key := "sk-from-account"
	name := "a"
	_, err := svc.Create(context.Background(), accounts.Input{Name: &name, APIKey: &key})
	require.NoError(t, err)

	r := setup(t, srv.URL+"/openai/v1", svc, "fallback")

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"m"}`))
	req.Header.Set("Authorization", "Bearer client-key")
	req.Header.Set("Cookie", "session=1")
	w := newRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"object":"list"}`, w.Body.String())
	assert.Equal(t, "/openai/v1/chat/completions", got.path)
	assert.Equal(t, "Bearer sk-from-account", got.auth)
	assert.Equal(t, `{"model":"m"}`, got.body)
	assert.Empty(t, got.cookie)
}

func TestProxy_FallbackKey(t *testing.T) {
	var got seen
	srv := upstream(t, &got)
	r := setup(t, srv.URL, accounts.NewService(store.NewMemoryStore()), "sk-fallback")

	w := newRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/models", got.path)
	assert.Equal(t, "Bearer sk-fallback", got.auth)
}

func TestProxy_NoKeyIsUnavailable(t *testing.T) {
	var got seen
	srv := upstream(t, &got)
	r := setup(t, srv.URL, nil, "")

	w := newRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestProxy_UpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	r := setup(t, addr, nil, "k")
	w := newRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/embeddings", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestNew_RejectsInvalidUpstream(t *testing.T) {
	_, err := New("not a url", nil, "")
	assert.Error(t, err)
}

// closeNotifyRecorder adds http.CloseNotifier to httptest.ResponseRecorder,
// which httputil.ReverseProxy requires when writing through gin's ResponseWriter.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
}

func (closeNotifyRecorder) CloseNotify() <-chan bool { return make(chan bool) }

func newRecorder() closeNotifyRecorder {
	return closeNotifyRecorder{httptest.NewRecorder()}
}
