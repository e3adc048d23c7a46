package messages

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learnhub-server/internal/store"
)

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, reader))
	return w
}

type listBody struct {
	Data struct {
		Messages []Message `json:"messages"`
		Unread   int       `json:"unread"`
	} `json:"data"`
}

func TestMessages_Flow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(store.NewMemoryStore()).Mount(r.Group("/messages"))

	w := do(r, http.MethodPost, "/messages", `{"from":"老师","to":"alice","title":"作业","body":"请周五前提交"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Data Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/messages", `{"to":"bob","body":"hi"}`).Code)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/messages", `{"to":"alice","body":"第二封"}`).Code)

	var list listBody
	require.NoError(t, json.Unmarshal(do(r, http.MethodGet, "/messages?user=alice", "").Body.Bytes(), &list))
	require.Len(t, list.Data.Messages, 2)
	assert.Equal(t, "第二封", list.Data.Messages[0].Body)
	assert.Equal(t, 2, list.Data.Unread)

	w = do(r, http.MethodPatch, "/messages/"+created.Data.ID+"/read", "")
	require.Equal(t, http.StatusOK, w.Code)

	list = listBody{}
	require.NoError(t, json.Unmarshal(do(r, http.MethodGet, "/messages?user=alice&unread=true", "").Body.Bytes(), &list))
	assert.Len(t, list.Data.Messages, 1)
	assert.Equal(t, 1, list.Data.Unread)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/messages/"+created.Data.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPatch, "/messages/"+created.Data.ID+"/read", "").Code)
}

func TestMessages_Validation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(store.NewMemoryStore()).Mount(r.Group("/messages"))

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/messages", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/messages", `{"to":"a"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/messages", `{"body":"x"}`).Code)
}
