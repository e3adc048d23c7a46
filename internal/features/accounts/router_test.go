package accounts

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

	"learnhub-server/internal/accounts"
	"learnhub-server/internal/store"
)

func setup(token string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(accounts.NewService(store.NewMemoryStore()), token).Mount(r.Group("/accounts"))
	return r
}

func do(r *gin.Engine, method, path, body, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAccounts_CRUDMasksKeys(t *testing.T) {
	r := setup("")

	w := do(r, http.MethodPost, "/accounts", `{"name":"主账号","apiKey":"sk-0123456789abcdef"}`, "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "0123456789abcdef")

	var created struct {
		Data accounts.Account `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "sk-0...cdef", created.Data.APIKey)
	id := created.Data.ID

	w = do(r, http.MethodPatch, "/accounts/"+id, `{"enabled":false}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"enabled":false`)

	w = do(r, http.MethodGet, "/accounts", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "0123456789abcdef")

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/accounts/"+id, "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/accounts/"+id, "", "").Code)
}

func TestAccounts_Validation(t *testing.T) {
	r := setup("")
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/accounts", `{"name":"x"}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/accounts", `{"name":"x","apiKey":"k","unknown":1}`, "").Code)
}

func TestAccounts_AdminToken(t *testing.T) {
	r := setup("admin")
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/accounts", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/accounts", "", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/accounts", "", "admin").Code)
}
