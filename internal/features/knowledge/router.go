// Package knowledge 知识库问答与文档入库
package knowledge

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	httpapi "learnhub-server/internal/http"
	"learnhub-server/internal/model"
	"learnhub-server/internal/rag"
)

// maxDocumentsPerRequest 单次入库的最大文档数
const maxDocumentsPerRequest = 64

// IngestRequest 文档入库请求
type IngestRequest struct {
	Documents []model.Document `json:"documents"`
}

func (r *IngestRequest) Validate() error {
	if len(r.Documents) == 0 {
		return model.NewValidationError("documents", "文档列表不能为空")
	}
	if len(r.Documents) > maxDocumentsPerRequest {
		return model.NewValidationError("documents", fmt.Sprintf("单次最多提交 %d 条文档", maxDocumentsPerRequest))
	}
	return nil
}

// Router 知识库路由
type Router struct {
	service *rag.Service
}

// New 创建知识库路由
func New(s *rag.Service) *Router {
	return &Router{service: s}
}

// Mount 挂载到 /knowledge
func (r *Router) Mount(rg *gin.RouterGroup) {
	rg.POST("/query", r.query)
	rg.POST("/documents", r.ingest)
}

func (r *Router) query(c *gin.Context) {
	req, ok := httpapi.BindJSON[model.KnowledgeQuery](c)
	if !ok {
		return
	}

	res, err := r.service.HandleQuery(c.Request.Context(), req, httpapi.Fingerprint(c))
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	httpapi.WriteSuccess(c, res)
}

func (r *Router) ingest(c *gin.Context) {
	req, ok := httpapi.BindJSON[IngestRequest](c)
	if !ok {
		return
	}

	docs, err := r.service.Ingest(c.Request.Context(), req.Documents)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	httpapi.WriteStatus(c, http.StatusCreated, gin.H{"ids": ids})
}
