// Package messages 站内信：发送、按收件人查询、标记已读与删除
package messages

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	httpapi "learnhub-server/internal/http"
	"learnhub-server/internal/model"
	"learnhub-server/internal/store"
)

const (
	collection   = "messages"
	maxBodyRunes = 5000
	listLimit    = 200
)

// Message 一条站内信
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// SendRequest 发送请求
type SendRequest struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (r *SendRequest) Normalize() {
	r.From = strings.TrimSpace(r.From)
	r.To = strings.TrimSpace(r.To)
	r.Title = strings.TrimSpace(r.Title)
	r.Body = strings.TrimSpace(r.Body)
}

func (r *SendRequest) Validate() error {
	switch {
	case r.To == "":
		return model.NewValidationError("to", "收件人不能为空")
	case r.Body == "":
		return model.NewValidationError("body", "内容不能为空")
	case utf8.RuneCountInString(r.Body) > maxBodyRunes:
		return model.NewValidationError("body", "内容过长")
	}
	return nil
}

// Router 站内信路由
type Router struct {
	store store.Store
	now   func() time.Time
}

// New 创建站内信路由
func New(s store.Store) *Router {
	return &Router{store: s, now: time.Now}
}

// Mount 挂载到 /messages
func (r *Router) Mount(rg *gin.RouterGroup) {
	rg.POST("", r.send)
	rg.GET("", r.list)
	rg.PATCH("/:id/read", r.markRead)
	rg.DELETE("/:id", r.delete)
}

func (r *Router) send(c *gin.Context) {
	req, ok := httpapi.BindJSON[SendRequest](c)
	if !ok {
		return
	}
	msg := Message{
		ID:        uuid.NewString(),
		From:      req.From,
		To:        req.To,
		Title:     req.Title,
		Body:      req.Body,
		CreatedAt: r.now().UTC(),
	}
	if err := store.PutJSON(c.Request.Context(), r.store, collection, msg.ID, msg, 0); err != nil {
		httpapi.HandleError(c, err)
		return
	}
	httpapi.WriteStatus(c, http.StatusCreated, msg)
}

func (r *Router) list(c *gin.Context) {
	user := strings.TrimSpace(c.Query("user"))
	if user == "" {
		httpapi.HandleError(c, model.NewValidationError("user", "缺少 user 参数"))
		return
	}
	unreadOnly := c.Query("unread") == "true"

	all, err := store.ListJSON[Message](c.Request.Context(), r.store, collection, 0)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	out := make([]Message, 0)
	unread := 0
	for _, m := range all {
		if m.To != user {
			continue
		}
		if !m.Read {
			unread++
		} else if unreadOnly {
			continue
		}
		if len(out) < listLimit {
			out = append(out, m)
		}
	}
	httpapi.WriteSuccess(c, gin.H{"messages": out, "unread": unread})
}

func (r *Router) markRead(c *gin.Context) {
	msg, err := r.load(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	msg.Read = true
	if err := store.PutJSON(c.Request.Context(), r.store, collection, msg.ID, msg, 0); err != nil {
		httpapi.HandleError(c, err)
		return
	}
	httpapi.WriteSuccess(c, msg)
}

func (r *Router) delete(c *gin.Context) {
	if err := r.store.Delete(c.Request.Context(), collection, c.Param("id")); err != nil {
		httpapi.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) load(ctx context.Context, id string) (*Message, error) {
	var msg Message
	if err := store.GetJSON(ctx, r.store, collection, id, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
