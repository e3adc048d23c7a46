// Package rpg 文字冒险：模型担任主持人，玩家逐轮输入行动
package rpg

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"learnhub-server/internal/dialogue"
	httpapi "learnhub-server/internal/http"
	"learnhub-server/internal/model"
)

const openingPrompt = "请描述开场场景，并给出三个可选行动。"

// StartRequest 新建冒险
type StartRequest struct {
	World     string `json:"world"`
	Character string `json:"character"`
	// Subject 冒险中融入的学科知识，可为空
	Subject string `json:"subject,omitempty"`
}

func (r *StartRequest) Normalize() {
	r.World = strings.TrimSpace(r.World)
	r.Character = strings.TrimSpace(r.Character)
	r.Subject = strings.TrimSpace(r.Subject)
}

func (r *StartRequest) Validate() error {
	if r.World == "" {
		return model.NewValidationError("world", "世界观不能为空")
	}
	if r.Character == "" {
		return model.NewValidationError("character", "角色不能为空")
	}
	return nil
}

// ActionRequest 玩家行动
type ActionRequest struct {
	Action string `json:"action"`
}

func persona(req StartRequest) string {
	var b strings.Builder
	b.WriteString("你是一场文字冒险游戏的主持人。\n")
	fmt.Fprintf(&b, "世界观：%s\n玩家角色：%s\n", req.World, req.Character)
	if req.Subject != "" {
		fmt.Fprintf(&b, "请在剧情中自然地融入「%s」相关的知识挑战，玩家答对后推进剧情。\n", req.Subject)
	}
	b.WriteString("每次回复先描述行动结果，再给出新的局面，最后列出两到三个可选行动。不要替玩家做决定。")
	return b.String()
}

// Router 冒险路由
type Router struct {
	sessions *dialogue.Manager
}

// New 创建冒险路由
func New(m *dialogue.Manager) *Router {
	return &Router{sessions: m}
}

// Mount 挂载到 /api/rpg
func (r *Router) Mount(rg *gin.RouterGroup) {
	rg.POST("/sessions", r.start)
	rg.GET("/sessions/:id", r.get)
	rg.POST("/sessions/:id/actions", r.act)
}

func (r *Router) start(c *gin.Context) {
	req, ok := httpapi.BindJSON[StartRequest](c)
	if !ok {
		return
	}
	meta := map[string]string{"world": req.World, "character": req.Character}
	if req.Subject != "" {
		meta["subject"] = req.Subject
	}
	s, err := r.sessions.Start(c.Request.Context(), persona(req), meta, openingPrompt)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	httpapi.WriteStatus(c, http.StatusCreated, s)
}

func (r *Router) get(c *gin.Context) {
	s, err := r.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	httpapi.WriteSuccess(c, s)
}

func (r *Router) act(c *gin.Context) {
	req, ok := httpapi.BindJSON[ActionRequest](c)
	if !ok {
		return
	}
	s, reply, err := r.sessions.Step(c.Request.Context(), c.Param("id"), req.Action)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	httpapi.WriteSuccess(c, gin.H{"sessionId": s.ID, "narration": reply, "turns": len(s.Turns)})
}
