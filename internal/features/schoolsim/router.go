// Package schoolsim 校园情景模拟：学生与模型扮演的老师或同学对话练习
package schoolsim

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"learnhub-server/internal/dialogue"
	httpapi "learnhub-server/internal/http"
	"learnhub-server/internal/model"
)

// 模型扮演的角色
var roles = map[string]string{
	"teacher":   "一位耐心、善于提问引导的老师",
	"classmate": "一位友好、偶尔会犯错的同学",
	"counselor": "一位温和的心理辅导老师",
}

// StartRequest 新建模拟
type StartRequest struct {
	Role     string `json:"role"`
	Scenario string `json:"scenario"`
	Subject  string `json:"subject,omitempty"`
	Grade    string `json:"grade,omitempty"`
}

func (r *StartRequest) Normalize() {
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	if r.Role == "" {
		r.Role = "teacher"
	}
	r.Scenario = strings.TrimSpace(r.Scenario)
	r.Subject = strings.TrimSpace(r.Subject)
	r.Grade = strings.TrimSpace(r.Grade)
}

func (r *StartRequest) Validate() error {
	if _, ok := roles[r.Role]; !ok {
		return model.NewValidationError("role", "role 只能是 teacher、classmate 或 counselor")
	}
	if r.Scenario == "" {
		return model.NewValidationError("scenario", "情景不能为空")
	}
	return nil
}

// TurnRequest 学生的一次发言
type TurnRequest struct {
	Message string `json:"message"`
}

func persona(req StartRequest) string {
	s := fmt.Sprintf("你在校园情景模拟中扮演%s。\n情景：%s\n", roles[req.Role], req.Scenario)
	if req.Subject != "" {
		s += fmt.Sprintf("学科：%s\n", req.Subject)
	}
	if req.Grade != "" {
		s += fmt.Sprintf("学生年级：%s\n", req.Grade)
	}
	return s + "始终保持角色，用口语化的中文回复，每次不超过 150 字。"
}

// Router 校园模拟路由
type Router struct {
	sessions *dialogue.Manager
}

// New 创建校园模拟路由
func New(m *dialogue.Manager) *Router {
	return &Router{sessions: m}
}

// Mount 挂载到 /api/school_sim
func (r *Router) Mount(rg *gin.RouterGroup) {
	rg.POST("/sessions", r.start)
	rg.GET("/sessions/:id", r.get)
	rg.POST("/sessions/:id/turns", r.turn)
}

func (r *Router) start(c *gin.Context) {
	req, ok := httpapi.BindJSON[StartRequest](c)
	if !ok {
		return
	}
	meta := map[string]string{"role": req.Role, "scenario": req.Scenario}
	// 由学生先开口，不生成开场白
	s, err := r.sessions.Start(c.Request.Context(), persona(req), meta, "")
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

func (r *Router) turn(c *gin.Context) {
	req, ok := httpapi.BindJSON[TurnRequest](c)
	if !ok {
		return
	}
	s, reply, err := r.sessions.Step(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		httpapi.HandleError(c, err)
		return
	}
	httpapi.WriteSuccess(c, gin.H{"sessionId": s.ID, "reply": reply, "turns": len(s.Turns)})
}
