// Package mcp 以 Model Context Protocol（JSON-RPC 2.0 over HTTP）对外暴露学习工具
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"learnhub-server/internal/features/evaluate"
	httpapi "learnhub-server/internal/http"
	"learnhub-server/internal/model"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "learnhub-mcp"
	maxBodyBytes    = 1 << 20
)

// Retriever 知识检索能力
type Retriever interface {
	Retrieve(ctx context.Context, question string, category, topK int) ([]model.Document, error)
}

// Evaluator 作答评分能力
type Evaluator interface {
	Evaluate(ctx context.Context, req evaluate.Request) (*evaluate.Result, error)
}

// Router MCP 路由
type Router struct {
	tools   []Tool
	byName  map[string]Tool
	version string
}

// New 创建 MCP 路由；version 会出现在 serverInfo 中
func New(retriever Retriever, evaluator Evaluator, version string) *Router {
	tools := []Tool{
		knowledgeSearchTool(retriever),
		evaluateAnswerTool(evaluator),
	}
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}
	return &Router{tools: tools, byName: byName, version: version}
}

// Mount 挂载到 /api/mcp
func (r *Router) Mount(rg *gin.RouterGroup) {
	rg.POST("", r.rpc)
	rg.GET("/tools", r.listTools)
}

func (r *Router) listTools(c *gin.Context) {
	httpapi.WriteSuccess(c, gin.H{"tools": r.tools})
}

func (r *Router) rpc(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil || len(raw) > maxBodyBytes {
		c.JSON(http.StatusOK, failure(nil, codeParseError, "请求体读取失败或过大"))
		return
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		c.JSON(http.StatusOK, failure(nil, codeInvalidRequest, "不支持批量请求"))
		return
	}

	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusOK, failure(nil, codeParseError, "JSON 解析失败"))
		return
	}
	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		c.JSON(http.StatusOK, failure(req.ID, codeInvalidRequest, "无效的 JSON-RPC 请求"))
		return
	}

	result, rpcErr := r.dispatch(c.Request.Context(), req)
	if req.notification() {
		c.Status(http.StatusAccepted)
		return
	}
	if rpcErr != nil {
		c.JSON(http.StatusOK, failure(req.ID, rpcErr.Code, rpcErr.Message))
		return
	}
	c.JSON(http.StatusOK, success(req.ID, result))
}

func (r *Router) dispatch(ctx context.Context, req request) (any, *rpcError) {
	switch req.Method {
	case "initialize":
		return gin.H{
			"protocolVersion": protocolVersion,
			"capabilities":    gin.H{"tools": gin.H{"listChanged": false}},
			"serverInfo":      gin.H{"name": serverName, "version": r.version},
		}, nil
	case "notifications/initialized":
		return nil, nil
	case "ping":
		return gin.H{}, nil
	case "tools/list":
		return gin.H{"tools": r.tools}, nil
	case "tools/call":
		return r.callTool(ctx, req.Params)
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: "未知方法: " + req.Method}
	}
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// callResult 工具调用结果；业务失败通过 isError 返回而不是 JSON-RPC 错误
type callResult struct {
	Content []content `json:"content"`
	IsError bool      `json:"isError"`
}

type content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (r *Router) callTool(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	var p callParams
	if err := json.Unmarshal(params, &p); err != nil || p.Name == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "缺少工具名称"}
	}
	tool, ok := r.byName[p.Name]
	if !ok {
		return nil, &rpcError{Code: codeInvalidParams, Message: "未知工具: " + p.Name}
	}
	if len(p.Arguments) == 0 {
		p.Arguments = json.RawMessage("{}")
	}

	out, err := tool.call(ctx, p.Arguments)
	if err != nil {
		var rpcErr *rpcError
		if errors.As(err, &rpcErr) {
			return nil, rpcErr
		}
		log.Warn().Err(err).Str("tool", p.Name).Msg("⚠️ MCP 工具调用失败")
		return callResult{Content: []content{{Type: "text", Text: err.Error()}}, IsError: true}, nil
	}

	text, err := json.Marshal(out)
	if err != nil {
		return nil, &rpcError{Code: codeInternalError, Message: err.Error()}
	}
	return callResult{Content: []content{{Type: "text", Text: string(text)}}}, nil
}
