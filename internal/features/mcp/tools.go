package mcp

import (
	"context"
	"encoding/json"

	"learnhub-server/internal/features/evaluate"
	"learnhub-server/internal/model"
)

// Tool 对外声明的工具
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`

	call func(ctx context.Context, args json.RawMessage) (any, error)
}

func invalidArgs(msg string) error {
	return &rpcError{Code: codeInvalidParams, Message: msg}
}

func knowledgeSearchTool(retriever Retriever) Tool {
	return Tool{
		Name:        "knowledge_search",
		Description: "在学习资料知识库中做语义检索，返回最相关的文档片段",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":    map[string]any{"type": "string", "description": "检索问题"},
				"category": map[string]any{"type": "integer", "description": "分类，0 表示不限"},
				"topK":     map[string]any{"type": "integer", "minimum": 1, "maximum": model.MaxTopK},
			},
			"required": []string{"query"},
		},
		call: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				Query    string `json:"query"`
				Category int    `json:"category"`
				TopK     int    `json:"topK"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, invalidArgs("参数解析失败")
			}
			q := model.KnowledgeQuery{Question: in.Query, Category: in.Category, TopK: in.TopK}
			q.Normalize()
			if err := q.Validate(); err != nil {
				return nil, invalidArgs(err.Error())
			}
			if q.TopK == 0 {
				q.TopK = 5
			}
			docs, err := retriever.Retrieve(ctx, q.Question, q.Category, q.TopK)
			if err != nil {
				return nil, err
			}
			return map[string]any{"documents": docs}, nil
		},
	}
}

func evaluateAnswerTool(evaluator Evaluator) Tool {
	return Tool{
		Name:        "evaluate_answer",
		Description: "对学生作答进行评分并给出改进建议",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question":  map[string]any{"type": "string"},
				"answer":    map[string]any{"type": "string"},
				"reference": map[string]any{"type": "string"},
				"rubric":    map[string]any{"type": "string"},
				"maxScore":  map[string]any{"type": "integer", "minimum": 1},
			},
			"required": []string{"question", "answer"},
		},
		call: func(ctx context.Context, args json.RawMessage) (any, error) {
			var in evaluate.Request
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, invalidArgs("参数解析失败")
			}
			res, err := evaluator.Evaluate(ctx, in)
			if model.IsValidationError(err) {
				return nil, invalidArgs(err.Error())
			}
			return res, err
		},
	}
}
