// internal/model/model.go
//
// 数据模型定义模块
//
// 本模块定义了各业务路由共用的数据结构，包括：
// 1. 统一响应格式与字段校验错误
// 2. 知识库问答相关的请求、响应与文档结构
// 3. 与大语言模型交互相关的常量
//
// 将共用数据模型集中定义在一个包中，便于统一管理和维护。
// 仅被单个业务使用的结构放在各自的 feature 包中。
package model

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Response 表示服务端返回的统一响应格式
//
// 所有 API 响应都遵循这个结构，便于前端统一处理。
type Response struct {
	// Status 请求状态标识
	// 取值：
	//   - "success": 请求成功
	//   - "error": 请求失败
	Status string `json:"status"`

	// Data 响应数据的载荷
	// 成功时包含业务数据，失败时包含 {"message": "错误描述"}
	Data any `json:"data"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// KnowledgeQuery 表示知识库问答请求
//
// 对应 POST /api/knowledge/query 的请求体。
type KnowledgeQuery struct {
	// Question 用户的自然语言问题
	Question string `json:"question"`

	// Category 分类筛选条件，0 表示不限制分类
	Category int `json:"category"`

	// TopK 参与生成的候选文档数量，0 表示使用服务端默认值
	TopK int `json:"topK,omitempty"`
}

// Normalize 对字段进行基础清洗
func (q *KnowledgeQuery) Normalize() {
	q.Question = strings.TrimSpace(q.Question)
}

// Validate 校验字段合法性
func (q KnowledgeQuery) Validate() error {
	if q.Question == "" {
		return NewValidationError("question", "问题内容不能为空")
	}
	if utf8.RuneCountInString(q.Question) > MaxQuestionRunes {
		return NewValidationError("question", "问题内容过长")
	}
	if q.Category < 0 {
		return NewValidationError("category", "category 不能为负数")
	}
	if q.TopK < 0 || q.TopK > MaxTopK {
		return NewValidationError("topK", "topK 超出范围")
	}
	return nil
}

// Document 表示知识库中的一条文档片段
type Document struct {
	ID       string  `json:"id"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text"`
	Category int     `json:"category"`
	Source   string  `json:"source,omitempty"`
	Score    float32 `json:"score,omitempty"`
}

// Validate 校验待入库文档
func (d Document) Validate() error {
	if strings.TrimSpace(d.Text) == "" {
		return NewValidationError("text", "文档内容不能为空")
	}
	if d.Category < 0 {
		return NewValidationError("category", "category 不能为负数")
	}
	return nil
}

// Citation 表示回答引用的文档
type Citation struct {
	// DocumentID 被引用文档的 ID
	DocumentID string `json:"documentId"`
	// Quote 引用的原文片段，应简明扼要
	Quote string `json:"quote,omitempty"`
}

// KnowledgeAnswer 由 LLM 的 JSON 输出解析而来
type KnowledgeAnswer struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// SepToken 是 LLM 输出中的分隔符标记
//
// LLM 会在自由文本解释之后输出这个特殊标记，紧跟着是结构化的 JSON 结果。
// 通过这个标记，我们可以将 LLM 的"思考过程"和"最终结果"分离开来。
//
// 示例输出格式：
//
//	先分析资料与问题……<|Result|>
//	{"answer": "……", "citations": [{"documentId": "…"}]}
const SepToken = "<|Result|>"

// MaxQuestionRunes 限制单次问题长度
const MaxQuestionRunes = 1024

// MaxTopK 限制单次问答使用的候选文档数量
const MaxTopK = 100

// ValidationError 表示请求字段校验失败
type ValidationError struct {
	Field   string
	Message string
}

func (v ValidationError) Error() string {
	return v.Field + ": " + v.Message
}

// NewValidationError 创建一个 ValidationError
func NewValidationError(field, msg string) error {
	return ValidationError{Field: field, Message: msg}
}

// IsValidationError 判断错误是否为 ValidationError
func IsValidationError(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}
