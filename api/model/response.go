package model

import (
	"github.com/fyerfyer/pdf-chat/internal/services"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// ErrorData 错误响应附带的数据
type ErrorData struct {
	Kind string `json:"kind"` // 流水线错误类型
}

// ModelsResponse 可选模型列表
type ModelsResponse struct {
	Models  []string `json:"models"`  // 允许使用的模型
	Default string   `json:"default"` // 新会话的默认模型
}

// DocumentResponse 文档上传响应
type DocumentResponse struct {
	UploadID string               `json:"upload_id,omitempty"` // 归档的上传文件ID
	Session  services.SessionView `json:"session"`             // 加载后的会话状态
}

// SourceInfo 回答引用的段落
type SourceInfo struct {
	Position int     `json:"position"` // 段落位置
	Text     string  `json:"text"`     // 段落文本
	Score    float32 `json:"score"`    // 相似度
}

// AnswerResponse 问答响应
type AnswerResponse struct {
	Question string       `json:"question"` // 用户问题
	Answer   string       `json:"answer"`   // 生成的回答
	Model    string       `json:"model"`    // 使用的模型
	Sources  []SourceInfo `json:"sources"`  // 引用的段落
}

// NewAnswerResponse 由回答结果构建响应
func NewAnswerResponse(question string, answer *services.Answer) AnswerResponse {
	sources := make([]SourceInfo, len(answer.Sources))
	for i, src := range answer.Sources {
		sources[i] = SourceInfo{
			Position: src.Position,
			Text:     src.Text,
			Score:    src.Score,
		}
	}
	return AnswerResponse{
		Question: question,
		Answer:   answer.Text,
		Model:    answer.Model,
		Sources:  sources,
	}
}

// MessagesResponse 会话消息列表响应
type MessagesResponse struct {
	SessionID string             `json:"session_id"` // 会话ID
	Total     int                `json:"total"`      // 消息总数
	Messages  []services.Message `json:"messages"`   // 消息列表
}
