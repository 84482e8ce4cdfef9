package llm

import "time"

// MessageRole 消息角色类型
type MessageRole string

const (
	// RoleSystem 系统角色
	RoleSystem MessageRole = "system"
	// RoleUser 用户角色
	RoleUser MessageRole = "user"
	// RoleAssistant 助手角色
	RoleAssistant MessageRole = "assistant"
)

// Message 对话消息结构
type Message struct {
	Role    MessageRole `json:"role"`           // 角色
	Content string      `json:"content"`        // 内容
	Name    string      `json:"name,omitempty"` // 可选名称标识
}

// Response 统一的响应结构
type Response struct {
	Text         string    // 生成的文本
	TokenCount   int       // 使用的token数
	ModelName    string    // 使用的模型名称
	FinishReason string    // 结束原因
	FinishTime   time.Time // 完成时间
}

// RAGResponse RAG响应结构
type RAGResponse struct {
	Answer  string            // 回答内容
	Sources []SourceReference // 引用来源
}

// SourceReference 引用来源
type SourceReference struct {
	ID       string // 段落ID
	Source   string // 文档名称
	Position int    // 段落位置
	Content  string // 引用内容
}

// 可选的对话模型
const (
	ModelGPT4oMini  = "gpt-4o-mini"
	ModelGPT4       = "gpt-4"
	ModelGPT35Turbo = "gpt-3.5-turbo"
)

// DefaultModel 默认使用的对话模型
const DefaultModel = ModelGPT35Turbo

// AllowedModels 返回允许选择的模型列表，顺序固定
func AllowedModels() []string {
	return []string{ModelGPT4oMini, ModelGPT4, ModelGPT35Turbo}
}

// IsAllowedModel 判断模型是否在允许列表中
func IsAllowedModel(model string) bool {
	for _, m := range AllowedModels() {
		if m == model {
			return true
		}
	}
	return false
}
