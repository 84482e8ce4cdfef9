package model

// SessionURI 会话路径参数
type SessionURI struct {
	ID string `uri:"id" binding:"required"` // 会话ID
}

// CreateSessionRequest 创建会话请求
type CreateSessionRequest struct {
	APIKey string `json:"api_key" binding:"omitempty"` // 可选的API密钥
	Model  string `json:"model" binding:"omitempty"`   // 可选的模型名称
}

// CredentialRequest 设置API密钥请求，空字符串表示清除
type CredentialRequest struct {
	APIKey string `json:"api_key"`
}

// ModelRequest 选择模型请求
type ModelRequest struct {
	Model string `json:"model" binding:"required"` // 模型名称
}

// QuestionRequest 提问请求
type QuestionRequest struct {
	Question string `json:"question" binding:"required"` // 问题内容
}

// MessagesRequest 消息列表请求
type MessagesRequest struct {
	Offset int `form:"offset" binding:"omitempty,min=0"` // 起始位置
	Limit  int `form:"limit" binding:"omitempty,min=1"`  // 返回数量，为空时返回全部
}
