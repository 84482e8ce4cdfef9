package models

import "errors"

var (
	// ErrSessionNotFound 会话记录不存在
	ErrSessionNotFound = errors.New("chat session not found")

	// ErrUploadNotFound 上传记录不存在
	ErrUploadNotFound = errors.New("upload not found")
)
