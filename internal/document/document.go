package document

import (
	"errors"
	"io"
)

var (
	// ErrMalformedDocument 上传的字节流不是可解析的PDF
	ErrMalformedDocument = errors.New("malformed document")

	// ErrNoTextContent PDF中没有可提取的文本
	ErrNoTextContent = errors.New("no extractable text in document")
)

// Extractor 文本提取器接口
// 负责将PDF字节流转换为单个规范化文本
type Extractor interface {
	// Extract 从Reader读取PDF并返回规范化文本
	Extract(r io.Reader) (string, error)

	// ExtractFile 从本地文件读取PDF并返回规范化文本
	ExtractFile(filePath string) (string, error)
}

// Content 表示文档的内容段落
type Content struct {
	Text  string // 段落文本内容
	Index int    // 段落索引
}

// Splitter 文本分段器接口
// 负责将长文本分割成适合向量化的小段
type Splitter interface {
	// Split 将文本分割成段落
	Split(text string) ([]Content, error)
}

// Texts 返回段落文本列表，顺序与段落索引一致
func Texts(contents []Content) []string {
	texts := make([]string, len(contents))
	for i, c := range contents {
		texts[i] = c.Text
	}
	return texts
}
