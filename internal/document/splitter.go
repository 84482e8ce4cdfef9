package document

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// SplitterConfig 分段器配置
type SplitterConfig struct {
	Separator       string // 原子单元之间的分隔符
	ChunkSize       int    // 分块大小（按字符数）
	ChunkOverlap    int    // 分块重叠大小（字符数）
	StripWhitespace bool   // 是否去除分块首尾空白
}

// DefaultSplitterConfig 返回默认分段器配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		Separator:       "\n",
		ChunkSize:       1000,
		ChunkOverlap:    100,
		StripWhitespace: true,
	}
}

// Validate 检查配置是否合法
func (c SplitterConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("chunk overlap must not be negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap > c.ChunkSize {
		return fmt.Errorf("chunk overlap (%d) is larger than chunk size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.Separator == "" {
		return fmt.Errorf("separator cannot be empty")
	}
	return nil
}

// CharacterSplitter 按分隔符切分的字符分段器
// 先按分隔符切成原子单元，再贪心合并，相邻分块之间保留不超过ChunkOverlap的重叠
type CharacterSplitter struct {
	config SplitterConfig
}

// NewCharacterSplitter 创建新的字符分段器
func NewCharacterSplitter(config SplitterConfig) (*CharacterSplitter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &CharacterSplitter{config: config}, nil
}

// Config 返回分段器配置
func (s *CharacterSplitter) Config() SplitterConfig {
	return s.config
}

// Split 将文本分割成内容段落
func (s *CharacterSplitter) Split(text string) ([]Content, error) {
	if text == "" {
		return []Content{}, nil
	}

	chunks := s.mergeUnits(s.splitUnits(text))

	contents := make([]Content, len(chunks))
	for i, chunk := range chunks {
		contents[i] = Content{
			Text:  chunk,
			Index: i,
		}
	}
	return contents, nil
}

// splitUnits 按分隔符切分原子单元，丢弃空单元
func (s *CharacterSplitter) splitUnits(text string) []string {
	parts := strings.Split(text, s.config.Separator)
	units := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			units = append(units, p)
		}
	}
	return units
}

// mergeUnits 贪心合并原子单元
func (s *CharacterSplitter) mergeUnits(units []string) []string {
	sepLen := utf8.RuneCountInString(s.config.Separator)
	size, overlap := s.config.ChunkSize, s.config.ChunkOverlap

	var chunks []string
	var current []string
	total := 0

	// joinCost 在当前窗口后追加一个单元时需要额外计入的分隔符长度
	joinCost := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}

	for _, unit := range units {
		unitLen := utf8.RuneCountInString(unit)

		if total+unitLen+joinCost() > size && len(current) > 0 {
			if chunk, ok := s.join(current); ok {
				chunks = append(chunks, chunk)
			}

			// 从窗口头部丢弃单元，直到剩余部分不超过重叠长度且能容纳新单元
			for total > overlap || (total > 0 && total+unitLen+joinCost() > size) {
				dropped := utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					dropped += sepLen
				}
				total -= dropped
				current = current[1:]
			}
		}

		current = append(current, unit)
		total += unitLen
		if len(current) > 1 {
			total += sepLen
		}
	}

	if chunk, ok := s.join(current); ok {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// join 用分隔符拼接单元，结果为空时返回false
func (s *CharacterSplitter) join(units []string) (string, bool) {
	text := strings.Join(units, s.config.Separator)
	if s.config.StripWhitespace {
		text = strings.TrimSpace(text)
	}
	return text, text != ""
}
