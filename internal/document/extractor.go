package document

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

// PageSeparator 每个成功提取的页面之后追加的分隔符
const PageSeparator = "\n"

// PDFExtractor PDF文本提取器
// 先用pdfcpu校验文档结构，再用ledongthuc/pdf逐页提取纯文本
type PDFExtractor struct {
	logger *logrus.Logger
}

// ExtractorOption 提取器配置选项
type ExtractorOption func(*PDFExtractor)

// WithExtractorLogger 设置日志记录器
func WithExtractorLogger(logger *logrus.Logger) ExtractorOption {
	return func(e *PDFExtractor) {
		e.logger = logger
	}
}

// NewPDFExtractor 创建一个新的PDF文本提取器
func NewPDFExtractor(opts ...ExtractorOption) *PDFExtractor {
	e := &PDFExtractor{}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logrus.New()
	}
	return e
}

// ExtractFile 读取本地PDF文件并提取文本
func (e *PDFExtractor) ExtractFile(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return e.Extract(f)
}

// Extract 从Reader中读取PDF并按页序拼接文本
// 没有文本的页面被跳过，每个成功的页面之后追加一个换行
func (e *PDFExtractor) Extract(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty input", ErrMalformedDocument)
	}

	pageCount, err := validatePDF(data)
	if err != nil {
		e.logger.WithError(err).WithField("size", len(data)).Warn("PDF validation failed")
		return "", fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	var text strings.Builder
	extracted := 0
	for i := 1; i <= reader.NumPage(); i++ {
		pageText, ok := e.pageText(reader, i)
		if !ok {
			continue
		}
		text.WriteString(pageText)
		text.WriteString(PageSeparator)
		extracted++
	}

	e.logger.WithFields(logrus.Fields{
		"pages":           pageCount,
		"pages_with_text": extracted,
		"text_length":     text.Len(),
	}).Debug("PDF text extracted")

	return text.String(), nil
}

// pageText 提取单页文本，返回false表示该页没有可用文本
func (e *PDFExtractor) pageText(reader *pdf.Reader, num int) (text string, ok bool) {
	// 个别页面的内容流损坏时ledongthuc/pdf会panic，只跳过该页
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logrus.Fields{
				"page":  num,
				"panic": r,
			}).Warn("Recovered from page extraction panic")
			text, ok = "", false
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return "", false
	}

	content, err := page.GetPlainText(nil)
	if err != nil {
		e.logger.WithError(err).WithField("page", num).Warn("Failed to extract page text")
		return "", false
	}
	if content == "" {
		return "", false
	}
	return content, true
}

// validatePDF 使用pdfcpu解析文档结构，返回页数
func validatePDF(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return 0, err
	}
	return ctx.PageCount, nil
}
