package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchProcessor 批处理器
// 将大量文本按批次切分并行调用嵌入客户端，结果顺序与输入一致
type BatchProcessor struct {
	client     Client // 嵌入客户端
	batchSize  int    // 每批处理的文本数量
	maxWorkers int    // 最大并行工作线程数
}

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = DefaultConfig().BatchSize
	}
	if maxWorkers <= 0 {
		maxWorkers = DefaultConfig().Workers
	}

	return &BatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// batchResult 单个批次的处理结果
type batchResult struct {
	vectors [][]float32
	err     error
}

// Process 分批并行生成嵌入向量，任一批次失败则整体失败
func (p *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	batches := splitIntoBatches(texts, p.batchSize)
	results := make([]batchResult, len(batches))

	// 任一批次失败后取消其余批次
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wp := workerpool.New(p.maxWorkers)
	var failOnce sync.Once

	for i, batch := range batches {
		i, batch := i, batch
		wp.Submit(func() {
			if ctx.Err() != nil {
				results[i] = batchResult{err: ctx.Err()}
				return
			}

			vectors, err := p.client.EmbedBatch(ctx, batch)
			if err == nil && len(vectors) != len(batch) {
				err = NewEmbeddingError(ErrCodeBadResponse, ErrMsgBadResponse)
			}
			if err != nil {
				failOnce.Do(cancel)
			}
			results[i] = batchResult{vectors: vectors, err: err}
		})
	}
	wp.StopWait()

	// 返回第一个真实的失败原因，而不是因取消产生的错误
	var firstErr error
	for i, r := range results {
		if r.err == nil {
			continue
		}
		wrapped := fmt.Errorf("batch %d failed: %w", i, r.err)
		if firstErr == nil {
			firstErr = wrapped
		}
		if CodeOf(r.err) != 0 {
			return nil, wrapped
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	vectors := make([][]float32, 0, len(texts))
	for _, r := range results {
		vectors = append(vectors, r.vectors...)
	}
	return vectors, nil
}

// splitIntoBatches 将文本切分为批次
func splitIntoBatches(texts []string, batchSize int) [][]string {
	var batches [][]string
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[start:end])
	}
	return batches
}
