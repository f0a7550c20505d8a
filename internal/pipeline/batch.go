package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/protectmyart/internal/model"
)

// DefaultConcurrency is the number of concurrent inspections when none is set.
const DefaultConcurrency = 4

// BatchProcessor inspects many URLs concurrently. It uses errgroup to
// manage goroutines and respect the concurrency limit.
type BatchProcessor struct {
	// pipelineFactory creates a fresh pipeline for each URL.
	pipelineFactory func() *Pipeline

	concurrency int
	logger      *slog.Logger

	results []*model.InspectionReport
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent inspections.
// Non-positive values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor. pipelineFactory is called
// once per URL so no pipeline state leaks between inspections.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch inspects every URL and returns the reports in input order.
// A failed inspection does not stop the others; its error is kept in its
// report. The error return is only set when ctx was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, urls []string) ([]*model.InspectionReport, error) {
	bp.logger.Info("starting batch processing",
		"total_urls", len(urls),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	bp.mu.Lock()
	bp.results = make([]*model.InspectionReport, len(urls))
	bp.mu.Unlock()

	err := bp.process(ctx, urls, func(report *model.InspectionReport, index int) {
		bp.mu.Lock()
		bp.results[index] = report
		bp.mu.Unlock()
	})

	bp.logger.Info("batch processing complete",
		"total_urls", len(urls),
		"elapsed", time.Since(startTime),
	)

	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.results, err
}

// ProcessBatchWithCallback inspects every URL and calls callback as each
// inspection completes. callback is called from worker goroutines.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	urls []string,
	callback func(report *model.InspectionReport, index int),
) error {
	return bp.process(ctx, urls, callback)
}

func (bp *BatchProcessor) process(
	ctx context.Context,
	urls []string,
	callback func(report *model.InspectionReport, index int),
) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, url := range urls {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("inspecting url",
				"url", url,
				"index", i+1,
				"total", len(urls),
			)

			report := model.NewInspectionReport(url)
			if err := bp.pipelineFactory().Execute(ctx, report); err != nil {
				bp.logger.Warn("inspection failed", "url", url, "error", err)
			} else {
				bp.logger.Info("inspection completed", "url", url, "state", report.State())
			}

			callback(report, i)
			return nil
		})
	}

	return g.Wait()
}
