package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/protectmyart/internal/model"
)

func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []BatchOption
		want int
	}{
		{name: "default concurrency", want: DefaultConcurrency},
		{name: "custom concurrency", opts: []BatchOption{WithConcurrency(5)}, want: 5},
		{name: "non-positive concurrency keeps default", opts: []BatchOption{WithConcurrency(0)}, want: DefaultConcurrency},
		{name: "nil logger falls back to default", opts: []BatchOption{WithBatchLogger(nil)}, want: DefaultConcurrency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bp := NewBatchProcessor(func() *Pipeline { return New() }, tt.opts...)
			if bp.concurrency != tt.want {
				t.Errorf("expected concurrency %d, got %d", tt.want, bp.concurrency)
			}
			if bp.logger == nil {
				t.Error("expected non-nil logger")
			}
		})
	}
}

func TestBatchProcessorProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("maintains result order", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Pipeline {
			p := New()
			p.AddStep(&mockStep{name: "noop"})
			return p
		})

		urls := []string{"https://a.example/", "https://b.example/", "https://c.example/"}
		results, err := bp.ProcessBatch(context.Background(), urls)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != len(urls) {
			t.Fatalf("expected %d results, got %d", len(urls), len(results))
		}
		for i, result := range results {
			if result.URL != urls[i] {
				t.Errorf("result[%d]: got %q, expected %q", i, result.URL, urls[i])
			}
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var current, peak atomic.Int32
		bp := NewBatchProcessor(func() *Pipeline {
			p := New()
			p.AddStep(&mockStep{
				name: "concurrent-counter",
				doFunc: func(_ context.Context, _ *model.InspectionReport) error {
					n := current.Add(1)
					for {
						old := peak.Load()
						if n <= old || peak.CompareAndSwap(old, n) {
							break
						}
					}
					time.Sleep(20 * time.Millisecond)
					current.Add(-1)
					return nil
				},
			})
			return p
		}, WithConcurrency(2))

		urls := make([]string, 8)
		for i := range urls {
			urls[i] = testURL
		}
		if _, err := bp.ProcessBatch(context.Background(), urls); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if peak.Load() > 2 {
			t.Errorf("max concurrent was %d, expected <= 2", peak.Load())
		}
	})

	t.Run("continues after individual failure", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func() *Pipeline {
			p := New()
			p.AddStep(&mockStep{
				name: "sometimes-fails",
				doFunc: func(_ context.Context, report *model.InspectionReport) error {
					if report.URL == "https://fail.example/" {
						return errors.New("simulated failure")
					}
					return nil
				},
			})
			return p
		})

		results, err := bp.ProcessBatch(context.Background(), []string{
			"https://a.example/", "https://fail.example/", "https://c.example/",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results[0].Error != nil || results[2].Error != nil {
			t.Error("expected the other inspections to succeed")
		}
		if results[1].Error == nil {
			t.Error("expected error in second result")
		}
	})

	t.Run("handles context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		var started atomic.Int32

		bp := NewBatchProcessor(func() *Pipeline {
			p := New()
			p.AddStep(&mockStep{
				name: "slow-step",
				doFunc: func(ctx context.Context, _ *model.InspectionReport) error {
					started.Add(1)
					<-ctx.Done()
					return ctx.Err()
				},
			})
			return p
		}, WithConcurrency(2))

		urls := make([]string, 10)
		for i := range urls {
			urls[i] = testURL
		}
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		_, err := bp.ProcessBatch(ctx, urls)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if started.Load() >= int32(len(urls)) {
			t.Error("expected some inspections to not start due to cancellation")
		}
	})
}

func TestBatchProcessorProcessBatchWithCallback(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	received := make(map[int]string)

	bp := NewBatchProcessor(func() *Pipeline {
		p := New()
		p.AddStep(&mockStep{name: "noop"})
		return p
	})

	urls := []string{"https://a.example/", "https://b.example/", "https://c.example/"}
	err := bp.ProcessBatchWithCallback(context.Background(), urls, func(report *model.InspectionReport, index int) {
		mu.Lock()
		defer mu.Unlock()
		received[index] = report.URL
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, url := range urls {
		if received[i] != url {
			t.Errorf("callback %d: got %q, expected %q", i, received[i], url)
		}
	}
}
