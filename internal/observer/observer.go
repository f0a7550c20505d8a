package observer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nao1215/protectmyart/internal/messaging"
	"github.com/nao1215/protectmyart/internal/model"
	"github.com/nao1215/protectmyart/internal/page"
	"github.com/nao1215/protectmyart/internal/stream"
)

const (
	// DefaultInitialDelay is the settle delay before the initial scan.
	DefaultInitialDelay = 100 * time.Millisecond

	// DefaultDebounce is the quiet period that coalesces mutation bursts.
	DefaultDebounce = 500 * time.Millisecond

	// mutationBuffer is the subscription buffer for document mutations.
	mutationBuffer = 16
)

// Reporter receives unsolicited scan reports.
type Reporter interface {
	ReportScan(ctx context.Context, id model.ContextID, result model.ScanResult, isInitial bool) error
}

// ActivationNotifier is told when an observer's initial report was
// acknowledged.
type ActivationNotifier interface {
	Publish(id model.ContextID) int
}

// Observer scans one page and keeps the store informed about it.
type Observer struct {
	id       model.ContextID
	doc      *page.Document
	mailbox  *messaging.Mailbox
	reporter Reporter
	notifier ActivationNotifier

	initialDelay time.Duration
	debounce     time.Duration
	now          func() time.Time
	logger       *slog.Logger

	active atomic.Bool
}

// Option configures an Observer.
type Option func(*Observer)

// WithLogger sets a custom logger for the observer.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Observer) {
		o.logger = logger
	}
}

// WithInitialDelay sets the settle delay before the initial scan.
func WithInitialDelay(d time.Duration) Option {
	return func(o *Observer) {
		o.initialDelay = d
	}
}

// WithDebounce sets the mutation debounce window.
func WithDebounce(d time.Duration) Option {
	return func(o *Observer) {
		o.debounce = d
	}
}

// WithClock sets the function used to timestamp scans.
func WithClock(now func() time.Time) Option {
	return func(o *Observer) {
		o.now = now
	}
}

// New creates an Observer for the document loaded in context id. The
// mailbox must already be registered with the router so that probes sent
// before Run starts are queued rather than lost.
func New(id model.ContextID, doc *page.Document, mailbox *messaging.Mailbox, reporter Reporter, notifier ActivationNotifier, opts ...Option) *Observer {
	o := &Observer{
		id:           id,
		doc:          doc,
		mailbox:      mailbox,
		reporter:     reporter,
		notifier:     notifier,
		initialDelay: DefaultInitialDelay,
		debounce:     DefaultDebounce,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("context", id)
	return o
}

// ContextID returns the context the observer belongs to.
func (o *Observer) ContextID() model.ContextID {
	return o.id
}

// Active reports whether the initial scan report was acknowledged.
func (o *Observer) Active() bool {
	return o.active.Load()
}

// Scan reads the document's robots meta elements and returns the result.
func (o *Observer) Scan() model.ScanResult {
	flags := o.doc.Scan()
	return model.ScanResult{
		GeneralOptOut: flags.NoAI,
		ImageOptOut:   flags.NoImageAI,
		SourceURL:     o.doc.URL(),
		CapturedAt:    o.now(),
	}
}

// Run serves the observer until ctx is cancelled or its mailbox is closed.
// Requests are answered from the first moment, before the initial scan and
// before mutation watching produces anything.
func (o *Observer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	initial := time.NewTimer(o.initialDelay)
	defer initial.Stop()

	mutations, unsubscribe := o.doc.Subscribe(mutationBuffer)
	defer unsubscribe()
	rescans := stream.Debounce(ctx, stream.Filter(ctx, mutations, Relevant), o.debounce)

	o.logger.Debug("observer started", "url", o.doc.URL())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.mailbox.Done():
			o.logger.Debug("observer mailbox closed")
			return nil
		case req := <-o.mailbox.Inbox():
			o.handle(ctx, req)
		case <-initial.C:
			o.report(ctx, o.Scan(), true)
		case _, ok := <-rescans:
			if !ok {
				rescans = nil
				continue
			}
			o.logger.Debug("relevant mutation, rescanning")
			o.report(ctx, o.Scan(), false)
		}
	}
}

// handle answers one mailbox request.
func (o *Observer) handle(ctx context.Context, req messaging.Request) {
	switch req.Kind {
	case messaging.KindScanRequest:
		result := o.Scan()
		req.Respond(messaging.Reply{Scan: result})
		o.report(ctx, result, false)
	case messaging.KindLivenessProbe:
		req.Respond(messaging.Reply{Active: o.Active()})
	default:
		o.logger.Debug("ignoring unknown request", "kind", req.Kind)
	}
}

// report sends result to the store. Failures are logged and dropped; the
// store's scan request path is the retry mechanism.
func (o *Observer) report(ctx context.Context, result model.ScanResult, isInitial bool) {
	err := o.reporter.ReportScan(ctx, o.id, result, isInitial)
	if err != nil {
		level := slog.LevelDebug
		if !errors.Is(err, messaging.ErrUnreachable) && !errors.Is(err, context.Canceled) {
			level = slog.LevelInfo
		}
		o.logger.Log(ctx, level, "scan report dropped", "initial", isInitial, "error", err)
		return
	}
	if isInitial && o.active.CompareAndSwap(false, true) {
		if o.notifier != nil {
			o.notifier.Publish(o.id)
		}
		o.logger.Debug("initial scan acknowledged")
	}
}
