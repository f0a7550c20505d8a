package viewer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/protectmyart/internal/browser"
	"github.com/nao1215/protectmyart/internal/messaging"
	"github.com/nao1215/protectmyart/internal/model"
	"github.com/nao1215/protectmyart/internal/stream"
)

// Default timeouts of an inspection.
const (
	DefaultTabQueryTimeout       = 3 * time.Second
	DefaultLoadingWait           = 10 * time.Second
	DefaultActivationWait        = 5 * time.Second
	DefaultProbeTimeout          = 2 * time.Second
	DefaultUnavailableRetries    = 3
	DefaultUnavailableRetryDelay = time.Second
)

// Reasons attached to unavailable displays.
const (
	ReasonNoFocusedContext = "no focused context"
	ReasonRestricted       = "restricted context"
	ReasonNoObserver       = "no observer answered"
)

// ContextQuery resolves browsing contexts.
type ContextQuery interface {
	Focused(ctx context.Context) (browser.Tab, error)
	Tab(id model.ContextID) (browser.Tab, bool)
	SubscribeLoaded(buffer int) (<-chan model.ContextID, func())
}

// StatusSource answers get-status requests.
type StatusSource interface {
	GetStatus(ctx context.Context, id model.ContextID, forceRefresh bool) model.ProtectionRecord
}

// LivenessProber asks an observer whether it completed its initial scan.
type LivenessProber interface {
	ProbeLiveness(ctx context.Context, id model.ContextID) (bool, error)
}

// ActivationSource delivers "activation complete" notifications.
type ActivationSource interface {
	Subscribe(buffer int) (<-chan model.ContextID, func())
}

// Sink receives every display the viewer renders.
type Sink interface {
	Show(d model.Display)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(d model.Display)

// Show calls f.
func (f SinkFunc) Show(d model.Display) {
	f(d)
}

// PendingQuery is the correlation state of one inspection.
type PendingQuery struct {
	ContextID                  model.ContextID
	ForceRefresh               bool
	AwaitingObserverActivation bool
}

// Viewer inspects the focused context.
type Viewer struct {
	contexts    ContextQuery
	store       StatusSource
	prober      LivenessProber
	activations ActivationSource
	sink        Sink
	restricted  []string

	tabQueryTimeout time.Duration
	loadingWait     time.Duration
	activationWait  time.Duration
	probeTimeout    time.Duration
	retries         int
	retryDelay      time.Duration
	logger          *slog.Logger
}

// Option configures a Viewer.
type Option func(*Viewer)

// WithLogger sets a custom logger for the viewer.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Viewer) {
		v.logger = logger
	}
}

// WithSink sets where displays are rendered.
func WithSink(s Sink) Option {
	return func(v *Viewer) {
		v.sink = s
	}
}

// WithRestrictedPrefixes sets the URL prefixes treated as restricted.
func WithRestrictedPrefixes(prefixes []string) Option {
	return func(v *Viewer) {
		v.restricted = prefixes
	}
}

// WithTabQueryTimeout bounds the focused tab lookup.
func WithTabQueryTimeout(d time.Duration) Option {
	return func(v *Viewer) {
		v.tabQueryTimeout = d
	}
}

// WithLoadingWait bounds the wait for a loading tab.
func WithLoadingWait(d time.Duration) Option {
	return func(v *Viewer) {
		v.loadingWait = d
	}
}

// WithActivationWait bounds the wait for observer activation.
func WithActivationWait(d time.Duration) Option {
	return func(v *Viewer) {
		v.activationWait = d
	}
}

// WithProbeTimeout bounds the liveness probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(v *Viewer) {
		v.probeTimeout = d
	}
}

// WithUnavailableRetries sets how often an unavailable status is queried
// again, and the delay between attempts.
func WithUnavailableRetries(n int, delay time.Duration) Option {
	return func(v *Viewer) {
		v.retries = n
		v.retryDelay = delay
	}
}

// New creates a Viewer.
func New(contexts ContextQuery, store StatusSource, prober LivenessProber, activations ActivationSource, opts ...Option) *Viewer {
	v := &Viewer{
		contexts:        contexts,
		store:           store,
		prober:          prober,
		activations:     activations,
		sink:            SinkFunc(func(model.Display) {}),
		tabQueryTimeout: DefaultTabQueryTimeout,
		loadingWait:     DefaultLoadingWait,
		activationWait:  DefaultActivationWait,
		probeTimeout:    DefaultProbeTimeout,
		retries:         DefaultUnavailableRetries,
		retryDelay:      DefaultUnavailableRetryDelay,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	return v
}

// Refresh re-runs the inspection bypassing the store's cached record.
func (v *Viewer) Refresh(ctx context.Context) model.Display {
	return v.Inspect(ctx, true)
}

// Inspect inspects the focused context and returns the final display.
// It never fails; degraded outcomes are unavailable displays.
func (v *Viewer) Inspect(ctx context.Context, forceRefresh bool) model.Display {
	v.sink.Show(model.Display{State: model.DisplayChecking})

	tab, err := messaging.Within(ctx, v.tabQueryTimeout, v.contexts.Focused)
	if err != nil {
		v.logger.Debug("focused context query failed", "error", err)
		return v.finish(model.Display{State: model.DisplayUnavailable, Reason: ReasonNoFocusedContext})
	}

	if tab.Status == browser.StatusLoading {
		tab = v.waitLoaded(ctx, tab)
	}

	if model.IsRestrictedURL(tab.URL, v.restricted) {
		return v.finish(model.Display{
			State:      model.DisplayUnavailable,
			Restricted: true,
			URL:        tab.URL,
			Reason:     ReasonRestricted,
		})
	}
	v.sink.Show(model.Display{State: model.DisplayChecking, URL: tab.URL})

	q := PendingQuery{ContextID: tab.ID, ForceRefresh: forceRefresh}
	v.awaitActivation(ctx, &q)

	rec := v.store.GetStatus(ctx, q.ContextID, q.ForceRefresh)
	for attempt := 0; rec.Lifecycle == model.LifecycleUnavailable && attempt < v.retries; attempt++ {
		v.sink.Show(model.Display{State: model.DisplayChecking, URL: tab.URL})
		v.logger.Debug("status unavailable, retrying", "context", q.ContextID, "attempt", attempt+1)
		if !sleep(ctx, v.retryDelay) {
			break
		}
		rec = v.store.GetStatus(ctx, q.ContextID, q.ForceRefresh)
	}

	d := model.Display{
		State:  model.DisplayStateFor(rec),
		Record: &rec,
		URL:    tab.URL,
	}
	if d.State == model.DisplayUnavailable {
		d.Reason = ReasonNoObserver
	}
	return v.finish(d)
}

// waitLoaded waits for tab to complete loading, then re-resolves it. On
// timeout the inspection proceeds with whatever is known.
func (v *Viewer) waitLoaded(ctx context.Context, tab browser.Tab) browser.Tab {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loaded, unsubscribe := v.contexts.SubscribeLoaded(4)
	defer unsubscribe()

	if cur, ok := v.contexts.Tab(tab.ID); ok && cur.Status == browser.StatusComplete {
		return cur
	}

	mine := stream.Filter(wctx, loaded, func(id model.ContextID) bool { return id == tab.ID })
	if _, err := messaging.Await(wctx, v.loadingWait, mine); err != nil {
		v.logger.Debug("proceeding without load completion", "context", tab.ID, "error", err)
	}

	if cur, ok := v.contexts.Tab(tab.ID); ok {
		return cur
	}
	return tab
}

// awaitActivation probes the observer and, when it has not completed its
// initial scan, waits for its activation notification.
func (v *Viewer) awaitActivation(ctx context.Context, q *PendingQuery) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Subscribe first so an activation racing the probe is not missed.
	activations, unsubscribe := v.activations.Subscribe(4)
	defer unsubscribe()

	active, err := messaging.Within(wctx, v.probeTimeout, func(ctx context.Context) (bool, error) {
		return v.prober.ProbeLiveness(ctx, q.ContextID)
	})
	if err == nil && active {
		return
	}
	if err != nil && !errors.Is(err, messaging.ErrUnreachable) && !errors.Is(err, messaging.ErrTimeout) {
		v.logger.Debug("liveness probe failed", "context", q.ContextID, "error", err)
	}

	q.AwaitingObserverActivation = true
	v.logger.Debug("waiting for observer activation", "context", q.ContextID, "force", q.ForceRefresh)

	mine := stream.Filter(wctx, activations, func(id model.ContextID) bool { return id == q.ContextID })
	if _, err := messaging.Await(wctx, v.activationWait, mine); err != nil {
		v.logger.Debug("proceeding without observer activation", "context", q.ContextID, "error", err)
		return
	}
	q.AwaitingObserverActivation = false
}

func (v *Viewer) finish(d model.Display) model.Display {
	v.sink.Show(d)
	v.logger.Debug("inspection finished", "state", d.State, "url", d.URL)
	return d
}

// sleep waits for d or until ctx ends and reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
