package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/protectmyart/internal/badge"
	"github.com/nao1215/protectmyart/internal/browser"
	"github.com/nao1215/protectmyart/internal/config"
	"github.com/nao1215/protectmyart/internal/messaging"
	"github.com/nao1215/protectmyart/internal/model"
	"github.com/nao1215/protectmyart/internal/observer"
	"github.com/nao1215/protectmyart/internal/store"
	"github.com/nao1215/protectmyart/internal/stream"
	"github.com/nao1215/protectmyart/internal/viewer"
)

// ResetColdStart is the reset reason logged when a session starts.
const ResetColdStart = "cold start"

// LogKey is the log attribute that carries the session id. It matches the
// id saved with each inspection, so log lines can be tied to history
// entries.
const LogKey = "run"

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("session already started")

// Session owns every long-lived component of one browser session.
type Session struct {
	id     string
	cfg    *config.Config
	logger *slog.Logger

	router      *messaging.Router
	activations *stream.Broadcaster[model.ContextID]
	badges      *badge.Recorder
	store       *store.Store
	browser     *browser.Browser

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	closed  bool
}

type options struct {
	logger    *slog.Logger
	loader    browser.Loader
	renderers []badge.Renderer
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLoader sets how the browser loads pages.
func WithLoader(l browser.Loader) Option {
	return func(o *options) {
		o.loader = l
	}
}

// WithRenderer adds a badge renderer next to the built-in log renderer
// and recorder.
func WithRenderer(r badge.Renderer) Option {
	return func(o *options) {
		o.renderers = append(o.renderers, r)
	}
}

// New wires a session from cfg. Timeouts, retries and the restricted
// prefix list all come from cfg. The session does nothing in the
// background until Start is called.
func New(cfg *config.Config, opts ...Option) *Session {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	id := uuid.NewString()
	o.logger = o.logger.With(LogKey, id)

	s := &Session{
		id:          id,
		cfg:         cfg,
		logger:      o.logger,
		router:      messaging.NewRouter(messaging.WithRouterLogger(o.logger)),
		activations: stream.NewBroadcaster[model.ContextID](),
		badges:      badge.NewRecorder(),
	}

	renderers := badge.Multi{badge.NewLogRenderer(o.logger), s.badges}
	renderers = append(renderers, o.renderers...)

	s.store = store.New(s.router,
		store.WithLogger(o.logger),
		store.WithRenderer(renderers),
		store.WithScanTimeout(cfg.ScanRequestTimeout),
		store.WithStaleAfter(cfg.StaleAfter),
		store.WithMaxAge(cfg.MaxRecordAge),
		store.WithSweepInterval(cfg.SweepInterval),
	)

	browserOpts := []browser.Option{
		browser.WithLogger(o.logger),
		browser.WithRestrictedPrefixes(cfg.RestrictedPrefixes),
		browser.WithObserverOptions(
			observer.WithLogger(o.logger),
			observer.WithInitialDelay(cfg.InitialScanDelay),
			observer.WithDebounce(cfg.MutationDebounce),
		),
	}
	if o.loader != nil {
		browserOpts = append(browserOpts, browser.WithLoader(o.loader))
	}
	s.browser = browser.New(s.router, s.store, s.store, s.activations, browserOpts...)
	return s
}

// Start performs the cold start: the record table is wiped and the sweeper
// begins. Background work stops when ctx is cancelled or Close is called.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	s.store.Reset(ResetColdStart)

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.store.RunSweeper(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	s.cancel = cancel
	s.group = g

	s.logger.Debug("session started",
		"scan_timeout", s.cfg.ScanRequestTimeout,
		"sweep_interval", s.cfg.SweepInterval,
	)
	return nil
}

// Reset clears the record table and every rendered badge, as on
// install or update. Running observers are left alone.
func (s *Session) Reset(reason string) {
	for _, rec := range s.store.Records() {
		s.badges.Forget(rec.ContextID)
	}
	s.store.Reset(reason)
}

// ID returns the random identifier of the session. Inspections saved to
// the history carry it, so results of one run can be told apart.
func (s *Session) ID() string {
	return s.id
}

// Browser returns the browser host.
func (s *Session) Browser() *browser.Browser {
	return s.browser
}

// Store returns the status store.
func (s *Session) Store() *store.Store {
	return s.store
}

// Router returns the mailbox router.
func (s *Session) Router() *messaging.Router {
	return s.router
}

// Badges returns the badge recorder.
func (s *Session) Badges() *badge.Recorder {
	return s.badges
}

// Activations returns the activation bus. Each value is the id of a
// context whose observer completed its initial scan.
func (s *Session) Activations() *stream.Broadcaster[model.ContextID] {
	return s.activations
}

// NewViewer creates a viewer for one inspection. opts are applied after
// the configured defaults.
func (s *Session) NewViewer(opts ...viewer.Option) *viewer.Viewer {
	base := []viewer.Option{
		viewer.WithLogger(s.logger),
		viewer.WithRestrictedPrefixes(s.cfg.RestrictedPrefixes),
		viewer.WithTabQueryTimeout(s.cfg.TabQueryTimeout),
		viewer.WithLoadingWait(s.cfg.LoadingTabWait),
		viewer.WithActivationWait(s.cfg.ActivationWait),
		viewer.WithProbeTimeout(s.cfg.ScanRequestTimeout),
		viewer.WithUnavailableRetries(s.cfg.UnavailableRetries, s.cfg.UnavailableRetryDelay),
	}
	return viewer.New(s.browser, s.store, s.router, s.activations, append(base, opts...)...)
}

// Close shuts the browser down, stops the sweeper and discards every
// record. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, g := s.cancel, s.group
	s.mu.Unlock()

	s.browser.Shutdown()
	s.router.CloseAll()
	s.store.Close()
	s.activations.Close()

	if cancel == nil {
		return nil
	}
	cancel()
	return g.Wait()
}
