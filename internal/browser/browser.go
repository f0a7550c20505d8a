package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/nao1215/protectmyart/internal/messaging"
	"github.com/nao1215/protectmyart/internal/model"
	"github.com/nao1215/protectmyart/internal/observer"
	"github.com/nao1215/protectmyart/internal/page"
	"github.com/nao1215/protectmyart/internal/stream"
)

var (
	// ErrTabNotFound is returned for unknown or closed tabs.
	ErrTabNotFound = errors.New("tab not found")

	// ErrWindowNotFound is returned for unknown windows.
	ErrWindowNotFound = errors.New("window not found")

	// ErrNoFocusedTab is returned when no window has an active tab.
	ErrNoFocusedTab = errors.New("no focused tab")

	// ErrShutdown is returned after Shutdown.
	ErrShutdown = errors.New("browser is shut down")
)

// LoadStatus is the load state of a tab.
type LoadStatus int

const (
	// StatusLoading means navigation started and the page is not ready.
	StatusLoading LoadStatus = iota

	// StatusComplete means the page finished loading.
	StatusComplete
)

// String returns the status name.
func (s LoadStatus) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// WindowID identifies a browser window.
type WindowID int

// Tab is a snapshot of one browsing context.
type Tab struct {
	ID       model.ContextID `json:"id"`
	WindowID WindowID        `json:"window_id"`
	URL      string          `json:"url"`
	Status   LoadStatus      `json:"status"`
	// Active is true for the active tab of its window.
	Active bool `json:"active"`
	// LoadError is the error of the last load, if it failed.
	LoadError string `json:"load_error,omitempty"`
}

// Hooks receives context lifecycle events. The store implements it.
type Hooks interface {
	OnContextNavigationStart(ctx context.Context, id model.ContextID, url string)
	OnContextClosed(ctx context.Context, id model.ContextID)
	OnContextActivated(ctx context.Context, id model.ContextID)
}

type window struct {
	id     WindowID
	tabs   []model.ContextID
	active model.ContextID
}

// tab is the live state of one context.
type tab struct {
	id       model.ContextID
	window   WindowID
	url      string
	status   LoadStatus
	loadErr  error
	doc      *page.Document
	loadSeq  uint64
	observer *runningObserver
}

type runningObserver struct {
	box    *messaging.Mailbox
	cancel context.CancelFunc
	done   chan struct{}
}

// Browser owns windows and tabs.
type Browser struct {
	mu       sync.Mutex
	windows  map[WindowID]*window
	tabs     map[model.ContextID]*tab
	focused  WindowID
	nextTab  model.ContextID
	nextWin  WindowID
	shutdown bool

	router       *messaging.Router
	hooks        Hooks
	reporter     observer.Reporter
	notifier     observer.ActivationNotifier
	loader       Loader
	restricted   []string
	observerOpts []observer.Option
	logger       *slog.Logger

	loaded *stream.Broadcaster[model.ContextID]
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Browser.
type Option func(*Browser)

// WithLogger sets a custom logger for the browser.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Browser) {
		b.logger = logger
	}
}

// WithLoader sets the page loader.
func WithLoader(l Loader) Option {
	return func(b *Browser) {
		b.loader = l
	}
}

// WithRestrictedPrefixes sets the URL prefixes that never get an observer.
func WithRestrictedPrefixes(prefixes []string) Option {
	return func(b *Browser) {
		b.restricted = prefixes
	}
}

// WithObserverOptions sets options applied to every injected observer.
func WithObserverOptions(opts ...observer.Option) Option {
	return func(b *Browser) {
		b.observerOpts = append(b.observerOpts, opts...)
	}
}

// New creates a Browser. Observers it injects register their mailboxes
// with router, report to reporter and announce activation on notifier.
func New(router *messaging.Router, hooks Hooks, reporter observer.Reporter, notifier observer.ActivationNotifier, opts ...Option) *Browser {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Browser{
		windows:  make(map[WindowID]*window),
		tabs:     make(map[model.ContextID]*tab),
		router:   router,
		hooks:    hooks,
		reporter: reporter,
		notifier: notifier,
		loader:   StaticLoader{},
		loaded:   stream.NewBroadcaster[model.ContextID](),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// OpenWindow creates a new window and focuses it.
func (b *Browser) OpenWindow() (WindowID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdown {
		return 0, ErrShutdown
	}
	b.nextWin++
	w := &window{id: b.nextWin}
	b.windows[w.id] = w
	b.focused = w.id
	return w.id, nil
}

// FocusWindow focuses an existing window and activates its active tab.
func (b *Browser) FocusWindow(ctx context.Context, id WindowID) error {
	b.mu.Lock()
	w, ok := b.windows[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrWindowNotFound, id)
	}
	b.focused = id
	active := w.active
	b.mu.Unlock()

	if active.Valid() {
		b.hooks.OnContextActivated(ctx, active)
	}
	return nil
}

// Open creates a tab in window, makes it the active tab and navigates it
// to url. Loading continues in the background.
func (b *Browser) Open(ctx context.Context, win WindowID, url string) (model.ContextID, error) {
	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		return model.NoContext, ErrShutdown
	}
	w, ok := b.windows[win]
	if !ok {
		b.mu.Unlock()
		return model.NoContext, fmt.Errorf("%w: %d", ErrWindowNotFound, win)
	}
	b.nextTab++
	t := &tab{id: b.nextTab, window: win, status: StatusComplete}
	b.tabs[t.id] = t
	w.tabs = append(w.tabs, t.id)
	w.active = t.id
	b.mu.Unlock()

	b.hooks.OnContextActivated(ctx, t.id)
	if err := b.Navigate(ctx, t.id, url); err != nil {
		return t.id, err
	}
	return t.id, nil
}

// Navigate points tab id at url. The previous page's observer is torn down
// before the store hears about the navigation, so no report from the old
// page can land after the loading record.
func (b *Browser) Navigate(ctx context.Context, id model.ContextID, url string) error {
	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		return ErrShutdown
	}
	t, ok := b.tabs[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrTabNotFound, id)
	}
	old := t.observer
	t.observer = nil
	t.url = url
	t.status = StatusLoading
	t.loadErr = nil
	t.doc = nil
	t.loadSeq++
	seq := t.loadSeq
	b.wg.Add(1)
	b.mu.Unlock()

	b.stopObserver(old)
	b.hooks.OnContextNavigationStart(ctx, id, url)
	b.logger.Debug("navigation started", "context", id, "url", url)

	go func() {
		defer b.wg.Done()
		b.load(id, url, seq)
	}()
	return nil
}

// Reload navigates tab id to its current URL.
func (b *Browser) Reload(ctx context.Context, id model.ContextID) error {
	t, ok := b.Tab(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrTabNotFound, id)
	}
	return b.Navigate(ctx, id, t.URL)
}

// load fetches the page and injects an observer when the navigation is
// still current.
func (b *Browser) load(id model.ContextID, url string, seq uint64) {
	restricted := model.IsRestrictedURL(url, b.restricted)

	var (
		doc *page.Document
		err error
	)
	if restricted {
		doc = page.New(url, nil)
	} else {
		doc, err = b.loader.Load(b.ctx, url)
		if err != nil {
			b.logger.Info("page load failed", "context", id, "url", url, "error", err)
			doc = page.New(url, nil)
		}
	}

	b.mu.Lock()
	t, ok := b.tabs[id]
	if !ok || t.loadSeq != seq || b.shutdown {
		b.mu.Unlock()
		return
	}
	t.doc = doc
	t.loadErr = err
	t.status = StatusComplete
	if !restricted {
		t.observer = b.startObserverLocked(id, doc)
	}
	b.mu.Unlock()

	b.logger.Debug("page loaded", "context", id, "url", url, "restricted", restricted)
	b.loaded.Publish(id)
}

// startObserverLocked registers a mailbox and runs a new observer. The
// mailbox is registered before the goroutine starts so probes are queued.
func (b *Browser) startObserverLocked(id model.ContextID, doc *page.Document) *runningObserver {
	box := b.router.Register(id)
	ctx, cancel := context.WithCancel(b.ctx)
	ro := &runningObserver{box: box, cancel: cancel, done: make(chan struct{})}

	obs := observer.New(id, doc, box, b.reporter, b.notifier, append(b.observerOpts, observer.WithLogger(b.logger))...)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(ro.done)
		if err := obs.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Info("observer stopped", "context", id, "error", err)
		}
	}()
	return ro
}

// stopObserver tears ro down and waits for it to exit.
func (b *Browser) stopObserver(ro *runningObserver) {
	if ro == nil {
		return
	}
	b.router.Unregister(ro.box)
	ro.cancel()
	<-ro.done
}

// Activate makes tab id the active tab of its window and focuses the window.
func (b *Browser) Activate(ctx context.Context, id model.ContextID) error {
	b.mu.Lock()
	t, ok := b.tabs[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrTabNotFound, id)
	}
	b.windows[t.window].active = id
	b.focused = t.window
	b.mu.Unlock()

	b.hooks.OnContextActivated(ctx, id)
	return nil
}

// Close closes tab id. When it was the active tab, the last remaining tab
// of the window becomes active.
func (b *Browser) Close(ctx context.Context, id model.ContextID) error {
	b.mu.Lock()
	t, ok := b.tabs[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrTabNotFound, id)
	}
	delete(b.tabs, id)
	w := b.windows[t.window]
	for i, tid := range w.tabs {
		if tid == id {
			w.tabs = append(w.tabs[:i], w.tabs[i+1:]...)
			break
		}
	}
	var next model.ContextID
	if w.active == id {
		w.active = model.NoContext
		if n := len(w.tabs); n > 0 {
			w.active = w.tabs[n-1]
			next = w.active
		}
	}
	ro := t.observer
	t.observer = nil
	b.mu.Unlock()

	b.stopObserver(ro)
	b.hooks.OnContextClosed(ctx, id)
	b.logger.Debug("tab closed", "context", id)
	if next.Valid() {
		b.hooks.OnContextActivated(ctx, next)
	}
	return nil
}

// Focused returns the active tab of the focused window.
func (b *Browser) Focused(ctx context.Context) (Tab, error) {
	if err := ctx.Err(); err != nil {
		return Tab{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	w, ok := b.windows[b.focused]
	if !ok || !w.active.Valid() {
		return Tab{}, ErrNoFocusedTab
	}
	t, ok := b.tabs[w.active]
	if !ok {
		return Tab{}, ErrNoFocusedTab
	}
	return b.snapshotLocked(t), nil
}

// Tab returns a snapshot of tab id.
func (b *Browser) Tab(id model.ContextID) (Tab, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[id]
	if !ok {
		return Tab{}, false
	}
	return b.snapshotLocked(t), true
}

// Tabs returns snapshots of all tabs ordered by id.
func (b *Browser) Tabs() []Tab {
	b.mu.Lock()
	out := make([]Tab, 0, len(b.tabs))
	for _, t := range b.tabs {
		out = append(out, b.snapshotLocked(t))
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Document returns the loaded document of tab id.
func (b *Browser) Document(id model.ContextID) (*page.Document, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[id]
	if !ok || t.doc == nil {
		return nil, false
	}
	return t.doc, true
}

// SubscribeLoaded returns a channel that receives the id of every tab that
// finishes loading.
func (b *Browser) SubscribeLoaded(buffer int) (<-chan model.ContextID, func()) {
	return b.loaded.Subscribe(buffer)
}

// WaitLoaded blocks until tab id finishes loading or ctx ends.
func (b *Browser) WaitLoaded(ctx context.Context, id model.ContextID) (Tab, error) {
	loaded, cancel := b.SubscribeLoaded(8)
	defer cancel()

	for {
		t, ok := b.Tab(id)
		if !ok {
			return Tab{}, fmt.Errorf("%w: %d", ErrTabNotFound, id)
		}
		if t.Status == StatusComplete {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return t, ctx.Err()
		case _, ok := <-loaded:
			if !ok {
				return t, ErrShutdown
			}
		}
	}
}

// Shutdown closes every tab without firing store hooks and stops all
// background work.
func (b *Browser) Shutdown() {
	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		return
	}
	b.shutdown = true
	var running []*runningObserver
	for _, t := range b.tabs {
		if t.observer != nil {
			running = append(running, t.observer)
			t.observer = nil
		}
	}
	b.mu.Unlock()

	for _, ro := range running {
		b.stopObserver(ro)
	}
	b.cancel()
	b.wg.Wait()
	b.loaded.Close()
}

func (b *Browser) snapshotLocked(t *tab) Tab {
	s := Tab{
		ID:       t.id,
		WindowID: t.window,
		URL:      t.url,
		Status:   t.status,
		Active:   b.windows[t.window].active == t.id,
	}
	if t.loadErr != nil {
		s.LoadError = t.loadErr.Error()
	}
	return s
}
