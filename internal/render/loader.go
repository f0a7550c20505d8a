package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/nao1215/protectmyart/internal/config"
	"github.com/nao1215/protectmyart/internal/page"
)

var (
	// ErrUnsupportedScheme is returned for URLs that are not http or https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrClosed is returned by Load after Close.
	ErrClosed = errors.New("renderer closed")
)

// Loader renders pages in a shared headless Chrome.
type Loader struct {
	execPath  string
	remoteURL string
	proxyAddr string
	userAgent string
	timeout   time.Duration
	settle    time.Duration
	logger    *slog.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	startOnce sync.Once
	startErr  error

	mu     sync.Mutex
	closed bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithExecPath sets the Chrome executable.
func WithExecPath(path string) Option {
	return func(l *Loader) {
		l.execPath = path
	}
}

// WithRemoteURL connects to a running Chrome at the DevTools websocket URL
// instead of starting one.
func WithRemoteURL(u string) Option {
	return func(l *Loader) {
		l.remoteURL = u
	}
}

// WithProxy routes Chrome's traffic through the SOCKS5 proxy at addr.
func WithProxy(addr string) Option {
	return func(l *Loader) {
		l.proxyAddr = addr
	}
}

// WithUserAgent overrides Chrome's User-Agent.
func WithUserAgent(ua string) Option {
	return func(l *Loader) {
		l.userAgent = ua
	}
}

// WithTimeout bounds one load, from navigation to DOM capture.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		l.timeout = d
	}
}

// WithSettle sets the pause between load and DOM capture.
func WithSettle(d time.Duration) Option {
	return func(l *Loader) {
		l.settle = d
	}
}

// New creates a Loader. Chrome is started on the first Load.
func New(opts ...Option) *Loader {
	l := &Loader{
		timeout: config.DefaultFetchTimeout,
		settle:  config.DefaultRenderSettle,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}

	var allocCtx context.Context
	if l.remoteURL != "" {
		allocCtx, l.allocCancel = chromedp.NewRemoteAllocator(context.Background(), l.remoteURL)
	} else {
		allocCtx, l.allocCancel = chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	}
	l.browserCtx, l.browserCancel = chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			l.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	return l
}

func (l *Loader) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.DisableGPU)
	// Chrome refuses to start as root with the sandbox enabled.
	if os.Geteuid() == 0 {
		opts = append(opts, chromedp.NoSandbox)
	}
	if l.execPath != "" {
		opts = append(opts, chromedp.ExecPath(l.execPath))
	}
	if l.proxyAddr != "" {
		opts = append(opts, chromedp.ProxyServer("socks5://"+l.proxyAddr))
	}
	if l.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.userAgent))
	}
	return opts
}

// start launches Chrome, or attaches to the remote one, exactly once.
func (l *Loader) start() error {
	l.startOnce.Do(func() {
		if err := chromedp.Run(l.browserCtx); err != nil {
			l.startErr = fmt.Errorf("failed to start chrome: %w", err)
			return
		}
		l.logger.Debug("chrome started", "remote", l.remoteURL != "")
	})
	return l.startErr
}

// Load opens rawURL in a new tab, waits for the document to be ready and
// for the settle pause, and parses the rendered DOM into a Document.
func (l *Loader) Load(ctx context.Context, rawURL string) (*page.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}

	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if err := l.start(); err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(l.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, l.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var source string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(l.settle),
		chromedp.OuterHTML("html", &source, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to render %s: %w", rawURL, err)
	}

	l.logger.Debug("page rendered", "url", rawURL, "bytes", len(source))
	return page.ParseString(rawURL, source)
}

// Close shuts Chrome down. It is safe to call more than once.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.browserCancel()
	l.allocCancel()
	return nil
}
