package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"

	"github.com/nao1215/protectmyart/internal/config"
	"github.com/nao1215/protectmyart/internal/page"
)

const (
	// maxRedirects bounds redirect chains.
	maxRedirects = 10

	// DefaultRetryDelay is the first pause between attempts.
	DefaultRetryDelay = 500 * time.Millisecond
)

// Response is a downloaded page.
type Response struct {
	// URL is the final URL after redirects.
	URL string

	// StatusCode is the HTTP status code.
	StatusCode int

	// ContentType is the media type without parameters.
	ContentType string

	// Body holds at most the configured number of bytes.
	Body []byte

	// Truncated is true when the body was cut at the size limit.
	Truncated bool
}

// Client downloads pages.
type Client struct {
	http        *http.Client
	proxyAddr   string
	timeout     time.Duration
	userAgent   string
	maxBodySize int64
	sites       *config.File
	logger      *slog.Logger

	retries    int
	retryDelay time.Duration

	rateLimit float64
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithProxy routes every request through the SOCKS5 proxy at addr.
func WithProxy(addr string) Option {
	return func(c *Client) {
		c.proxyAddr = addr
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithUserAgent sets the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMaxBodySize sets how many body bytes are read. Zero uses the default.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		c.maxBodySize = n
	}
}

// WithSites sets per-site cookies, headers and User-Agent overrides.
func WithSites(f *config.File) Option {
	return func(c *Client) {
		c.sites = f
	}
}

// WithRetries retries transient failures up to n times with exponential
// backoff starting at delay. Network errors, 429 and 5xx responses are
// transient.
func WithRetries(n int, delay time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		c.retryDelay = delay
	}
}

// WithRateLimit caps requests per second to each host. Zero disables
// the limit.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		c.rateLimit = perSecond
	}
}

// NewClient creates a Client. It fails only for a malformed proxy address;
// the proxy itself is not contacted.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		timeout:     config.DefaultFetchTimeout,
		userAgent:   config.DefaultUserAgent,
		maxBodySize: config.DefaultMaxBodySize,
		retryDelay:  DefaultRetryDelay,
		limiters:    make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.maxBodySize <= 0 {
		c.maxBodySize = config.DefaultMaxBodySize
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}
	if c.proxyAddr != "" {
		if !isValidProxyAddress(c.proxyAddr) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, c.proxyAddr)
		}
		dialer, err := proxy.SOCKS5("tcp", c.proxyAddr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.DialContext = contextDialer(dialer)
	} else {
		transport.DialContext = (&net.Dialer{Timeout: c.timeout}).DialContext
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options
	c.http = &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return c, nil
}

// contextDialer adapts a proxy.Dialer to http.Transport.DialContext.
func contextDialer(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type result struct {
			conn net.Conn
			err  error
		}
		ch := make(chan result, 1)
		go func() {
			conn, err := d.Dial(network, addr)
			ch <- result{conn, err}
		}()
		select {
		case r := <-ch:
			return r.conn, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// isValidProxyAddress reports whether address is "host:port" with a port
// in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// ProxyAddress returns the configured SOCKS5 proxy, or "".
func (c *Client) ProxyAddress() string {
	return c.proxyAddr
}

// Fetch downloads rawURL. Only http and https are supported. A non-2xx
// response is returned together with ErrHTTPStatus.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}

	var (
		out     *Response
		attempt int
	)
	operation := func() error {
		attempt++
		if err := c.wait(ctx, u.Host); err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.fetchOnce(ctx, rawURL, u.Hostname())
		out = resp
		if err != nil && !retryable(ctx, resp, err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		c.logger.Debug("retrying page fetch",
			"url", rawURL,
			"attempt", attempt,
			"wait", next,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(operation, c.retryPolicy(ctx), notify); err != nil {
		return out, err
	}
	return out, nil
}

// retryPolicy returns the backoff for one Fetch call. WithMaxRetries treats
// zero as unlimited, so no retries is a StopBackOff.
func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	if c.retries <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.retries)), ctx)
}

// wait blocks until the host's limiter admits another request.
func (c *Client) wait(ctx context.Context, host string) error {
	if c.rateLimit <= 0 {
		return nil
	}
	c.mu.Lock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.rateLimit), 1)
		c.limiters[host] = l
	}
	c.mu.Unlock()
	return l.Wait(ctx)
}

// retryable reports whether a failed attempt may succeed when repeated.
func retryable(ctx context.Context, resp *Response, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrHTTPStatus) {
		return resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500)
	}
	return true
}

func (c *Client) fetchOnce(ctx context.Context, rawURL, host string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.decorate(req, host)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", rawURL, err)
	}

	out := &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: mediaType(resp.Header.Get("Content-Type")),
	}
	if int64(len(body)) > c.maxBodySize {
		body = body[:c.maxBodySize]
		out.Truncated = true
	}
	out.Body = body

	c.logger.Debug("page fetched",
		"url", rawURL,
		"status", resp.StatusCode,
		"bytes", len(body),
		"truncated", out.Truncated,
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}
	return out, nil
}

// Load downloads rawURL and parses it into a Document addressed by rawURL.
func (c *Client) Load(ctx context.Context, rawURL string) (*page.Document, error) {
	resp, err := c.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if !isHTML(resp.ContentType) {
		return nil, fmt.Errorf("%w: %s", ErrNotHTML, resp.ContentType)
	}
	return page.Parse(rawURL, bytes.NewReader(resp.Body))
}

// decorate adds the User-Agent and the site's cookie and headers.
func (c *Client) decorate(req *http.Request, host string) {
	ua := c.userAgent
	if c.sites != nil {
		sc := c.sites.GetSiteConfig(host)
		if sc.UserAgent != "" {
			ua = sc.UserAgent
		}
		if sc.Cookie != "" {
			req.Header.Set("Cookie", sc.Cookie)
		}
		for k, v := range sc.Headers {
			req.Header.Set(k, v)
		}
	}
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.1")
	}
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mt
}

// isHTML accepts HTML media types and a missing Content-Type.
func isHTML(mt string) bool {
	switch mt {
	case "", "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}
