package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/protectmyart/internal/model"
)

// Default configuration values.
const (
	// DefaultTabQueryTimeout bounds the lookup of the focused context.
	DefaultTabQueryTimeout = 3 * time.Second

	// DefaultLoadingTabWait is how long an inspection waits for a loading
	// tab before proceeding anyway.
	DefaultLoadingTabWait = 10 * time.Second

	// DefaultActivationWait is how long an inspection waits for an observer
	// to complete its initial scan.
	DefaultActivationWait = 5 * time.Second

	// DefaultInitialScanDelay is the settle delay between observer start
	// and its initial scan.
	DefaultInitialScanDelay = 100 * time.Millisecond

	// DefaultMutationDebounce is the quiet period that coalesces bursts of
	// relevant DOM mutations into one rescan.
	DefaultMutationDebounce = 500 * time.Millisecond

	// DefaultScanRequestTimeout bounds the store's wait for an observer's
	// direct scan reply and the viewer's liveness probe.
	DefaultScanRequestTimeout = 2 * time.Second

	// DefaultUnavailableRetries is how often an inspection asks again when
	// the store answers unavailable.
	DefaultUnavailableRetries = 3

	// DefaultUnavailableRetryDelay is the pause between those attempts.
	DefaultUnavailableRetryDelay = 1 * time.Second

	// DefaultStaleAfter is the age after which a fresh record stops taking
	// the store's fast path.
	DefaultStaleAfter = 10 * time.Minute

	// DefaultSweepInterval is how often old records are purged.
	DefaultSweepInterval = 1 * time.Hour

	// DefaultMaxRecordAge is the age after which the sweep purges a record.
	DefaultMaxRecordAge = 24 * time.Hour

	// DefaultBatchSize is the number of URLs inspected concurrently.
	DefaultBatchSize = 4

	// DefaultFetchTimeout bounds one page download.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultFetchRetries is how often a transient download failure is
	// retried.
	DefaultFetchRetries = 2

	// DefaultRenderSettle is how long a rendered page may run scripts
	// after load before its DOM is captured.
	DefaultRenderSettle = 500 * time.Millisecond

	// AppName is the application name used for XDG directory paths.
	AppName = "protectmyart"

	// DefaultUserAgent identifies protectmyart in HTTP requests.
	DefaultUserAgent = "protectmyart/1.0 (+https://github.com/nao1215/protectmyart)"

	// DefaultMaxBodySize limits how much of a page is read.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB
)

// Config holds all configuration options for protectmyart.
// It is populated from defaults, the dotfile and CLI flags, in that order,
// and passed down explicitly.
type Config struct {
	// TabQueryTimeout bounds the lookup of the focused context.
	TabQueryTimeout time.Duration

	// LoadingTabWait bounds the wait for a loading tab.
	LoadingTabWait time.Duration

	// ActivationWait bounds the wait for observer activation.
	ActivationWait time.Duration

	// InitialScanDelay is the observer's settle delay.
	InitialScanDelay time.Duration

	// MutationDebounce is the observer's rescan debounce window.
	MutationDebounce time.Duration

	// ScanRequestTimeout bounds scan requests and liveness probes.
	ScanRequestTimeout time.Duration

	// UnavailableRetries is how often an unavailable status is re-queried.
	UnavailableRetries int

	// UnavailableRetryDelay is the pause between re-queries.
	UnavailableRetryDelay time.Duration

	// StaleAfter is the age after which fresh records are read as stale.
	// Zero disables staleness.
	StaleAfter time.Duration

	// SweepInterval is the period of the record sweep.
	SweepInterval time.Duration

	// MaxRecordAge is the age after which the sweep purges a record.
	MaxRecordAge time.Duration

	// RestrictedPrefixes lists URL prefixes of privileged pages that are
	// never scanned.
	RestrictedPrefixes []string

	// Verbose enables debug logging. When false only warnings and errors
	// are logged.
	Verbose bool

	// BatchSize is the number of URLs inspected concurrently.
	BatchSize int

	// Refresh re-inspects every page with the store's cache bypassed.
	Refresh bool

	// ConfigFilePath is the path to the configuration file. If empty,
	// .protectmyart is searched in the current directory and then in the
	// user's home directory.
	ConfigFilePath string

	// SiteConfigs holds per-site settings loaded from the config file.
	SiteConfigs *File

	// JSONReport selects JSON output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown output. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path. Empty means stdout.
	ReportFile string

	// Targets is the list of URLs to inspect.
	Targets []string

	// DBDir is the directory of the inspection history database.
	// Defaults to the XDG data directory.
	DBDir string

	// SaveToDB records inspections in the history database.
	SaveToDB bool

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" form used
	// for page downloads.
	ProxyAddress string

	// FetchTimeout bounds one page download.
	FetchTimeout time.Duration

	// UserAgent is the User-Agent header sent with page requests.
	UserAgent string

	// MaxBodySize is the maximum number of page bytes read.
	MaxBodySize int64

	// FetchRetries is how often a transient download failure is retried.
	FetchRetries int

	// RateLimit caps page requests per second to one host. Zero disables it.
	RateLimit float64

	// Render loads pages in headless Chrome instead of downloading the
	// source, so that tags added by scripts are seen.
	Render bool

	// ChromePath is the Chrome executable used with Render. Empty searches
	// the usual locations.
	ChromePath string

	// RemoteChromeURL is the DevTools websocket URL of an already running
	// Chrome. It takes precedence over ChromePath.
	RemoteChromeURL string

	// RenderSettle is the pause between page load and DOM capture.
	RenderSettle time.Duration
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		TabQueryTimeout:       DefaultTabQueryTimeout,
		LoadingTabWait:        DefaultLoadingTabWait,
		ActivationWait:        DefaultActivationWait,
		InitialScanDelay:      DefaultInitialScanDelay,
		MutationDebounce:      DefaultMutationDebounce,
		ScanRequestTimeout:    DefaultScanRequestTimeout,
		UnavailableRetries:    DefaultUnavailableRetries,
		UnavailableRetryDelay: DefaultUnavailableRetryDelay,
		StaleAfter:            DefaultStaleAfter,
		SweepInterval:         DefaultSweepInterval,
		MaxRecordAge:          DefaultMaxRecordAge,
		RestrictedPrefixes:    append([]string(nil), model.DefaultRestrictedPrefixes...),
		BatchSize:             DefaultBatchSize,
		FetchTimeout:          DefaultFetchTimeout,
		UserAgent:             DefaultUserAgent,
		MaxBodySize:           DefaultMaxBodySize,
		FetchRetries:          DefaultFetchRetries,
		RenderSettle:          DefaultRenderSettle,
	}
}

// XDGDataDir returns the XDG data directory for protectmyart.
// On Linux: ~/.local/share/protectmyart
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for protectmyart.
// On Linux: ~/.config/protectmyart
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	for _, target := range c.Targets {
		if err := ValidateTarget(target); err != nil {
			return err
		}
	}

	for _, d := range []time.Duration{
		c.TabQueryTimeout,
		c.LoadingTabWait,
		c.ActivationWait,
		c.ScanRequestTimeout,
		c.SweepInterval,
		c.MaxRecordAge,
		c.FetchTimeout,
	} {
		if d <= 0 {
			return ErrInvalidTimeout
		}
	}
	if c.InitialScanDelay < 0 || c.MutationDebounce < 0 || c.UnavailableRetryDelay < 0 ||
		c.StaleAfter < 0 || c.RenderSettle < 0 {
		return ErrInvalidDelay
	}

	if c.UnavailableRetries < 0 || c.FetchRetries < 0 {
		return ErrInvalidRetries
	}

	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	return nil
}
