package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/protectmyart/internal/browser"
	"github.com/nao1215/protectmyart/internal/config"
	"github.com/nao1215/protectmyart/internal/database"
	"github.com/nao1215/protectmyart/internal/fetch"
	"github.com/nao1215/protectmyart/internal/log"
	"github.com/nao1215/protectmyart/internal/model"
	"github.com/nao1215/protectmyart/internal/pipeline"
	"github.com/nao1215/protectmyart/internal/render"
	"github.com/nao1215/protectmyart/internal/report"
	"github.com/nao1215/protectmyart/internal/session"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [url]...",
		Short: "Check web pages for AI opt-out directives",
		Long: `Check opens every URL in its own window of a browsing session, waits
for the page to load and for its observer to finish the first scan, and
reports the protection status:

  fully protected      both "noai" and "noimageai" are present
  partially protected  only one of them is present
  not protected        neither is present
  unavailable          the page cannot be checked (restricted or failed)

URLs without a scheme are checked over https.

Examples:
  # Check a single page
  protectmyart check https://example.com/gallery

  # Check several pages, 8 at a time, and print JSON
  protectmyart check --batch 8 --json site1.example site2.example

  # Bypass cached results with a second, forced check
  protectmyart check --refresh https://example.com/

  # Download pages through a SOCKS5 proxy
  protectmyart check --proxy 127.0.0.1:9050 https://example.com/

  # Render pages in headless Chrome so tags added by scripts are seen
  protectmyart check --render https://example.com/`,
		Args: cobra.ArbitraryArgs,
		RunE: runCheckCmd,
	}

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .protectmyart in current or home directory)")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of pages checked concurrently")
	cmd.Flags().BoolP("refresh", "r", false,
		"Check every page a second time with cached results bypassed")
	cmd.Flags().StringP("proxy", "x", "",
		"SOCKS5 proxy for page downloads (e.g., 127.0.0.1:9050)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultFetchTimeout,
		"Timeout for each page download")
	cmd.Flags().Int("retries", config.DefaultFetchRetries,
		"Retries of a page download after a network error, 429 or 5xx")
	cmd.Flags().Float64("rate", 0,
		"Maximum requests per second to one host (0 for no limit)")
	cmd.Flags().Bool("render", false,
		"Load pages in headless Chrome instead of downloading the source")
	cmd.Flags().String("chrome-path", "",
		"Chrome executable used with --render")
	cmd.Flags().String("remote-chrome", "",
		"DevTools websocket URL of a running Chrome used with --render")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-db", false,
		"Do not record results in the history database")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	return cmd
}

func runCheckCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCheck(ctx, cfg, logger, cmd.OutOrStdout())
}

// buildConfig creates a Config from defaults, the configuration file and
// the command flags, in that order. Flags only override when set.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)

	flags := cmd.Flags()
	var err error
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if _, err := config.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.Refresh, err = flags.GetBool("refresh"); err != nil {
		return nil, err
	}
	if flags.Changed("proxy") {
		if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.FetchTimeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("retries") {
		if cfg.FetchRetries, err = flags.GetInt("retries"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("rate") {
		if cfg.RateLimit, err = flags.GetFloat64("rate"); err != nil {
			return nil, err
		}
	}
	if cfg.Render, err = flags.GetBool("render"); err != nil {
		return nil, err
	}
	if flags.Changed("chrome-path") {
		if cfg.ChromePath, err = flags.GetString("chrome-path"); err != nil {
			return nil, err
		}
	}
	if cfg.RemoteChromeURL, err = flags.GetString("remote-chrome"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}

	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.DBDir == "" {
		cfg.DBDir = config.XDGDataDir()
	}

	cfg.Targets = make([]string, 0, len(args))
	for _, arg := range args {
		cfg.Targets = append(cfg.Targets, config.NormalizeTarget(arg))
	}
	return cfg, nil
}

// runCheck inspects every target and writes the report to out, or to
// cfg.ReportFile when set.
func runCheck(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	logger.Info("starting check",
		"targets", len(cfg.Targets),
		"batchSize", cfg.BatchSize,
		"refresh", cfg.Refresh,
		"saveToDB", cfg.SaveToDB,
	)

	loader, closeLoader, err := newLoader(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLoader()

	var saver pipeline.Saver
	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
		saver = db
	}

	sess := session.New(cfg, session.WithLogger(logger), session.WithLoader(loader))
	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("failed to close session", "error", err)
		}
	}()

	env := pipeline.NewEnv(sess)
	bp := pipeline.NewBatchProcessor(
		func() *pipeline.Pipeline {
			return pipeline.NewInspection(env, pipeline.InspectionOptions{
				LoadTimeout: cfg.FetchTimeout + cfg.LoadingTabWait,
				Refresh:     cfg.Refresh,
				Saver:       saver,
				Logger:      logger,
			})
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	startTime := time.Now()
	results, err := bp.ProcessBatch(ctx, cfg.Targets)
	logger.Info("check completed", "elapsed", time.Since(startTime).Round(time.Millisecond))
	if err != nil {
		return fmt.Errorf("check interrupted: %w", err)
	}

	return outputReport(cfg, out, results)
}

// newLoader returns the page loader selected by cfg and a function that
// releases it.
func newLoader(cfg *config.Config, logger *slog.Logger) (browser.Loader, func(), error) {
	if cfg.Render || cfg.RemoteChromeURL != "" {
		r := render.New(
			render.WithLogger(logger),
			render.WithExecPath(cfg.ChromePath),
			render.WithRemoteURL(cfg.RemoteChromeURL),
			render.WithProxy(cfg.ProxyAddress),
			render.WithUserAgent(cfg.UserAgent),
			render.WithTimeout(cfg.FetchTimeout),
			render.WithSettle(cfg.RenderSettle),
		)
		return r, func() { _ = r.Close() }, nil
	}

	client, err := fetch.NewClient(
		fetch.WithLogger(logger),
		fetch.WithProxy(cfg.ProxyAddress),
		fetch.WithTimeout(cfg.FetchTimeout),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithSites(cfg.SiteConfigs),
		fetch.WithRetries(cfg.FetchRetries, fetch.DefaultRetryDelay),
		fetch.WithRateLimit(cfg.RateLimit),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create page loader: %w", err)
	}
	return client, func() {}, nil
}

// outputReport writes the reports in the requested format.
func outputReport(cfg *config.Config, out io.Writer, results []*model.InspectionReport) error {
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}

	var err error
	if len(results) == 1 && !cfg.JSONReport {
		_, err = w.Write(results[0])
	} else {
		_, err = w.WriteBatch(results)
	}
	return err
}
