package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/protectmyart/internal/config"
	"github.com/nao1215/protectmyart/internal/fetch"
	"github.com/nao1215/protectmyart/internal/model"
	"github.com/nao1215/protectmyart/internal/render"
	"github.com/nao1215/protectmyart/internal/report"
)

const (
	protectedPage = `<!DOCTYPE html><html><head>
<meta name="robots" content="noai, noimageai">
<title>Gallery</title></head><body><img src="art.png"></body></html>`

	partialPage = `<!DOCTYPE html><html><head>
<meta name="robots" content="noimageai">
</head><body></body></html>`

	plainPage = `<!DOCTYPE html><html><head><title>Blog</title></head><body></body></html>`
)

func newArtServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	serve := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = io.WriteString(w, body)
		}
	}
	mux.HandleFunc("/gallery", serve(protectedPage))
	mux.HandleFunc("/partial", serve(partialPage))
	mux.HandleFunc("/blog", serve(plainPage))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// TestNewCheckCmd tests the check command creation.
func TestNewCheckCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCheckCmd()

	if cmd.Use != "check [url]..." {
		t.Errorf("expected use 'check [url]...', got %q", cmd.Use)
	}
	if cmd.Short == "" || cmd.Long == "" {
		t.Error("expected non-empty descriptions")
	}

	flags := []struct {
		name      string
		shorthand string
	}{
		{"config", "c"},
		{"batch", "b"},
		{"refresh", "r"},
		{"proxy", "x"},
		{"timeout", "t"},
		{"json", "j"},
		{"markdown", "m"},
		{"output", "o"},
		{"retries", ""},
		{"rate", ""},
		{"render", ""},
		{"chrome-path", ""},
		{"remote-chrome", ""},
		{"no-db", ""},
		{"db-dir", ""},
	}
	for _, f := range flags {
		t.Run("has "+f.name+" flag", func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(f.name)
			if flag == nil {
				t.Fatalf("expected %s flag", f.name)
			}
			if flag.Shorthand != f.shorthand {
				t.Errorf("expected shorthand %q, got %q", f.shorthand, flag.Shorthand)
			}
		})
	}
}

func TestBuildConfig(t *testing.T) {
	t.Run("flags override defaults", func(t *testing.T) {
		cmd := NewCheckCmd()
		if err := cmd.ParseFlags([]string{"-b", "2", "-r", "-x", "127.0.0.1:9050", "--no-db", "-t", "5s", "--retries", "0", "--rate", "1.5"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"example.com/art", "about:blank"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.BatchSize != 2 || !cfg.Refresh || cfg.SaveToDB {
			t.Errorf("unexpected config: batch=%d refresh=%v saveToDB=%v", cfg.BatchSize, cfg.Refresh, cfg.SaveToDB)
		}
		if cfg.ProxyAddress != "127.0.0.1:9050" {
			t.Errorf("expected proxy address, got %q", cfg.ProxyAddress)
		}
		if cfg.FetchTimeout.String() != "5s" {
			t.Errorf("expected fetch timeout 5s, got %s", cfg.FetchTimeout)
		}
		if cfg.FetchRetries != 0 || cfg.RateLimit != 1.5 {
			t.Errorf("unexpected retries/rate: %d %v", cfg.FetchRetries, cfg.RateLimit)
		}
		if cfg.Targets[0] != "https://example.com/art" || cfg.Targets[1] != "about:blank" {
			t.Errorf("unexpected targets: %v", cfg.Targets)
		}
		if cfg.DBDir != config.XDGDataDir() {
			t.Errorf("expected XDG data dir, got %q", cfg.DBDir)
		}
	})

	t.Run("config file is applied before flags", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "proxy: 127.0.0.1:1080\ntimeouts:\n  fetch: 7s\n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cmd := NewCheckCmd()
		if err := cmd.ParseFlags([]string{"-c", path, "-x", "127.0.0.1:9050"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		cfg, err := buildConfig(cmd, []string{"https://example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.ProxyAddress != "127.0.0.1:9050" {
			t.Errorf("expected flag to win, got %q", cfg.ProxyAddress)
		}
		if cfg.FetchTimeout.String() != "7s" {
			t.Errorf("expected fetch timeout from file, got %s", cfg.FetchTimeout)
		}
		if cfg.SiteConfigs == nil {
			t.Error("expected site configs from file")
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		cmd := NewCheckCmd()
		missing := filepath.Join(t.TempDir(), "missing.yaml")
		if err := cmd.ParseFlags([]string{"-c", missing}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		_, err := buildConfig(cmd, []string{"https://example.com"})
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

func TestNewLoader(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("downloads by default", func(t *testing.T) {
		t.Parallel()
		loader, release, err := newLoader(config.NewConfig(), logger)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer release()
		if _, ok := loader.(*fetch.Client); !ok {
			t.Errorf("expected *fetch.Client, got %T", loader)
		}
	})

	t.Run("renders when requested", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Render = true
		loader, release, err := newLoader(cfg, logger)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer release()
		if _, ok := loader.(*render.Loader); !ok {
			t.Errorf("expected *render.Loader, got %T", loader)
		}
	})

	t.Run("invalid proxy", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.ProxyAddress = "not-a-proxy"
		if _, _, err := newLoader(cfg, logger); !errors.Is(err, fetch.ErrInvalidProxyAddress) {
			t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
		}
	})
}

func TestCheckCmdErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"no targets", []string{"check", "--no-db"}, config.ErrNoTarget},
		{"conflicting formats", []string{"check", "--no-db", "-j", "-m", "https://example.com"}, config.ErrConflictingReportFormats},
		{"invalid batch size", []string{"check", "--no-db", "-b", "0", "https://example.com"}, config.ErrInvalidBatchSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRootCmd()
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCheckCmdJSON(t *testing.T) {
	srv := newArtServer(t)

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{
		"check", "--no-db", "-j", "-b", "2",
		srv.URL + "/gallery",
		srv.URL + "/partial",
		srv.URL + "/blog",
		"about:blank",
	})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var doc report.JSONReport
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("failed to decode report: %v\n%s", err, out.String())
	}
	if doc.Version == "" {
		t.Error("expected version in report")
	}
	if doc.Summary.Total != 4 {
		t.Errorf("expected 4 inspections, got %d", doc.Summary.Total)
	}

	want := []model.DisplayState{
		model.DisplayFullyProtected,
		model.DisplayPartiallyProtected,
		model.DisplayNotProtected,
		model.DisplayUnavailable,
	}
	if len(doc.Reports) != len(want) {
		t.Fatalf("expected %d reports, got %d", len(want), len(doc.Reports))
	}
	for i, r := range doc.Reports {
		if r.Display.State != want[i] {
			t.Errorf("%s: expected %s, got %s", r.URL, want[i], r.Display.State)
		}
	}
	if !doc.Reports[3].Display.Restricted {
		t.Error("expected about:blank to be restricted")
	}
	sessionID := doc.Reports[0].SessionID
	if sessionID == "" {
		t.Fatal("expected a session id")
	}
	for _, r := range doc.Reports[1:] {
		if r.SessionID != sessionID {
			t.Errorf("%s: expected session %s, got %q", r.URL, sessionID, r.SessionID)
		}
	}
}

func TestCheckCmdMarkdownFile(t *testing.T) {
	srv := newArtServer(t)
	outputPath := filepath.Join(t.TempDir(), "reports", "art.md")

	cmd := NewRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"check", "--no-db", "-m", "-o", outputPath, srv.URL + "/gallery", srv.URL + "/blog"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	for _, want := range []string{srv.URL + "/gallery", srv.URL + "/blog", "noai"} {
		if !strings.Contains(string(content), want) {
			t.Errorf("expected report to contain %q", want)
		}
	}
}

func TestRunCheckSavesHistory(t *testing.T) {
	srv := newArtServer(t)
	dbDir := t.TempDir()

	cfg := config.NewConfig()
	cfg.Targets = []string{srv.URL + "/gallery"}
	cfg.SaveToDB = true
	cfg.DBDir = dbDir
	cfg.Verbose = true

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var out bytes.Buffer
	if err := runCheck(context.Background(), cfg, logger, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), srv.URL+"/gallery") {
		t.Errorf("expected text report to mention the URL, got %q", out.String())
	}

	var hist bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&hist)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"history", "--db-dir", dbDir, "-j", srv.URL + "/gallery"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var entries []struct {
		URL   string             `json:"url"`
		State model.DisplayState `json:"state"`
	}
	if err := json.Unmarshal(hist.Bytes(), &entries); err != nil {
		t.Fatalf("failed to decode history: %v\n%s", err, hist.String())
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].State != model.DisplayFullyProtected {
		t.Errorf("expected fully protected, got %s", entries[0].State)
	}
}
