package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/protectmyart/internal/database"
	"github.com/nao1215/protectmyart/internal/model"
)

func seedHistory(t *testing.T, dir string, reports ...*model.InspectionReport) {
	t.Helper()

	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	for _, r := range reports {
		if err := db.SaveInspection(context.Background(), r); err != nil {
			t.Fatalf("failed to save inspection: %v", err)
		}
	}
}

func inspection(url string, state model.DisplayState, startedAt time.Time) *model.InspectionReport {
	r := model.NewInspectionReport(url)
	r.StartedAt = startedAt
	r.Display = model.Display{State: state, URL: url}
	return r
}

func TestNewHistoryCmd(t *testing.T) {
	t.Parallel()

	cmd := NewHistoryCmd()
	if cmd.Use != "history [url]" {
		t.Errorf("expected use 'history [url]', got %q", cmd.Use)
	}
	for _, name := range []string{"limit", "json", "prune", "db-dir"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
}

func TestRunHistory(t *testing.T) {
	t.Parallel()

	now := time.Now()
	dir := t.TempDir()
	seedHistory(t, dir,
		inspection("https://art.example/gallery", model.DisplayNotProtected, now.Add(-2*time.Hour)),
		inspection("https://art.example/gallery", model.DisplayFullyProtected, now.Add(-time.Hour)),
		inspection("https://blog.example/", model.DisplayPartiallyProtected, now.Add(-48*time.Hour)),
	)

	run := func(t *testing.T, args ...string) string {
		t.Helper()
		var out bytes.Buffer
		cmd := NewHistoryCmd()
		cmd.SetOut(&out)
		cmd.SetErr(io.Discard)
		cmd.SetArgs(append([]string{"--db-dir", dir}, args...))
		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return out.String()
	}

	t.Run("lists urls", func(t *testing.T) {
		out := run(t)
		if !strings.Contains(out, "https://art.example/gallery") || !strings.Contains(out, "https://blog.example/") {
			t.Errorf("expected both URLs, got:\n%s", out)
		}
		if !strings.Contains(out, "URL") {
			t.Errorf("expected table header, got:\n%s", out)
		}
	})

	t.Run("lists inspections of one url", func(t *testing.T) {
		out := run(t, "art.example/gallery", "-n", "1")
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 2 {
			t.Fatalf("expected header and one row, got:\n%s", out)
		}
		if !strings.Contains(strings.ToLower(lines[1]), "fully") {
			t.Errorf("expected newest inspection first, got %q", lines[1])
		}
	})

	t.Run("unknown url", func(t *testing.T) {
		out := run(t, "https://unknown.example/")
		if !strings.Contains(out, "No inspections recorded") {
			t.Errorf("expected empty message, got %q", out)
		}
	})
}

func TestRunHistorySession(t *testing.T) {
	t.Parallel()

	now := time.Now()
	dir := t.TempDir()
	first := inspection("https://art.example/gallery", model.DisplayFullyProtected, now)
	first.SessionID = "run-a"
	second := inspection("https://blog.example/", model.DisplayNotProtected, now)
	second.SessionID = "run-a"
	other := inspection("https://other.example/", model.DisplayNotProtected, now)
	other.SessionID = "run-b"
	seedHistory(t, dir, first, second, other)

	var out bytes.Buffer
	cmd := NewHistoryCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--db-dir", dir, "--session", "run-a"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "art.example") || !strings.Contains(got, "blog.example") {
		t.Errorf("expected both inspections of the session, got:\n%s", got)
	}
	if strings.Contains(got, "other.example") {
		t.Errorf("expected other sessions to be excluded, got:\n%s", got)
	}

	t.Run("rejects url with session", func(t *testing.T) {
		t.Parallel()
		cmd := NewHistoryCmd()
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"--db-dir", dir, "--session", "run-a", "https://art.example/gallery"})
		if err := cmd.Execute(); err == nil {
			t.Error("expected error")
		}
	})
}

func TestRunHistoryPrune(t *testing.T) {
	t.Parallel()

	now := time.Now()
	dir := t.TempDir()
	seedHistory(t, dir,
		inspection("https://old.example/", model.DisplayNotProtected, now.Add(-72*time.Hour)),
		inspection("https://new.example/", model.DisplayFullyProtected, now),
	)

	var out, errOut bytes.Buffer
	cmd := NewHistoryCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--db-dir", dir, "--prune", "24h"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(errOut.String(), "pruned 1 inspection") {
		t.Errorf("expected prune count, got %q", errOut.String())
	}
	if strings.Contains(out.String(), "old.example") {
		t.Errorf("expected old inspection to be pruned, got:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "new.example") {
		t.Errorf("expected new inspection to remain, got:\n%s", out.String())
	}
}

func TestRunHistoryWithoutDatabase(t *testing.T) {
	t.Parallel()

	cmd := NewHistoryCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--db-dir", filepath.Join(t.TempDir(), "missing")})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error for missing database")
	}
}
