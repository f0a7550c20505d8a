package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/protectmyart/internal/model"
)

func newTestReport(url string, general, image bool) *model.InspectionReport {
	report := model.NewInspectionReport(url)
	report.ContextID = 1
	rec := model.FreshRecord(1, model.ScanResult{
		GeneralOptOut: general,
		ImageOptOut:   image,
		SourceURL:     url,
		CapturedAt:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	report.Display = model.Display{
		State:  model.DisplayStateFor(rec),
		Record: &rec,
		URL:    url,
	}
	report.Badge = "✓"
	report.PerformedSteps = []string{"open", "wait", "inspect", "close"}
	report.Elapsed = 150 * time.Millisecond
	return report
}

func newRestrictedReport() *model.InspectionReport {
	report := model.NewInspectionReport("about:blank")
	report.Display = model.Display{
		State:      model.DisplayUnavailable,
		Restricted: true,
		URL:        "about:blank",
		Reason:     "restricted context",
	}
	return report
}

func newTestBatch() []*model.InspectionReport {
	return []*model.InspectionReport{
		newTestReport("https://full.example/", true, true),
		nil,
		newTestReport("https://partial.example/", false, true),
		newTestReport("https://plain.example/", false, false),
		newRestrictedReport(),
	}
}

func TestStateLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state model.DisplayState
		want  string
	}{
		{model.DisplayFullyProtected, "Fully Protected"},
		{model.DisplayPartiallyProtected, "Partially Protected"},
		{model.DisplayNotProtected, "Not Protected"},
		{model.DisplayChecking, "Checking"},
		{model.DisplayUnavailable, "Unavailable"},
	}
	for _, tt := range tests {
		if got := StateLabel(tt.state); got != tt.want {
			t.Errorf("StateLabel(%s) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes single report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewSimpleWriter(&buf).Write(newTestReport("https://full.example/", true, true))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("expected %d bytes reported, got %d", buf.Len(), n)
		}

		output := buf.String()
		for _, want := range []string{
			"AI PROTECTION REPORT",
			"https://full.example/",
			"Fully Protected",
			"noai: " + model.DirectiveExplanations[model.DirectiveNoAI],
			"noimageai: ",
			"Badge:      ✓",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Contains(output, "Steps:") {
			t.Error("non-verbose output should not list steps")
		}
	})

	t.Run("verbose adds details", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		report := newTestReport("https://plain.example/", false, false)
		report.Refreshed = true
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"Steps:      open, wait, inspect, close", "Record:     fresh", "Refreshed:  yes", "Content may be used for AI training"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("writes error status", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		report := newRestrictedReport()
		report.ErrorMessage = "page load failed"
		if _, err := NewSimpleWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if !strings.Contains(output, "ERROR - page load failed") {
			t.Error("expected error status")
		}
		if !strings.Contains(output, "Restricted Page") {
			t.Error("expected restricted copy")
		}
	})

	t.Run("writes batch summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteBatch(newTestBatch()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		for _, want := range []string{"SUMMARY", "Fully Protected:", "Unavailable:", "Total:"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Contains(output, "Checking:") {
			t.Error("states without inspections should be omitted")
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes single report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(newTestReport("https://full.example/", true, true)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		display, ok := decoded["display"].(map[string]any)
		if !ok {
			t.Fatalf("expected display object, got %v", decoded["display"])
		}
		if display["state"] != "fully-protected" {
			t.Errorf("expected state by name, got %v", display["state"])
		}
		if !strings.HasSuffix(buf.String(), "\n") {
			t.Error("expected trailing newline")
		}
	})

	t.Run("pretty print indents", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(newRestrictedReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"url\"") {
			t.Errorf("expected indented output, got %s", buf.String())
		}
	})

	t.Run("writes batch document", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithVersion("1.2.3")).WriteBatch(newTestBatch()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var doc JSONReport
		if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if doc.Version != "1.2.3" {
			t.Errorf("expected version 1.2.3, got %q", doc.Version)
		}
		if len(doc.Reports) != 4 || doc.Summary.Total != 4 {
			t.Errorf("expected 4 reports, got %d (total %d)", len(doc.Reports), doc.Summary.Total)
		}
		if doc.Summary.Counts[model.DisplayUnavailable] != 1 {
			t.Errorf("expected one unavailable, got %v", doc.Summary.Counts)
		}
	})
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes single report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(newTestReport("https://partial.example/", false, true)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		for _, want := range []string{"# AI Protection Report", "### https://partial.example/", "Partially Protected", "noimageai"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("writes batch with chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteBatch(newTestBatch()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		for _, want := range []string{"## Results", "## Summary", "```mermaid", "pie", "Protection Status", "## Details", "[!WARNING]"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("all protected gets a tip", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		batch := []*model.InspectionReport{newTestReport("https://full.example/", true, true)}
		if _, err := NewMarkdownWriter(&buf).WriteBatch(batch); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "[!TIP]") {
			t.Error("expected tip alert")
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteBatch(nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(buf.String(), "```mermaid") {
			t.Error("empty batch should not draw a chart")
		}
	})
}

type failingWriter struct{}

func (failingWriter) Write(*model.InspectionReport) (int, error) {
	return 0, errors.New("write failed")
}

func (failingWriter) WriteBatch([]*model.InspectionReport) (int, error) {
	return 0, errors.New("write failed")
}

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to every writer", func(t *testing.T) {
		t.Parallel()

		var text, js bytes.Buffer
		m := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&js))
		n, err := m.WriteBatch(newTestBatch())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != text.Len()+js.Len() {
			t.Errorf("expected %d bytes, got %d", text.Len()+js.Len(), n)
		}
		if text.Len() == 0 || js.Len() == 0 {
			t.Error("expected both writers to receive output")
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		m := NewMultiWriter(failingWriter{}, NewSimpleWriter(&buf))
		if _, err := m.Write(newRestrictedReport()); err == nil {
			t.Error("expected error")
		}
		if buf.Len() != 0 {
			t.Error("later writers should not run after a failure")
		}
	})
}
