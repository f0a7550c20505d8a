package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/protectmyart/internal/model"
)

// SimpleWriter outputs human-readable text reports.
type SimpleWriter struct {
	baseWriter

	// verbose adds explanations and inspection details.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs one inspection.
func (w *SimpleWriter) Write(report *model.InspectionReport) (int, error) {
	var sb strings.Builder
	w.writeHeader(&sb)
	w.writeReport(&sb, report)
	return w.output.Write([]byte(sb.String()))
}

// WriteBatch outputs every inspection followed by a summary.
func (w *SimpleWriter) WriteBatch(reports []*model.InspectionReport) (int, error) {
	reports = nonNil(reports)

	var sb strings.Builder
	w.writeHeader(&sb)
	for _, r := range reports {
		w.writeReport(&sb, r)
	}
	w.writeSummary(&sb, model.Summarize(reports))
	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                      AI PROTECTION REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeReport(sb *strings.Builder, report *model.InspectionReport) {
	cp := model.CopyFor(report.Display)

	sb.WriteString(fmt.Sprintf("URL:        %s\n", report.URL))
	sb.WriteString(fmt.Sprintf("Result:     %s (%s)\n", cp.Title, cp.Subtitle))
	if report.Badge != "" {
		sb.WriteString(fmt.Sprintf("Badge:      %s\n", report.Badge))
	}
	sb.WriteString(fmt.Sprintf("Status:     %s\n", statusText(report)))

	found := directives(report)
	if len(found) > 0 {
		sb.WriteString("Directives:\n")
		for _, d := range found {
			sb.WriteString(fmt.Sprintf("  - %s: %s\n", d, model.DirectiveExplanations[d]))
		}
	}

	if w.verbose {
		sb.WriteString(fmt.Sprintf("Checked:    %s\n", report.StartedAt.Format(timeLayout)))
		sb.WriteString(fmt.Sprintf("Elapsed:    %s\n", report.Elapsed))
		if rec := report.Display.Record; rec != nil {
			sb.WriteString(fmt.Sprintf("Record:     %s, captured %s\n", rec.Lifecycle, rec.CapturedAt.Format(timeLayout)))
		}
		if report.Display.Reason != "" {
			sb.WriteString(fmt.Sprintf("Reason:     %s\n", report.Display.Reason))
		}
		if report.Refreshed {
			sb.WriteString("Refreshed:  yes\n")
		}
		sb.WriteString(fmt.Sprintf("Steps:      %s\n", strings.Join(report.PerformedSteps, ", ")))
		sb.WriteString("\n")
		sb.WriteString(cp.Explanation)
		sb.WriteString("\n")
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, summary model.Summary) {
	sb.WriteString("\nSUMMARY\n")
	for _, s := range model.AllDisplayStates() {
		n := summary.Counts[s]
		if n == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("  %-22s %d\n", StateLabel(s)+":", n))
	}
	sb.WriteString(fmt.Sprintf("  %-22s %d\n", "Total:", summary.Total))
}
