package report

import (
	"io"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/protectmyart/internal/model"
)

// MarkdownWriter outputs reports in Markdown format, built with
// nao1215/markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs one inspection.
func (w *MarkdownWriter) Write(report *model.InspectionReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("AI Protection Report")
	md.PlainText("")
	w.writeReport(md, report)
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// WriteBatch outputs a results table, a summary chart and per-URL details.
func (w *MarkdownWriter) WriteBatch(reports []*model.InspectionReport) (int, error) {
	reports = nonNil(reports)
	summary := model.Summarize(reports)

	md := markdown.NewMarkdown(w.output)
	md.H1("AI Protection Report")
	md.PlainText("")

	w.writeResultsTable(md, reports)
	w.writeSummary(md, summary)

	md.H2("Details")
	md.PlainText("")
	for _, r := range reports {
		w.writeReport(md, r)
	}
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeResultsTable(md *markdown.Markdown, reports []*model.InspectionReport) {
	md.H2("Results")
	md.PlainText("")

	rows := make([][]string, len(reports))
	for i, r := range reports {
		found := strings.Join(directives(r), ", ")
		if found == "" {
			found = "-"
		}
		rows[i] = []string{
			"`" + r.URL + "`",
			stateIcon(r.State()) + " " + model.CopyFor(r.Display).Title,
			found,
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Result", "Directives"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, summary model.Summary) {
	md.H2("Summary")
	md.PlainText("")

	if summary.Total > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Protection Status"),
			piechart.WithShowData(true),
		)
		for _, s := range model.AllDisplayStates() {
			if n := summary.Counts[s]; n > 0 {
				chart.LabelAndIntValue(StateLabel(s), uint64(n)) //nolint:gosec // counts are never negative
			}
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	protected := summary.Counts[model.DisplayFullyProtected] + summary.Counts[model.DisplayPartiallyProtected]
	switch {
	case summary.Total == 0:
		md.Note("No pages were inspected.")
	case protected == summary.Total:
		md.Tip("Every inspected page carries AI opt-out directives.")
	case summary.Counts[model.DisplayNotProtected] > 0:
		md.Warningf("%d of %d page(s) carry no AI opt-out directive.",
			summary.Counts[model.DisplayNotProtected], summary.Total)
	default:
		md.Importantf("%d of %d page(s) could not be checked.",
			summary.Total-protected, summary.Total)
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeReport(md *markdown.Markdown, report *model.InspectionReport) {
	cp := model.CopyFor(report.Display)

	md.H3(report.URL)
	md.PlainText("")

	rows := [][]string{
		{"Result", stateIcon(report.State()) + " " + cp.Title},
		{"Checked", report.StartedAt.Format(timeLayout)},
		{"Status", statusText(report)},
	}
	if report.Badge != "" {
		rows = append(rows, []string{"Badge", report.Badge})
	}
	if rec := report.Display.Record; rec != nil {
		rows = append(rows, []string{"Record", rec.Lifecycle.String()})
	}
	if report.Display.Reason != "" {
		rows = append(rows, []string{"Reason", report.Display.Reason})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
	md.PlainText(cp.Explanation)
	md.PlainText("")

	for _, d := range directives(report) {
		md.Details("`"+d+"`", model.DirectiveExplanations[d])
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [protectmyart](https://github.com/nao1215/protectmyart)*")
}

func stateIcon(s model.DisplayState) string {
	switch s {
	case model.DisplayFullyProtected:
		return "🛡️"
	case model.DisplayPartiallyProtected:
		return "⚠️"
	case model.DisplayNotProtected:
		return "❌"
	case model.DisplayChecking:
		return "⏳"
	default:
		return "🚫"
	}
}
