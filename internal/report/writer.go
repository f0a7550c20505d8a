package report

import (
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/protectmyart/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs one inspection.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.InspectionReport) (int, error)

	// WriteBatch outputs several inspections followed by a summary.
	WriteBatch(reports []*model.InspectionReport) (int, error)
}

// MultiWriter writes to multiple Writers, for example the terminal and
// a file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.InspectionReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteBatch outputs the reports to all configured Writers.
func (m *MultiWriter) WriteBatch(reports []*model.InspectionReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteBatch(reports)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

var titleCaser = cases.Title(language.English)

// StateLabel returns a title-cased label for s, e.g. "Partially Protected".
func StateLabel(s model.DisplayState) string {
	return titleCaser.String(strings.ReplaceAll(s.String(), "-", " "))
}

// directives returns the opt-out directives found in the report's record.
func directives(report *model.InspectionReport) []string {
	rec := report.Display.Record
	if rec == nil {
		return nil
	}
	var found []string
	if rec.GeneralOptOut {
		found = append(found, model.DirectiveNoAI)
	}
	if rec.ImageOptOut {
		found = append(found, model.DirectiveNoImageAI)
	}
	return found
}

// nonNil drops nil reports left by cancelled batches.
func nonNil(reports []*model.InspectionReport) []*model.InspectionReport {
	out := make([]*model.InspectionReport, 0, len(reports))
	for _, r := range reports {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// statusText describes how the inspection ended.
func statusText(report *model.InspectionReport) string {
	if report.ErrorMessage != "" {
		return "ERROR - " + report.ErrorMessage
	}
	return "Complete"
}

const timeLayout = "2006-01-02 15:04:05 MST"
