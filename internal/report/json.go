package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/protectmyart/internal/model"
)

// JSONWriter outputs reports in JSON format.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent       bool
	indentPrefix string
	indentString string

	// version is written into batch documents.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion sets the version recorded in batch documents.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs one inspection as a JSON object.
func (w *JSONWriter) Write(report *model.InspectionReport) (int, error) {
	return w.writeJSON(report)
}

// WriteBatch outputs a JSONReport document.
func (w *JSONWriter) WriteBatch(reports []*model.InspectionReport) (int, error) {
	return w.writeJSON(NewJSONReport(reports, w.version))
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}

// JSONReport wraps a batch of inspections with metadata.
type JSONReport struct {
	// Version is the protectmyart version that generated the document.
	Version string `json:"version,omitempty"`

	// Summary counts the inspections per display state.
	Summary model.Summary `json:"summary"`

	// Reports are the inspections in input order.
	Reports []*model.InspectionReport `json:"reports"`
}

// NewJSONReport creates a JSONReport. Nil reports are dropped.
func NewJSONReport(reports []*model.InspectionReport, version string) *JSONReport {
	reports = nonNil(reports)
	return &JSONReport{
		Version: version,
		Summary: model.Summarize(reports),
		Reports: reports,
	}
}
