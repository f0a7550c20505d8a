// Package report renders inspection results.
//
// This package contains writers for different output formats:
//   - SimpleWriter: human-readable text for terminal display
//   - JSONWriter: structured JSON for tool integration
//   - MarkdownWriter: Markdown with a Mermaid summary chart
//
// Writers implement the Writer interface, so they can be used
// interchangeably and composed with MultiWriter.
package report
