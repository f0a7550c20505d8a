// Package database provides SQLite-based storage for inspection history.
//
// Each finished inspection is appended to the inspections table together
// with its full JSON report. The history is separate from the in-memory
// status store: it is only written by the CLI and never consulted when a
// page's protection status is resolved.
//
// modernc.org/sqlite is used so the binary stays CGO-free.
package database
