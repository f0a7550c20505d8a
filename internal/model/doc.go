// Package model defines the core data structures shared by the observer,
// the store and the viewer.
//
// This package contains the following main types:
//   - ContextID: Opaque identifier of one browsing context (a tab)
//   - ScanResult: The transient value produced by a page observer
//   - ProtectionRecord: The store's last-known protection status for a context
//   - DisplayState: The five mutually exclusive states shown to the user
//   - InspectionReport: The outcome of one user-initiated inspection
//
// Models live in their own package so that observer, store, viewer and the
// report writers can share them without import cycles. All of them are
// serializable to JSON for report output and the history database.
package model
