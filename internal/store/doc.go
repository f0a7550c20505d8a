// Package store keeps the last-known protection status of every browsing
// context of a session.
//
// The Store is the single source of truth and the only component every other
// component can always reach. Observers push scan reports into it, the
// browser host tells it about navigation, activation and close, and viewers
// read from it through GetStatus, which falls back to asking the observer
// directly when its own record is missing, stale or bypassed.
//
// Records are replaced wholesale on every write, never patched field by
// field, so readers cannot observe a partially updated record. The table is
// volatile: it starts empty and is wiped on Reset.
package store
