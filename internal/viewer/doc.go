// Package viewer runs one user-initiated inspection of the focused context.
//
// Inspect resolves the focused tab, waits for it to finish loading, rejects
// restricted pages without sending any message, makes sure the page's
// observer has completed its initial scan, and finally asks the store for
// the protection record. Every wait is bounded, and every path ends in one of
// the five display states, which are handed to a Sink as the inspection
// progresses.
package viewer
