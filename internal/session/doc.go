// Package session assembles one browser session: the mailbox router, the
// status store, the browser host with its observers, the activation bus
// and the periodic sweeper. Viewers are created per inspection.
package session
