// Package observer implements the per-page scanner.
//
// One Observer runs for every page load. It performs an initial scan after a
// short settle delay, rescans when relevant robots meta elements change, and
// reports every result to the store unsolicited. It also serves two requests
// arriving on its mailbox: a scan request, answered with a fresh scan, and a
// liveness probe, answered with whether the initial scan was acknowledged.
//
// The only state an Observer keeps is whether its initial report succeeded.
package observer
