// Package pipeline runs URL inspections as a sequence of steps.
//
// One inspection opens the URL in its own window, waits for the page to
// load, asks a viewer for the protection status, optionally asks again
// with the cache bypassed, closes the tab and records the result. A
// BatchProcessor runs many inspections concurrently with errgroup.
package pipeline
