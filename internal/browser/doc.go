// Package browser hosts browsing contexts.
//
// A Browser owns windows and the tabs inside them. Every tab is a context
// with an id, a URL and a load status. Navigating a tab tears down the
// observer of the previous page, tells the store that navigation started,
// loads the new page through a Loader and, unless the URL is restricted,
// injects a fresh observer once loading completes.
//
// The Browser is also the context-query capability used by viewers: it
// reports the focused tab and announces completed loads.
package browser
