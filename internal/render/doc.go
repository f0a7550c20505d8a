// Package render loads pages in headless Chrome through chromedp.
//
// Where fetch only sees the source a server sends, a rendered page has run
// its scripts, so robots meta tags injected at runtime are part of the
// captured DOM. Loader satisfies the browser host's page loader interface
// and shares one Chrome process between all loads; each load gets its own
// tab.
package render
