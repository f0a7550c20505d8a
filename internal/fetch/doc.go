// Package fetch downloads page source for the browser host.
//
// Client is an HTTP client with a body size limit, a User-Agent, per-site
// cookies and headers, and an optional SOCKS5 proxy. Load parses the
// downloaded source into a page.Document, which makes Client usable as the
// browser's page loader.
package fetch
