package model

import (
	"strconv"
	"strings"
)

// ContextID identifies one browsing context (a single open page instance).
// IDs are assigned by the browser host and are never reused within a session.
type ContextID int

// NoContext is the zero ContextID. It never identifies a live context.
const NoContext ContextID = 0

// String returns the decimal form of the id.
func (id ContextID) String() string {
	return strconv.Itoa(int(id))
}

// Valid reports whether id can identify a live context.
func (id ContextID) Valid() bool {
	return id > NoContext
}

// DefaultRestrictedPrefixes lists URL prefixes of privileged pages that
// cannot host an observer. Browser settings, extension pages and local files
// all fall in this category.
var DefaultRestrictedPrefixes = []string{
	"chrome://",
	"chrome-extension://",
	"moz-extension://",
	"edge://",
	"about:",
	"file://",
	"view-source:",
	"opera://",
	"vivaldi://",
}

// IsRestrictedURL reports whether url belongs to a privileged context.
// An empty URL is treated as restricted because there is nothing to scan.
// If prefixes is nil, DefaultRestrictedPrefixes is used.
func IsRestrictedURL(url string, prefixes []string) bool {
	if url == "" {
		return true
	}
	if prefixes == nil {
		prefixes = DefaultRestrictedPrefixes
	}
	lower := strings.ToLower(url)
	for _, prefix := range prefixes {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}
