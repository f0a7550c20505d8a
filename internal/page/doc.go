// Package page models the live document of one browsing context.
//
// A Document wraps a golang.org/x/net/html node tree and is the DOM query
// capability consumed by observers: it answers queries for robots meta
// contents and reports every structural or attribute change to its
// subscribers as a Mutation, the same way a browser MutationObserver would.
package page
