// Package main provides the entry point for the protectmyart CLI.
//
// protectmyart reports whether web pages opt out of AI training through
// "noai" and "noimageai" robots meta tags.
//
// Usage:
//
//	protectmyart check <url>...
//	protectmyart history [url]
//
// See --help for all available options.
package main

func main() {
	Execute()
}
