// Package metascan finds AI opt-out directives in robots meta tags.
//
// A page opts out of AI training by declaring
//
//	<meta name="robots" content="noai, noimageai">
//
// The tag name match is case-insensitive, the content attribute is split on
// commas and every token is trimmed and lowercased. Multiple robots tags are
// unioned: a directive found in any of them counts for the whole page.
//
// The scan works on golang.org/x/net/html node trees, so it tolerates the
// malformed markup common on the web.
package metascan
